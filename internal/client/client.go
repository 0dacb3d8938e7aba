// Package client talks to the rule store service over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"grimm.is/pfw/internal/brand"
	"grimm.is/pfw/internal/i18n"
	"grimm.is/pfw/internal/rules"
)

// DefaultTimeout bounds each request unless WithTimeout says otherwise.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of a reply is read.
const maxResponseBytes = 16 << 20

// Mutation mirrors the service's reply to POST, PUT and DELETE.
// Defined locally to avoid importing the internal/api package.
type Mutation struct {
	Message string     `json:"message"`
	Rule    rules.Rule `json:"rule"`
	Index   int        `json:"index"`
}

// Health mirrors the /healthz reply.
type Health struct {
	Status string `json:"status"`
	Rules  int    `json:"rules"`
}

// errorBody mirrors the service's error JSON.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Ref addresses a rule. A non-empty ID wins; otherwise Index is used,
// guarded by Expect when set.
type Ref struct {
	ID     string
	Index  int
	Expect string
}

// ByID addresses a rule by its stable id.
func ByID(id string) Ref { return Ref{ID: id, Index: -1} }

// At addresses the rule at index. A non-empty expect makes the server
// refuse with 409 when a different rule is there now.
func At(index int, expect string) Ref { return Ref{Index: index, Expect: expect} }

// RefFor addresses r, last seen at index: by id when it has one.
func RefFor(r rules.Rule, index int) Ref {
	if r.ID != "" {
		return ByID(r.ID)
	}
	return At(index, "")
}

func (r Ref) path() string {
	if r.ID != "" {
		return "/rules/" + url.PathEscape(r.ID)
	}
	p := "/rules/" + strconv.Itoa(r.Index)
	if r.Expect != "" {
		p += "?expect=" + url.QueryEscape(r.Expect)
	}
	return p
}

func (r Ref) String() string {
	if r.ID != "" {
		return r.ID
	}
	return "#" + strconv.Itoa(r.Index)
}

// RulesAPI is the rule store surface used by the console and the CLI.
type RulesAPI interface {
	ListRules(ctx context.Context) ([]rules.Rule, error)
	GetRule(ctx context.Context, ref Ref) (rules.Rule, error)
	CreateRule(ctx context.Context, r rules.Rule) (Mutation, error)
	ReplaceRule(ctx context.Context, ref Ref, r rules.Rule) (Mutation, error)
	DeleteRule(ctx context.Context, ref Ref) (Mutation, error)
}

// HTTPClient is an HTTP-based implementation of RulesAPI.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	language   string
	userAgent  string
	httpClient *http.Client
}

var _ RulesAPI = (*HTTPClient)(nil)

// ClientOption configures the HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key sent with every request.
func WithAPIKey(key string) ClientOption {
	return func(c *HTTPClient) {
		c.apiKey = key
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}


// WithLanguage sets Accept-Language so server errors come back localized.
func WithLanguage(lang string) ClientOption {
	return func(c *HTTPClient) {
		c.language = lang
	}
}

// NewHTTPClient creates a new HTTPClient for the given base URL.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  brand.UserAgent(brand.Version),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server URL requests go to.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// doRequest performs an HTTP request and decodes the JSON response into
// result when it is non-nil.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body, result any) error {
	respBody, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return &DecodeError{Op: method + " " + path, Err: err}
		}
	}
	return nil
}

// do performs an HTTP request and returns the body of a 2xx reply.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	op := method + " " + path
	fullURL := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &NetworkError{Op: op, URL: fullURL, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &ServerError{Status: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(respBody, &eb) == nil && eb.Error != "" {
			se.Message, se.Details = eb.Error, eb.Details
		} else {
			se.Message = strings.TrimSpace(string(respBody))
		}
		return nil, se
	}
	return respBody, nil
}

// mutationReply is the lenient view of a mutation reply. Every field is
// optional; older servers answer with only a message, or with nothing.
type mutationReply struct {
	Message string      `json:"message"`
	Rule    *rules.Rule `json:"rule"`
	Index   *int        `json:"index"`
}

// mutate sends a POST, PUT or DELETE. Once the server has answered 2xx the
// change happened, so an empty, 204 or non-JSON reply is not an error: the
// parts the reply leaves out are taken from fallback.
func (c *HTTPClient) mutate(ctx context.Context, method, path string, body any, fallback Mutation) (Mutation, error) {
	respBody, err := c.do(ctx, method, path, body)
	if err != nil {
		return Mutation{}, err
	}

	m := fallback
	var reply mutationReply
	if len(bytes.TrimSpace(respBody)) > 0 && json.Unmarshal(respBody, &reply) == nil {
		if reply.Message != "" {
			m.Message = reply.Message
		}
		if reply.Rule != nil {
			m.Rule = *reply.Rule
		}
		if reply.Index != nil {
			m.Index = *reply.Index
		}
	}
	return m, nil
}

// localize renders a catalog message in the client's language.
func (c *HTTPClient) localize(key string) string {
	return i18n.NewPrinter(i18n.MatchLanguage(c.language)).Sprintf(key)
}

// ListRules fetches the whole collection in server order.
func (c *HTTPClient) ListRules(ctx context.Context) ([]rules.Rule, error) {
	var out []rules.Rule
	if err := c.doRequest(ctx, http.MethodGet, "/rules", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []rules.Rule{}
	}
	return out, nil
}

// GetRule fetches one rule.
func (c *HTTPClient) GetRule(ctx context.Context, ref Ref) (rules.Rule, error) {
	var out rules.Rule
	err := c.doRequest(ctx, http.MethodGet, ref.path(), nil, &out)
	return out, err
}

// CreateRule appends r. Server-assigned fields in r are ignored.
// Index is -1 when the server does not report where the rule landed.
func (c *HTTPClient) CreateRule(ctx context.Context, r rules.Rule) (Mutation, error) {
	return c.mutate(ctx, http.MethodPost, "/rules", r.Content(), Mutation{
		Message: c.localize(i18n.MsgRuleAdded),
		Rule:    r.Content(),
		Index:   -1,
	})
}

// ReplaceRule overwrites the rule ref points at.
func (c *HTTPClient) ReplaceRule(ctx context.Context, ref Ref, r rules.Rule) (Mutation, error) {
	rule := r.Content()
	rule.ID = ref.ID
	return c.mutate(ctx, http.MethodPut, ref.path(), r.Content(), Mutation{
		Message: c.localize(i18n.MsgRuleUpdated),
		Rule:    rule,
		Index:   ref.Index,
	})
}

// DeleteRule removes the rule ref points at.
func (c *HTTPClient) DeleteRule(ctx context.Context, ref Ref) (Mutation, error) {
	return c.mutate(ctx, http.MethodDelete, ref.path(), nil, Mutation{
		Message: c.localize(i18n.MsgRuleDeleted),
		Rule:    rules.Rule{ID: ref.ID},
		Index:   ref.Index,
	})
}

// Health fetches /healthz.
func (c *HTTPClient) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.doRequest(ctx, http.MethodGet, "/healthz", nil, &out)
	return out, err
}
