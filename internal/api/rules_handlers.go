package api

import (
	"errors"
	"net/http"
	"strconv"

	"grimm.is/pfw/internal/events"
	"grimm.is/pfw/internal/i18n"
	"grimm.is/pfw/internal/rules"
	"grimm.is/pfw/internal/store"
)

// MutationResponse is returned by POST, PUT and DELETE.
type MutationResponse struct {
	Message string     `json:"message"`
	Rule    rules.Rule `json:"rule"`
	Index   int        `json:"index"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Rules  int    `json:"rules"`
}

// ruleRef is a parsed {ref} path segment.
type ruleRef struct {
	index  int // -1 when addressed by id
	id     string
	expect string // ?expect=<id> on positional refs
}

func (ref ruleRef) positional() bool { return ref.index >= 0 }

func parseRef(r *http.Request) (ruleRef, bool) {
	raw := r.PathValue("ref")
	if raw == "" {
		return ruleRef{}, false
	}
	if !isDigits(raw) {
		return ruleRef{index: -1, id: raw}, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return ruleRef{}, false
	}
	return ruleRef{index: n, expect: r.URL.Query().Get("expect")}, true
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Hello World!"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Len(r.Context())
	if err != nil {
		s.logger.Error("health check failed", "error", err, "request_id", requestID(r))
		WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "error"})
		return
	}
	WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Rules: n})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		s.writeStoreError(w, r, ruleRef{}, err)
		return
	}
	if list == nil {
		list = []rules.Rule{}
	}
	WriteJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	ref, ok := parseRef(r)
	if !ok {
		WriteErrorCtx(w, r, http.StatusBadRequest, r.PathValue("ref"), i18n.MsgInvalidRef)
		return
	}

	var (
		rule rules.Rule
		err  error
	)
	if ref.positional() {
		rule, err = s.store.GetAt(r.Context(), ref.index)
		if err == nil && ref.expect != "" && rule.ID != ref.expect {
			err = store.ErrConflict
		}
	} else {
		rule, _, err = s.store.Get(r.Context(), ref.id)
	}
	if err != nil {
		s.writeStoreError(w, r, ref, err)
		return
	}
	WriteJSON(w, http.StatusOK, rule)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := s.decodeRule(w, r)
	if !ok {
		return
	}

	created, index, err := s.store.Create(r.Context(), rule)
	if err != nil {
		s.writeStoreError(w, r, ruleRef{}, err)
		return
	}

	s.publish(r, events.EventRuleCreated, index, created)
	p := i18n.GetPrinter(r.Context())
	WriteJSON(w, http.StatusCreated, MutationResponse{
		Message: p.Sprintf(i18n.MsgRuleAdded),
		Rule:    created,
		Index:   index,
	})
}

func (s *Server) handleReplaceRule(w http.ResponseWriter, r *http.Request) {
	ref, ok := parseRef(r)
	if !ok {
		WriteErrorCtx(w, r, http.StatusBadRequest, r.PathValue("ref"), i18n.MsgInvalidRef)
		return
	}
	rule, ok := s.decodeRule(w, r)
	if !ok {
		return
	}

	var (
		updated rules.Rule
		index   = ref.index
		err     error
	)
	if ref.positional() {
		updated, err = s.store.ReplaceAt(r.Context(), ref.index, ref.expect, rule)
	} else {
		updated, index, err = s.store.Replace(r.Context(), ref.id, rule)
	}
	if err != nil {
		s.writeStoreError(w, r, ref, err)
		return
	}

	s.publish(r, events.EventRuleUpdated, index, updated)
	p := i18n.GetPrinter(r.Context())
	WriteJSON(w, http.StatusOK, MutationResponse{
		Message: p.Sprintf(i18n.MsgRuleUpdated),
		Rule:    updated,
		Index:   index,
	})
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ref, ok := parseRef(r)
	if !ok {
		WriteErrorCtx(w, r, http.StatusBadRequest, r.PathValue("ref"), i18n.MsgInvalidRef)
		return
	}

	var (
		removed rules.Rule
		index   = ref.index
		err     error
	)
	if ref.positional() {
		removed, err = s.store.DeleteAt(r.Context(), ref.index, ref.expect)
	} else {
		removed, index, err = s.store.Delete(r.Context(), ref.id)
	}
	if err != nil {
		s.writeStoreError(w, r, ref, err)
		return
	}

	s.publish(r, events.EventRuleDeleted, index, removed)
	p := i18n.GetPrinter(r.Context())
	WriteJSON(w, http.StatusOK, MutationResponse{
		Message: p.Sprintf(i18n.MsgRuleDeleted),
		Rule:    removed,
		Index:   index,
	})
}

// decodeRule reads and validates the request body. It writes the error
// response itself and reports false on failure.
func (s *Server) decodeRule(w http.ResponseWriter, r *http.Request) (rules.Rule, bool) {
	rule, err := rules.DecodeJSON(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		var verr *rules.ValidationError
		switch {
		case errors.As(err, &tooLarge):
			WriteErrorCtx(w, r, http.StatusRequestEntityTooLarge, "", i18n.MsgBodyTooLarge)
		case errors.As(err, &verr):
			WriteErrorCtx(w, r, http.StatusBadRequest, verr.Error(), i18n.MsgInvalidRule)
		default:
			WriteErrorCtx(w, r, http.StatusBadRequest, err.Error(), i18n.MsgMalformedRule)
		}
		return rules.Rule{}, false
	}

	if err := rules.Validate(rule, s.mode); err != nil {
		WriteErrorCtx(w, r, http.StatusBadRequest, err.Error(), i18n.MsgInvalidRule)
		return rules.Rule{}, false
	}
	return rule.Content(), true
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, ref ruleRef, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteErrorCtx(w, r, http.StatusNotFound, err.Error(), i18n.MsgRuleNotFound)
	case errors.Is(err, store.ErrConflict):
		WriteErrorCtx(w, r, http.StatusConflict, err.Error(), i18n.MsgIndexConflict, ref.index)
	default:
		s.logger.Error("store operation failed", "method", r.Method, "path", r.URL.Path,
			"error", err, "request_id", requestID(r))
		WriteErrorCtx(w, r, http.StatusInternalServerError, "", i18n.MsgStorageFailure)
	}
}

func (s *Server) publish(r *http.Request, t events.EventType, index int, rule rules.Rule) {
	s.hub.EmitRuleChange(t, "api", index, rule)

	details := map[string]any{
		"index":      index,
		"rule":       rule.String(),
		"client":     getClientIP(r),
		"request_id": requestID(r),
	}
	if name := KeyName(r.Context()); name != "" {
		details["api_key"] = name
	}
	s.logger.Audit(string(t), rule.ID, details)
}
