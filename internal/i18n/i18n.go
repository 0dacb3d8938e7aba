// Package i18n localizes the messages the API and CLI show to people.
package i18n

import (
	"context"
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang is the fallback language
var DefaultLang = language.English

// SupportedLangs are the languages we support
var SupportedLangs = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(SupportedLangs)

type contextKey struct{}

// printerKey is the key used to store the printer in the context
var printerKey = contextKey{}

// Message keys. The English text doubles as the key.
const (
	MsgRuleAdded       = "Rule added"
	MsgRuleUpdated     = "Rule updated"
	MsgRuleDeleted     = "Rule deleted"
	MsgRuleNotFound    = "rule not found"
	MsgIndexConflict   = "rule at index %d has changed"
	MsgMalformedRule   = "malformed rule"
	MsgInvalidRule     = "invalid rule"
	MsgInvalidRef      = "invalid rule reference"
	MsgBodyTooLarge    = "request body too large"
	MsgRateLimited     = "rate limit exceeded"
	MsgUnauthorized    = "missing or invalid API key"
	MsgStorageFailure  = "storage failure"
	MsgNoRules         = "No rules."
	MsgRulesCount      = "%d rule(s)"
	MsgServerUnreached = "cannot reach server at %s"
	MsgKeyRejected     = "pass --api-key or set api_key in the console block"
	MsgListChanged     = "run 'pfw rules list' for the current rules"
)

func init() {
	de := language.German
	for key, text := range map[string]string{
		MsgRuleAdded:       "Regel hinzugefügt",
		MsgRuleUpdated:     "Regel aktualisiert",
		MsgRuleDeleted:     "Regel gelöscht",
		MsgRuleNotFound:    "Regel nicht gefunden",
		MsgIndexConflict:   "Regel an Position %d wurde geändert",
		MsgMalformedRule:   "fehlerhafte Regel",
		MsgInvalidRule:     "ungültige Regel",
		MsgInvalidRef:      "ungültiger Regelverweis",
		MsgBodyTooLarge:    "Anfrage zu groß",
		MsgRateLimited:     "Anfragelimit überschritten",
		MsgUnauthorized:    "fehlender oder ungültiger API-Schlüssel",
		MsgStorageFailure:  "Speicherfehler",
		MsgNoRules:         "Keine Regeln.",
		MsgRulesCount:      "%d Regel(n)",
		MsgServerUnreached: "Server unter %s nicht erreichbar",
		MsgKeyRejected:     "--api-key angeben oder api_key im console-Block setzen",
		MsgListChanged:     "'pfw rules list' zeigt die aktuellen Regeln",
	} {
		_ = message.SetString(de, key, text)
	}
}

// MatchLanguage returns the best matching language for the given tags
func MatchLanguage(acceptLang string) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(acceptLang)
	tag, _, _ := matcher.Match(tags...)
	return tag
}

// NewPrinter returns a message printer for the given language
func NewPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

// WithPrinter returns a new context with the printer injected
func WithPrinter(ctx context.Context, p *message.Printer) context.Context {
	return context.WithValue(ctx, printerKey, p)
}

// GetPrinter returns the printer from the context, or a default one
func GetPrinter(ctx context.Context) *message.Printer {
	p, ok := ctx.Value(printerKey).(*message.Printer)
	if !ok {
		return message.NewPrinter(DefaultLang)
	}
	return p
}

// NewCLIPrinter returns a printer for the system's locale (from env vars)
func NewCLIPrinter() *message.Printer {
	return message.NewPrinter(CLILanguage())
}

// CLILanguage resolves LC_ALL / LANG ("de_DE.UTF-8") to a supported tag.
func CLILanguage() language.Tag {
	lang := os.Getenv("LC_ALL")
	if lang == "" {
		lang = os.Getenv("LANG")
	}
	if lang == "" || lang == "C" || lang == "POSIX" {
		return DefaultLang
	}

	// Strip encoding (e.g. .UTF-8) if present
	if i := strings.Index(lang, "."); i != -1 {
		lang = lang[:i]
	}
	lang = strings.ReplaceAll(lang, "_", "-")

	tag, err := language.Parse(lang)
	if err != nil {
		return MatchLanguage(lang)
	}
	tag, _, _ = matcher.Match(tag)
	return tag
}
