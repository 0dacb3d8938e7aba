package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		accept   string
		expected language.Tag
	}{
		{"en-US,en;q=0.9", language.English},
		{"de-DE,de;q=0.9", language.German},
		{"fr-FR", language.English}, // Fallback
		{"", language.English},      // Empty
	}

	for _, tt := range tests {
		got := MatchLanguage(tt.accept)
		base, _ := got.Base()
		exp, _ := tt.expected.Base()
		assert.Equal(t, exp, base, "Accept: %s", tt.accept)
	}
}

func TestMiddlewareTranslates(t *testing.T) {
	var got string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetPrinter(r.Context()).Sprintf(MsgRuleNotFound)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Language", "de")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "Regel nicht gefunden", got)

	req = httptest.NewRequest("GET", "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "rule not found", got)
}

func TestPrinterFormatsArgs(t *testing.T) {
	p := NewPrinter(language.German)
	assert.Equal(t, "Regel an Position 3 wurde geändert", p.Sprintf(MsgIndexConflict, 3))

	assert.Equal(t, "rule at index 3 has changed", GetPrinter(context.Background()).Sprintf(MsgIndexConflict, 3))
}

func TestCLILanguage(t *testing.T) {
	tests := []struct {
		lcAll, lang string
		want        language.Base
	}{
		{"", "de_DE.UTF-8", mustBase(language.German)},
		{"en_US.UTF-8", "de_DE.UTF-8", mustBase(language.English)},
		{"", "C", mustBase(language.English)},
		{"", "", mustBase(language.English)},
		{"", "ja_JP", mustBase(language.English)},
	}
	for _, tt := range tests {
		t.Setenv("LC_ALL", tt.lcAll)
		t.Setenv("LANG", tt.lang)
		base, _ := CLILanguage().Base()
		assert.Equal(t, tt.want, base, "LC_ALL=%q LANG=%q", tt.lcAll, tt.lang)
	}
	assert.NotNil(t, NewCLIPrinter())
}

func mustBase(tag language.Tag) language.Base {
	b, _ := tag.Base()
	return b
}
