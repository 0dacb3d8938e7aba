// Package rules defines the firewall rule record shared by the rule store,
// the HTTP API and the console, together with the editable Draft and the
// validation that both sides apply.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Rule is a single firewall rule record. The store owns ordering and
// identity; ID, CreatedAt and UpdatedAt are assigned server-side.
type Rule struct {
	ID        string    `json:"id,omitempty" yaml:"id,omitempty"`
	Action    string    `json:"action" yaml:"action"`
	SrcIP     string    `json:"src_ip" yaml:"src_ip"`
	Port      string    `json:"port" yaml:"port"`
	Protocol  string    `json:"protocol" yaml:"protocol"`
	SizeMin   int       `json:"size_min" yaml:"size_min"`
	SizeMax   int       `json:"size_max" yaml:"size_max"`
	StartTime string    `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	EndTime   string    `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero" yaml:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero" yaml:"updated_at,omitempty"`
}

// Content returns a copy of r with server-assigned fields cleared.
// Two rules with equal Content describe the same filter.
func (r Rule) Content() Rule {
	r.ID = ""
	r.CreatedAt = time.Time{}
	r.UpdatedAt = time.Time{}
	return r
}

// SameContent reports whether a and b describe the same filter.
func SameContent(a, b Rule) bool {
	return a.Content() == b.Content()
}

// String renders the rule on one line, the way the console lists it.
func (r Rule) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s port=%s proto=%s size=%d-%d",
		orDash(r.Action), orDash(r.SrcIP), orDash(r.Port), orDash(r.Protocol), r.SizeMin, r.SizeMax)
	if r.StartTime != "" || r.EndTime != "" {
		fmt.Fprintf(&b, " time=%s-%s", orDash(r.StartTime), orDash(r.EndTime))
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// ActiveAt reports whether the rule's time window covers t.
// Rules without both start and end time are always active. Windows that
// wrap midnight ("22:00"-"06:00") are supported.
func (r Rule) ActiveAt(t time.Time) bool {
	if r.StartTime == "" || r.EndTime == "" {
		return true
	}
	start, err1 := minuteOfDay(r.StartTime)
	end, err2 := minuteOfDay(r.EndTime)
	if err1 != nil || err2 != nil {
		return true
	}
	now := t.Hour()*60 + t.Minute()
	if start <= end {
		return start <= now && now <= end
	}
	return now >= start || now <= end
}

func minuteOfDay(hhmm string) (int, error) {
	ts, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, err
	}
	return ts.Hour()*60 + ts.Minute(), nil
}

// DecodeJSON reads a single rule from r. Unknown fields are ignored.
// A size that is not a JSON integer yields a *ValidationError.
func DecodeJSON(r io.Reader) (Rule, error) {
	var rule Rule
	if err := json.NewDecoder(r).Decode(&rule); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && (typeErr.Field == "size_min" || typeErr.Field == "size_max") {
			return Rule{}, &ValidationError{Field: typeErr.Field, Value: typeErr.Value, Reason: "must be an integer"}
		}
		return Rule{}, fmt.Errorf("malformed rule JSON: %w", err)
	}
	return rule, nil
}
