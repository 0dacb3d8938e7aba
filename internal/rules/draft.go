package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// Field names a draft field. Values match the JSON keys of Rule.
type Field string

const (
	FieldAction    Field = "action"
	FieldSrcIP     Field = "src_ip"
	FieldPort      Field = "port"
	FieldProtocol  Field = "protocol"
	FieldSizeMin   Field = "size_min"
	FieldSizeMax   Field = "size_max"
	FieldStartTime Field = "start_time"
	FieldEndTime   Field = "end_time"
)

// DraftFields lists the editable fields in display order.
var DraftFields = []Field{
	FieldAction, FieldSrcIP, FieldPort, FieldProtocol,
	FieldSizeMin, FieldSizeMax, FieldStartTime, FieldEndTime,
}

// ParseField maps a field name to a Field.
func ParseField(name string) (Field, error) {
	for _, f := range DraftFields {
		if string(f) == name {
			return f, nil
		}
	}
	return "", &ValidationError{Field: name, Reason: "unknown field"}
}

// Draft is the single in-progress rule being composed or edited.
//
// Size fields keep the raw text the user typed next to the last value that
// parsed. A bad keystroke never clobbers the parsed value, but the draft
// cannot be turned into a Rule until the text parses again.
type Draft struct {
	Action    string
	SrcIP     string
	Port      string
	Protocol  string
	StartTime string
	EndTime   string

	sizeMinText string
	sizeMaxText string
	sizeMin     int
	sizeMax     int
}

// NewDraft returns an empty draft with sizes at 0.
func NewDraft() Draft {
	return Draft{sizeMinText: "0", sizeMaxText: "0"}
}

// DraftFromRule copies the user-editable fields of r into a draft.
func DraftFromRule(r Rule) Draft {
	return Draft{
		Action:      r.Action,
		SrcIP:       r.SrcIP,
		Port:        r.Port,
		Protocol:    r.Protocol,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		sizeMinText: strconv.Itoa(r.SizeMin),
		sizeMaxText: strconv.Itoa(r.SizeMax),
		sizeMin:     r.SizeMin,
		sizeMax:     r.SizeMax,
	}
}

// Set updates one field. Text fields accept anything. Size fields store the
// text and, if it is an integer (empty means 0), the parsed value; otherwise
// a *ValidationError is returned and the previous parsed value stays.
func (d *Draft) Set(field Field, text string) error {
	switch field {
	case FieldAction:
		d.Action = text
	case FieldSrcIP:
		d.SrcIP = text
	case FieldPort:
		d.Port = text
	case FieldProtocol:
		d.Protocol = text
	case FieldStartTime:
		d.StartTime = text
	case FieldEndTime:
		d.EndTime = text
	case FieldSizeMin:
		d.sizeMinText = text
		n, err := parseSize(field, text)
		if err != nil {
			return err
		}
		d.sizeMin = n
	case FieldSizeMax:
		d.sizeMaxText = text
		n, err := parseSize(field, text)
		if err != nil {
			return err
		}
		d.sizeMax = n
	default:
		return &ValidationError{Field: string(field), Reason: "unknown field"}
	}
	return nil
}

// Get returns the text currently shown for field.
func (d Draft) Get(field Field) string {
	switch field {
	case FieldAction:
		return d.Action
	case FieldSrcIP:
		return d.SrcIP
	case FieldPort:
		return d.Port
	case FieldProtocol:
		return d.Protocol
	case FieldStartTime:
		return d.StartTime
	case FieldEndTime:
		return d.EndTime
	case FieldSizeMin:
		return d.sizeMinText
	case FieldSizeMax:
		return d.sizeMaxText
	}
	return ""
}

// SizeMin returns the last successfully parsed minimum size.
func (d Draft) SizeMin() int { return d.sizeMin }

// SizeMax returns the last successfully parsed maximum size.
func (d Draft) SizeMax() int { return d.sizeMax }

// Rule converts the draft to a Rule ready to send. It fails with a
// *ValidationError when a size field holds text that does not parse.
func (d Draft) Rule() (Rule, error) {
	if _, err := parseSize(FieldSizeMin, d.sizeMinText); err != nil {
		return Rule{}, err
	}
	if _, err := parseSize(FieldSizeMax, d.sizeMaxText); err != nil {
		return Rule{}, err
	}
	return d.Preview(), nil
}

// IsEmpty reports whether the draft is untouched.
func (d Draft) IsEmpty() bool {
	return d == NewDraft()
}

// Preview is Rule without the parse check, for display.
func (d Draft) Preview() Rule {
	return Rule{
		Action:    d.Action,
		SrcIP:     d.SrcIP,
		Port:      d.Port,
		Protocol:  d.Protocol,
		SizeMin:   d.sizeMin,
		SizeMax:   d.sizeMax,
		StartTime: d.StartTime,
		EndTime:   d.EndTime,
	}
}

func parseSize(field Field, text string) (int, error) {
	t := strings.TrimSpace(text)
	if t == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(t)
	if err != nil {
		return 0, &ValidationError{Field: string(field), Value: text, Reason: "must be an integer"}
	}
	return n, nil
}

// String is used in debug logs.
func (d Draft) String() string {
	return fmt.Sprintf("draft{%s}", d.Preview())
}
