package tui

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"grimm.is/pfw/internal/rules"
	"grimm.is/pfw/internal/validation"
)

// ruleForm backs the draft editor. Every field is text; sizes are parsed
// when the form is applied to the draft.
type ruleForm struct {
	Action    string `tui:"field=action,title=Action,desc=allow / deny / drop ...,suggest=allow|accept|deny|drop|block|reject"`
	SrcIP     string `tui:"field=src_ip,title=Source,desc=IP or CIDR; empty or any matches all"`
	Port      string `tui:"field=port,title=Port,desc=single port or range a-b"`
	Protocol  string `tui:"field=protocol,title=Protocol,suggest=tcp|udp|icmp|http|dns|any"`
	SizeMin   string `tui:"field=size_min,title=Min size,desc=bytes,validate=size"`
	SizeMax   string `tui:"field=size_max,title=Max size,desc=bytes; 0 means no limit,validate=size"`
	StartTime string `tui:"field=start_time,title=Active from,desc=HH:MM; leave empty for always,validate=clock"`
	EndTime   string `tui:"field=end_time,title=Active until,desc=HH:MM,validate=clock"`
}

func formFromDraft(d rules.Draft) *ruleForm {
	f := &ruleForm{}
	forEachField(f, func(field rules.Field, v reflect.Value) {
		v.SetString(d.Get(field))
	})
	return f
}

// values returns the form contents keyed by draft field, in display order.
func (f *ruleForm) values() []fieldValue {
	var out []fieldValue
	forEachField(f, func(field rules.Field, v reflect.Value) {
		out = append(out, fieldValue{field, v.String()})
	})
	return out
}

type fieldValue struct {
	field rules.Field
	text  string
}

func forEachField(f *ruleForm, fn func(rules.Field, reflect.Value)) {
	el := reflect.ValueOf(f).Elem()
	t := el.Type()
	for i := 0; i < el.NumField(); i++ {
		props := parseTag(t.Field(i).Tag.Get("tui"))
		name := props["field"]
		if name == "" {
			continue
		}
		field, err := rules.ParseField(name)
		if err != nil {
			panic(fmt.Sprintf("ruleForm.%s: %v", t.Field(i).Name, err))
		}
		fn(field, el.Field(i))
	}
}

// EditDraft shows the draft form on the terminal outside the console and
// returns d with the entered values.
func EditDraft(d rules.Draft) (rules.Draft, error) {
	f := formFromDraft(d)
	if err := AutoForm(f).Run(); err != nil {
		return d, err
	}
	for _, fv := range f.values() {
		if err := d.Set(fv.field, fv.text); err != nil {
			return d, err
		}
	}
	return d, nil
}

// AutoForm generates a huh.Form from a struct pointer using reflection.
// Only string fields with a `tui:"..."` tag are shown. Tag keys: title,
// desc, suggest (values separated by |) and validate (a Validators key).
func AutoForm(v any) *huh.Form {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		panic("AutoForm requires a pointer to a struct")
	}

	el := val.Elem()
	t := el.Type()
	var fields []huh.Field

	for i := 0; i < el.NumField(); i++ {
		field := el.Field(i)
		tag := t.Field(i).Tag.Get("tui")
		if tag == "" || field.Kind() != reflect.String {
			continue
		}
		props := parseTag(tag)

		title := props["title"]
		if title == "" {
			title = t.Field(i).Name
		}

		input := huh.NewInput().
			Title(title).
			Description(props["desc"]).
			Value(field.Addr().Interface().(*string))

		if s, ok := props["suggest"]; ok {
			input.Suggestions(strings.Split(s, "|"))
		}
		if vKey, ok := props["validate"]; ok {
			if validator, exists := Validators[vKey]; exists {
				input.Validate(validator)
			}
		}
		fields = append(fields, input)
	}

	return huh.NewForm(
		huh.NewGroup(fields...),
	).WithTheme(huh.ThemeBase16()).WithShowHelp(true)
}

// parseTag splits "key=val,key2=val2". Values may not contain commas.
func parseTag(tag string) map[string]string {
	res := make(map[string]string)
	for _, part := range strings.Split(tag, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			res[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return res
}

// Validators maps tag names to input checks.
var Validators = map[string]func(string) error{
	"size": func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("must be an integer")
		}
		if n < 0 {
			return fmt.Errorf("must not be negative")
		}
		return nil
	},
	"clock": validation.ValidateClockTime,
}
