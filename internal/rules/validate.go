package rules

import (
	"strconv"

	"grimm.is/pfw/internal/validation"
)

// Mode selects how much semantic checking Validate performs.
type Mode int

const (
	// Lenient checks only what the store needs to stay consistent:
	// non-negative sizes and well-formed time-of-day fields.
	Lenient Mode = iota
	// Strict additionally checks action, address, port and protocol
	// vocabulary and the size range.
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "lenient"
}

// Validate checks r under mode and returns ValidationErrors, or nil.
func Validate(r Rule, mode Mode) error {
	var errs ValidationErrors
	add := func(field, value string, err error) {
		if err != nil {
			errs = append(errs, &ValidationError{Field: field, Value: value, Reason: err.Error()})
		}
	}

	if r.SizeMin < 0 {
		errs = append(errs, &ValidationError{Field: "size_min", Value: strconv.Itoa(r.SizeMin), Reason: "must not be negative"})
	}
	if r.SizeMax < 0 {
		errs = append(errs, &ValidationError{Field: "size_max", Value: strconv.Itoa(r.SizeMax), Reason: "must not be negative"})
	}
	add("start_time", r.StartTime, validation.ValidateClockTime(r.StartTime))
	add("end_time", r.EndTime, validation.ValidateClockTime(r.EndTime))

	if mode == Strict {
		add("action", r.Action, validation.ValidateAction(r.Action))
		add("src_ip", r.SrcIP, validation.ValidateSourceAddress(r.SrcIP))
		add("port", r.Port, validation.ValidatePortSpec(r.Port))
		add("protocol", r.Protocol, validation.ValidateProtocol(r.Protocol))
		if r.SizeMax != 0 && r.SizeMin > r.SizeMax {
			errs = append(errs, &ValidationError{Field: "size_max", Value: strconv.Itoa(r.SizeMax), Reason: "must be >= size_min"})
		}
		if (r.StartTime == "") != (r.EndTime == "") {
			errs = append(errs, &ValidationError{Field: "end_time", Value: r.EndTime, Reason: "start_time and end_time must be set together"})
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
