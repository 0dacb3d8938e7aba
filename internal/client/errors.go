package client

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkError is a failure to reach the server or read its reply.
type NetworkError struct {
	Op  string // "GET /rules"
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a timeout.
func (e *NetworkError) Timeout() bool {
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// ServerError is any non-2xx answer from the server.
type ServerError struct {
	Status  int
	Message string
	Details string
}

func (e *ServerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Details != "" {
		return fmt.Sprintf("server returned %d: %s (%s)", e.Status, msg, e.Details)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, msg)
}

// IsNotFound reports a 404.
func (e *ServerError) IsNotFound() bool { return e.Status == http.StatusNotFound }

// IsConflict reports a 409, the answer to a stale positional request.
func (e *ServerError) IsConflict() bool { return e.Status == http.StatusConflict }

// IsUnauthorized reports a 401.
func (e *ServerError) IsUnauthorized() bool { return e.Status == http.StatusUnauthorized }

// DecodeError is a successful response whose body was not the expected JSON.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a ServerError with status 404.
func IsNotFound(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.IsNotFound()
}

// IsConflict reports whether err is a ServerError with status 409.
func IsConflict(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.IsConflict()
}

// IsUnauthorized reports whether err is a ServerError with status 401.
func IsUnauthorized(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.IsUnauthorized()
}
