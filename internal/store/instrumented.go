package store

import (
	"context"
	"errors"

	"grimm.is/pfw/internal/rules"
)

// OpRecorder receives one observation per store call.
type OpRecorder interface {
	ObserveStoreOp(op, result string)
	SetRuleCount(n int)
}

// Result labels
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultConflict = "conflict"
	ResultError    = "error"
)

// Instrumented wraps a Store and reports every call to rec.
type Instrumented struct {
	Store
	rec OpRecorder
}

// WithRecorder wraps s so each call is reported to rec. The rule count is
// refreshed after every successful mutation.
func WithRecorder(s Store, rec OpRecorder) *Instrumented {
	return &Instrumented{Store: s, rec: rec}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrNotFound):
		return ResultNotFound
	case errors.Is(err, ErrConflict):
		return ResultConflict
	}
	return ResultError
}

func (s *Instrumented) observe(ctx context.Context, op string, err error, mutation bool) {
	s.rec.ObserveStoreOp(op, resultOf(err))
	if mutation && err == nil {
		if n, lerr := s.Store.Len(ctx); lerr == nil {
			s.rec.SetRuleCount(n)
		}
	}
}

func (s *Instrumented) List(ctx context.Context) ([]rules.Rule, error) {
	out, err := s.Store.List(ctx)
	s.observe(ctx, "list", err, false)
	if err == nil {
		s.rec.SetRuleCount(len(out))
	}
	return out, err
}

func (s *Instrumented) Get(ctx context.Context, id string) (rules.Rule, int, error) {
	r, i, err := s.Store.Get(ctx, id)
	s.observe(ctx, "get", err, false)
	return r, i, err
}

func (s *Instrumented) GetAt(ctx context.Context, index int) (rules.Rule, error) {
	r, err := s.Store.GetAt(ctx, index)
	s.observe(ctx, "get", err, false)
	return r, err
}

func (s *Instrumented) Create(ctx context.Context, r rules.Rule) (rules.Rule, int, error) {
	out, i, err := s.Store.Create(ctx, r)
	s.observe(ctx, "create", err, true)
	return out, i, err
}

func (s *Instrumented) Replace(ctx context.Context, id string, r rules.Rule) (rules.Rule, int, error) {
	out, i, err := s.Store.Replace(ctx, id, r)
	s.observe(ctx, "replace", err, true)
	return out, i, err
}

func (s *Instrumented) ReplaceAt(ctx context.Context, index int, expectID string, r rules.Rule) (rules.Rule, error) {
	out, err := s.Store.ReplaceAt(ctx, index, expectID, r)
	s.observe(ctx, "replace", err, true)
	return out, err
}

func (s *Instrumented) Delete(ctx context.Context, id string) (rules.Rule, int, error) {
	out, i, err := s.Store.Delete(ctx, id)
	s.observe(ctx, "delete", err, true)
	return out, i, err
}

func (s *Instrumented) DeleteAt(ctx context.Context, index int, expectID string) (rules.Rule, error) {
	out, err := s.Store.DeleteAt(ctx, index, expectID)
	s.observe(ctx, "delete", err, true)
	return out, err
}
