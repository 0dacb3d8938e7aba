package store

import (
	"context"

	"grimm.is/pfw/internal/rules"
)

// listBackend supplies locked access to a ruleList.
type listBackend interface {
	view(fn func(ruleList) error) error
	update(fn func(*ruleList) error) error
}

// listStore implements Store on top of a listBackend.
type listStore struct {
	backend listBackend
	st      stamper
}

func (s *listStore) List(ctx context.Context) ([]rules.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []rules.Rule
	err := s.backend.view(func(l ruleList) error {
		out = l.clone()
		return nil
	})
	return out, err
}

func (s *listStore) Get(ctx context.Context, id string) (rules.Rule, int, error) {
	if err := ctx.Err(); err != nil {
		return rules.Rule{}, -1, err
	}
	var (
		r   rules.Rule
		idx int
	)
	err := s.backend.view(func(l ruleList) error {
		var err error
		r, idx, err = l.byID(id)
		return err
	})
	return r, idx, err
}

func (s *listStore) GetAt(ctx context.Context, index int) (rules.Rule, error) {
	if err := ctx.Err(); err != nil {
		return rules.Rule{}, err
	}
	var r rules.Rule
	err := s.backend.view(func(l ruleList) error {
		var err error
		r, err = l.at(index, "")
		return err
	})
	return r, err
}

func (s *listStore) Create(ctx context.Context, r rules.Rule) (rules.Rule, int, error) {
	if err := ctx.Err(); err != nil {
		return rules.Rule{}, -1, err
	}
	var idx int
	r = s.st.created(r)
	err := s.backend.update(func(l *ruleList) error {
		*l = append(*l, r)
		idx = len(*l) - 1
		return nil
	})
	if err != nil {
		return rules.Rule{}, -1, err
	}
	return r, idx, nil
}

func (s *listStore) Replace(ctx context.Context, id string, r rules.Rule) (rules.Rule, int, error) {
	if err := ctx.Err(); err != nil {
		return rules.Rule{}, -1, err
	}
	var idx int
	err := s.backend.update(func(l *ruleList) error {
		old, i, err := l.byID(id)
		if err != nil {
			return err
		}
		r = s.st.replaced(old, r)
		(*l)[i] = r
		idx = i
		return nil
	})
	if err != nil {
		return rules.Rule{}, -1, err
	}
	return r, idx, nil
}

func (s *listStore) ReplaceAt(ctx context.Context, index int, expectID string, r rules.Rule) (rules.Rule, error) {
	if err := ctx.Err(); err != nil {
		return rules.Rule{}, err
	}
	err := s.backend.update(func(l *ruleList) error {
		old, err := l.at(index, expectID)
		if err != nil {
			return err
		}
		r = s.st.replaced(old, r)
		(*l)[index] = r
		return nil
	})
	if err != nil {
		return rules.Rule{}, err
	}
	return r, nil
}

func (s *listStore) Delete(ctx context.Context, id string) (rules.Rule, int, error) {
	if err := ctx.Err(); err != nil {
		return rules.Rule{}, -1, err
	}
	var (
		old rules.Rule
		idx int
	)
	err := s.backend.update(func(l *ruleList) error {
		var err error
		old, idx, err = l.byID(id)
		if err != nil {
			return err
		}
		l.removeAt(idx)
		return nil
	})
	if err != nil {
		return rules.Rule{}, -1, err
	}
	return old, idx, nil
}

func (s *listStore) DeleteAt(ctx context.Context, index int, expectID string) (rules.Rule, error) {
	if err := ctx.Err(); err != nil {
		return rules.Rule{}, err
	}
	var old rules.Rule
	err := s.backend.update(func(l *ruleList) error {
		var err error
		old, err = l.at(index, expectID)
		if err != nil {
			return err
		}
		l.removeAt(index)
		return nil
	})
	if err != nil {
		return rules.Rule{}, err
	}
	return old, nil
}

func (s *listStore) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := s.backend.view(func(l ruleList) error {
		n = len(l)
		return nil
	})
	return n, err
}
