// Package console holds the rule console's session state: the last fetched
// rule list, the draft being composed and the edit context.
//
// State is single-writer. The TUI owns one and applies every result to it
// from its Update loop; the CLI creates one per invocation.
package console

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"grimm.is/pfw/internal/client"
	"grimm.is/pfw/internal/logging"
	"grimm.is/pfw/internal/rules"
)

// State is the console's view of the rule store.
type State struct {
	api    client.RulesAPI
	logger *logging.Logger
	now    func() time.Time

	rules     []rules.Rule
	fetchedAt time.Time

	draft     rules.Draft
	editing   bool
	editIndex int
	editRef   client.Ref
}

// New returns an empty state bound to api. A nil logger discards.
func New(api client.RulesAPI, logger *logging.Logger) *State {
	if logger == nil {
		logger = logging.Discard()
	}
	return &State{
		api:       api,
		logger:    logger,
		now:       time.Now,
		draft:     rules.NewDraft(),
		editIndex: -1,
	}
}

// Clone returns an independent copy. The TUI runs each network operation on
// a clone and swaps it in when the operation finishes.
func (s *State) Clone() *State {
	c := *s
	c.rules = s.Rules()
	return &c
}

// Rules returns a copy of the last fetched collection in server order.
func (s *State) Rules() []rules.Rule {
	out := make([]rules.Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// FetchedAt is when the collection was last refreshed; zero before the first fetch.
func (s *State) FetchedAt() time.Time { return s.fetchedAt }

// Draft returns the current draft.
func (s *State) Draft() rules.Draft { return s.draft }

// Editing reports whether the draft targets an existing rule, and the
// index that rule had when editing started.
func (s *State) Editing() (bool, int) { return s.editing, s.editIndex }

// EditRef is the address a submit will replace. Only meaningful while editing.
func (s *State) EditRef() client.Ref { return s.editRef }

// FetchRules replaces the local collection with the server's. On error the
// previous collection is kept.
func (s *State) FetchRules(ctx context.Context) error {
	list, err := s.api.ListRules(ctx)
	if err != nil {
		s.logger.Warn("fetch rules failed", "error", err)
		return err
	}
	s.rules = list
	s.fetchedAt = s.now()
	s.logger.Debug("fetched rules", "count", len(list))
	return nil
}

// SetField updates one draft field locally. A size field given text that is
// not an integer returns a *rules.ValidationError and keeps its last value.
func (s *State) SetField(field rules.Field, text string) error {
	return s.draft.Set(field, text)
}

// SetDraft replaces the whole draft, e.g. from a completed form.
func (s *State) SetDraft(d rules.Draft) { s.draft = d }

// EditRule copies the rule at index into the draft and enters edit mode.
// Any previous edit context is discarded.
func (s *State) EditRule(index int) error {
	r, err := s.at(index)
	if err != nil {
		return err
	}
	s.draft = rules.DraftFromRule(r)
	s.editing = true
	s.editIndex = index
	s.editRef = client.RefFor(r, index)
	return nil
}

// CancelEdit clears the draft and leaves edit mode.
func (s *State) CancelEdit() {
	s.resetDraft()
}

// SubmitDraft creates the draft as a new rule, or replaces the edited rule.
// The draft and edit mode survive a failed mutation. After a successful one
// they are cleared and the collection is re-fetched; a failed re-fetch is
// returned wrapped next to the successful Mutation.
func (s *State) SubmitDraft(ctx context.Context) (client.Mutation, error) {
	r, err := s.draft.Rule()
	if err != nil {
		return client.Mutation{}, err
	}

	var m client.Mutation
	if s.editing {
		m, err = s.api.ReplaceRule(ctx, s.editRef, r)
	} else {
		m, err = s.api.CreateRule(ctx, r)
	}
	if err != nil {
		s.logger.Warn("submit failed", "editing", s.editing, "ref", s.editRef.String(), "error", err)
		return client.Mutation{}, err
	}

	s.logger.Info("rule saved", "id", m.Rule.ID, "index", m.Index, "message", m.Message)
	s.resetDraft()
	if err := s.FetchRules(ctx); err != nil {
		return m, fmt.Errorf("refresh after submit: %w", err)
	}
	return m, nil
}

// DeleteRule removes the rule at index of the last fetched list, then
// re-fetches. An index outside that list fails without a request.
func (s *State) DeleteRule(ctx context.Context, index int) (client.Mutation, error) {
	r, err := s.at(index)
	if err != nil {
		return client.Mutation{}, err
	}
	ref := client.RefFor(r, index)
	m, err := s.api.DeleteRule(ctx, ref)
	if err != nil {
		s.logger.Warn("delete failed", "ref", ref.String(), "error", err)
		return client.Mutation{}, err
	}
	s.logger.Info("rule deleted", "id", r.ID, "index", index)
	s.shiftEdit(index, r.ID)

	if err := s.FetchRules(ctx); err != nil {
		return m, fmt.Errorf("refresh after delete: %w", err)
	}
	return m, nil
}

// shiftEdit keeps a positional edit pointing at the same rule after the rule
// at deleted was removed. Edits addressed by id need nothing.
func (s *State) shiftEdit(deleted int, id string) {
	if !s.editing {
		return
	}
	if s.editRef.ID != "" {
		if s.editRef.ID == id {
			s.editing, s.editIndex, s.editRef = false, -1, client.Ref{}
		}
		return
	}
	switch {
	case deleted == s.editIndex:
		s.editing, s.editIndex, s.editRef = false, -1, client.Ref{}
	case deleted < s.editIndex:
		s.editIndex--
		s.editRef = client.At(s.editIndex, s.editRef.Expect)
	}
}

func (s *State) at(index int) (rules.Rule, error) {
	if index < 0 || index >= len(s.rules) {
		return rules.Rule{}, &rules.ValidationError{
			Field:  "index",
			Value:  strconv.Itoa(index),
			Reason: fmt.Sprintf("out of range (have %d rules)", len(s.rules)),
		}
	}
	return s.rules[index], nil
}

func (s *State) resetDraft() {
	s.draft = rules.NewDraft()
	s.editing = false
	s.editIndex = -1
	s.editRef = client.Ref{}
}
