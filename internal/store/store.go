// Package store holds the ordered rule collection behind the HTTP API.
//
// Every backend keeps rules in insertion order. Replace keeps a rule's
// position, identity and creation time; delete shifts later rules down by
// one. Rules are addressed either by stable id or by position; positional
// mutations may name the id they expect to find there, in which case a
// mismatch fails with ErrConflict and nothing changes.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"grimm.is/pfw/internal/clock"
	"grimm.is/pfw/internal/rules"
)

// Common errors
var (
	ErrNotFound = errors.New("rule not found")
	ErrConflict = errors.New("rule at index does not match expected id")
	ErrClosed   = errors.New("store is closed")
)

// Kind names a storage backend.
type Kind string

const (
	KindMemory Kind = "memory"
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
)

// Store is the rule collection.
type Store interface {
	// List returns all rules in order.
	List(ctx context.Context) ([]rules.Rule, error)
	// Get returns the rule with id and its current position.
	Get(ctx context.Context, id string) (rules.Rule, int, error)
	// GetAt returns the rule at index.
	GetAt(ctx context.Context, index int) (rules.Rule, error)
	// Create appends r, assigning id and timestamps.
	Create(ctx context.Context, r rules.Rule) (rules.Rule, int, error)
	// Replace overwrites the rule with id, keeping its position.
	Replace(ctx context.Context, id string, r rules.Rule) (rules.Rule, int, error)
	// ReplaceAt overwrites the rule at index. A non-empty expectID must
	// match the id currently at index.
	ReplaceAt(ctx context.Context, index int, expectID string, r rules.Rule) (rules.Rule, error)
	// Delete removes the rule with id and returns it with its old position.
	Delete(ctx context.Context, id string) (rules.Rule, int, error)
	// DeleteAt removes the rule at index, guarded by expectID like ReplaceAt.
	DeleteAt(ctx context.Context, index int, expectID string) (rules.Rule, error)
	// Len returns the number of rules.
	Len(ctx context.Context) (int, error)
	Close() error
}

// Options configures a store.
type Options struct {
	Kind  Kind
	Path  string      // file or database path; ignored for memory
	Clock clock.Clock // time source for created_at/updated_at (defaults to real time)
}

// Open creates the backend named by opts.Kind.
func Open(opts Options) (Store, error) {
	switch opts.Kind {
	case KindMemory, "":
		return NewMemoryStore(opts.Clock), nil
	case KindFile:
		return NewFileStore(opts.Path, opts.Clock)
	case KindSQLite:
		return NewSQLiteStore(opts.Path, opts.Clock)
	}
	return nil, fmt.Errorf("unknown store kind %q", opts.Kind)
}

// stamper assigns ids and timestamps on behalf of every backend.
type stamper struct {
	clock clock.Clock
}

func (s stamper) now() time.Time {
	return s.clock.Now().UTC()
}

func (s stamper) created(r rules.Rule) rules.Rule {
	now := s.now()
	r.ID = uuid.NewString()
	r.CreatedAt = now
	r.UpdatedAt = now
	return r
}

func (s stamper) replaced(old, r rules.Rule) rules.Rule {
	r.ID = old.ID
	r.CreatedAt = old.CreatedAt
	r.UpdatedAt = s.now()
	return r
}

// ruleList implements the ordering rules on a plain slice. The memory and
// file backends both build on it; callers provide the locking.
type ruleList []rules.Rule

func (l ruleList) indexOf(id string) int {
	for i, r := range l {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (l ruleList) at(index int, expectID string) (rules.Rule, error) {
	if index < 0 || index >= len(l) {
		return rules.Rule{}, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	if expectID != "" && l[index].ID != expectID {
		return rules.Rule{}, fmt.Errorf("index %d holds %q, expected %q: %w", index, l[index].ID, expectID, ErrConflict)
	}
	return l[index], nil
}

func (l ruleList) byID(id string) (rules.Rule, int, error) {
	i := l.indexOf(id)
	if i < 0 {
		return rules.Rule{}, -1, fmt.Errorf("id %q: %w", id, ErrNotFound)
	}
	return l[i], i, nil
}

func (l ruleList) clone() []rules.Rule {
	out := make([]rules.Rule, len(l))
	copy(out, l)
	return out
}

func (l *ruleList) removeAt(index int) {
	*l = append((*l)[:index], (*l)[index+1:]...)
}

// ensureIDs gives every id-less rule a fresh id and reports whether any
// were assigned. Rules written by older tools carry no id.
func (l ruleList) ensureIDs(st stamper) bool {
	changed := false
	for i := range l {
		if l[i].ID == "" {
			l[i].ID = uuid.NewString()
			if l[i].CreatedAt.IsZero() {
				l[i].CreatedAt = st.now()
				l[i].UpdatedAt = l[i].CreatedAt
			}
			changed = true
		}
	}
	return changed
}
