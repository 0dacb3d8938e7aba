package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"grimm.is/pfw/internal/clock"
	"grimm.is/pfw/internal/logging"
	"grimm.is/pfw/internal/rules"
)

// FileStore keeps rules as a JSON array in a single file.
//
// The file is re-read on every operation so edits made by other tools are
// picked up. A missing file is created as "[]". Content that is not a JSON
// array at all is treated as an empty collection and replaced by the next
// write. An array with an entry that cannot be read as a rule fails every
// operation and is left untouched. Writes go to a temp file that is renamed
// into place.
type FileStore struct {
	listStore
	path   string
	mu     sync.Mutex
	closed bool
	log    *logging.Logger
}

// NewFileStore opens (creating if needed) the rules file at path.
func NewFileStore(path string, clk clock.Clock) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file store requires a path")
	}
	s := &FileStore{
		path: path,
		log:  logging.WithComponent("store"),
	}
	s.listStore = listStore{backend: s, st: stamper{clock: clock.OrReal(clk)}}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.save(nil); err != nil {
			return nil, fmt.Errorf("failed to create rules file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat rules file: %w", err)
	}
	return s, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() (ruleList, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return ruleList{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		if len(trimmed) > 0 {
			s.log.Warn("rules file is not a JSON array, treating as empty", "path", s.path)
		}
		return ruleList{}, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		s.log.Warn("rules file is corrupt, treating as empty", "path", s.path, "error", err)
		return ruleList{}, nil
	}

	// A well-formed array is never dropped: an entry that cannot be read
	// fails the operation so the next write does not overwrite it.
	list := make(ruleList, 0, len(raw))
	for i, el := range raw {
		r, err := decodeStoredRule(el)
		if err != nil {
			return nil, fmt.Errorf("rules file %s: entry %d: %w", s.path, i, err)
		}
		list = append(list, r)
	}
	return list, nil
}

var (
	textFields = []string{"id", "action", "src_ip", "port", "protocol", "start_time", "end_time"}
	sizeFields = []string{"size_min", "size_max"}
)

// decodeStoredRule reads one entry of the rules file. Files written by
// other tools may hold a numeric port or action, or a quoted size; those
// values are converted rather than rejected.
func decodeStoredRule(raw json.RawMessage) (rules.Rule, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return rules.Rule{}, fmt.Errorf("not a JSON object")
	}

	for _, k := range textFields {
		v, ok := fields[k]
		if !ok {
			continue
		}
		var scalar any
		if err := json.Unmarshal(v, &scalar); err != nil {
			return rules.Rule{}, fmt.Errorf("%s: %w", k, err)
		}
		switch scalar.(type) {
		case nil:
			delete(fields, k)
		case string:
		case float64, bool:
			fields[k], _ = json.Marshal(string(bytes.TrimSpace(v)))
		default:
			return rules.Rule{}, fmt.Errorf("%s: expected text, got %s", k, bytes.TrimSpace(v))
		}
	}

	for _, k := range sizeFields {
		v, ok := fields[k]
		if !ok {
			continue
		}
		var scalar any
		if err := json.Unmarshal(v, &scalar); err != nil {
			return rules.Rule{}, fmt.Errorf("%s: %w", k, err)
		}
		switch x := scalar.(type) {
		case nil:
			delete(fields, k)
		case float64:
			if x != math.Trunc(x) {
				return rules.Rule{}, fmt.Errorf("%s: %v is not an integer", k, x)
			}
			fields[k] = json.RawMessage(strconv.FormatInt(int64(x), 10))
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(x))
			if err != nil {
				return rules.Rule{}, fmt.Errorf("%s: %q is not an integer", k, x)
			}
			fields[k] = json.RawMessage(strconv.Itoa(n))
		default:
			return rules.Rule{}, fmt.Errorf("%s: expected an integer, got %s", k, bytes.TrimSpace(v))
		}
	}

	normalized, err := json.Marshal(fields)
	if err != nil {
		return rules.Rule{}, err
	}
	var r rules.Rule
	if err := json.Unmarshal(normalized, &r); err != nil {
		return rules.Rule{}, err
	}
	return r, nil
}

func (s *FileStore) save(list ruleList) error {
	if list == nil {
		list = ruleList{}
	}
	data, err := json.MarshalIndent(list, "", "    ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

func (s *FileStore) view(fn func(ruleList) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	list, err := s.load()
	if err != nil {
		return err
	}
	// Legacy entries get ids on first sight so positions and ids agree
	// across requests.
	if list.ensureIDs(s.st) {
		if err := s.save(list); err != nil {
			return fmt.Errorf("failed to persist assigned ids: %w", err)
		}
	}
	return fn(list)
}

func (s *FileStore) update(fn func(*ruleList) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	list, err := s.load()
	if err != nil {
		return err
	}
	list.ensureIDs(s.st)
	if err := fn(&list); err != nil {
		return err
	}
	if err := s.save(list); err != nil {
		return fmt.Errorf("failed to write rules file: %w", err)
	}
	return nil
}

// Close marks the store closed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ Store = (*FileStore)(nil)
var _ Store = (*MemoryStore)(nil)

