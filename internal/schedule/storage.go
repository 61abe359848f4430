package schedule

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State partitions stored schedules by approval status. Each state maps to
// a subdirectory of the store's base path.
type State string

const (
	StateActive           State = "Active"
	StateAwaitingApproval State = "AwaitingApproval"
)

var (
	// ErrNotFound marks a schedule id missing from the requested state.
	ErrNotFound = errors.New("schedule not found")
	// ErrOverlap marks a submission whose interval collides with an
	// active schedule.
	ErrOverlap = errors.New("schedule overlaps an active schedule")
)

// Entry is the stored record of one schedule document.
type Entry struct {
	ID    string    `json:"id"`
	State State     `json:"state"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Store keeps schedule documents on the filesystem, one YAML file per
// schedule under a per-state directory. Mutating operations are serialized
// by a store-wide lock so the no-overlapping-actives invariant holds under
// concurrent submitters.
type Store struct {
	base string
	log  *log.Logger

	mu sync.Mutex
}

// NewStore opens (and creates, if needed) the store rooted at base.
func NewStore(base string, logger *log.Logger) (*Store, error) {
	for _, state := range []State{StateActive, StateAwaitingApproval} {
		if err := os.MkdirAll(filepath.Join(base, string(state)), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	return &Store{base: base, log: logger}, nil
}

// Base returns the store's root directory.
func (s *Store) Base() string { return s.base }

func (s *Store) stateDir(state State) string {
	return filepath.Join(s.base, string(state))
}

func (s *Store) schedulePath(state State, id string) string {
	return filepath.Join(s.stateDir(state), id+".yaml")
}

// List returns the entries in a state, sorted by start time. Files that
// cannot be read or parsed are skipped with a warning so one corrupt
// document cannot hide the rest.
func (s *Store) List(state State) ([]Entry, error) {
	dirents, err := os.ReadDir(s.stateDir(state))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.stateDir(state), err)
	}

	var entries []Entry
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(s.stateDir(state), d.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			s.log.Printf("storage: skipping unreadable %s: %v", path, err)
			continue
		}
		sched, err := Parse(content)
		if err != nil {
			s.log.Printf("storage: skipping unparseable %s: %v", path, err)
			continue
		}
		entries = append(entries, Entry{
			ID:    strings.TrimSuffix(d.Name(), ".yaml"),
			State: state,
			Start: sched.Start,
			End:   sched.End,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Start.Before(entries[j].Start) })
	return entries, nil
}

// Get returns the entry and raw document for an id in the given state.
func (s *Store) Get(state State, id string) (Entry, []byte, error) {
	content, err := os.ReadFile(s.schedulePath(state, id))
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, nil, ErrNotFound
		}
		return Entry{}, nil, fmt.Errorf("read schedule %s: %w", id, err)
	}
	sched, err := Parse(content)
	if err != nil {
		return Entry{}, nil, fmt.Errorf("parse schedule %s: %w", id, err)
	}
	return Entry{ID: id, State: state, Start: sched.Start, End: sched.End}, content, nil
}

// Submit stores a new schedule document. The interval is checked for
// overlap against every active schedule under the half-open convention:
// [10:00,10:10) and [10:10,10:20) coexist. The approval policy decides
// whether the document lands in Active or AwaitingApproval.
func (s *Store) Submit(sched *Schedule, raw []byte, mode ApprovalMode) (Entry, ApprovalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOverlap(sched.Start, sched.End); err != nil {
		return Entry{}, "", err
	}

	id := sched.Start.UTC().Format("20060102T150405Z") + "_" + uuid.NewString()
	result := EvaluateApproval(mode)
	state := StateAwaitingApproval
	if result.IsApproved() {
		state = StateActive
	}

	if err := os.WriteFile(s.schedulePath(state, id), raw, 0o644); err != nil {
		return Entry{}, "", fmt.Errorf("write schedule %s: %w", id, err)
	}
	s.log.Printf("storage: submitted %s (%s)", id, result)

	return Entry{ID: id, State: state, Start: sched.Start, End: sched.End}, result, nil
}

// Approve moves a pending schedule into Active. The overlap check runs
// again: actives may have changed since the submission.
func (s *Store) Approve(id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.schedulePath(StateAwaitingApproval, id)
	content, err := os.ReadFile(pending)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("read schedule %s: %w", id, err)
	}
	sched, err := Parse(content)
	if err != nil {
		return Entry{}, fmt.Errorf("parse schedule %s: %w", id, err)
	}

	if err := s.checkOverlap(sched.Start, sched.End); err != nil {
		return Entry{}, err
	}

	if err := os.Rename(pending, s.schedulePath(StateActive, id)); err != nil {
		return Entry{}, fmt.Errorf("activate schedule %s: %w", id, err)
	}
	s.log.Printf("storage: approved %s", id)

	return Entry{ID: id, State: StateActive, Start: sched.Start, End: sched.End}, nil
}

// Reject removes a pending schedule.
func (s *Store) Reject(id string) error {
	return s.Delete(StateAwaitingApproval, id)
}

// Delete removes a schedule from the given state.
func (s *Store) Delete(state State, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.schedulePath(state, id))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete schedule %s: %w", id, err)
	}
	s.log.Printf("storage: deleted %s from %s", id, state)
	return nil
}

// checkOverlap fails with ErrOverlap if [start, end) intersects any active
// schedule's interval. Callers must hold s.mu.
func (s *Store) checkOverlap(start, end time.Time) error {
	active, err := s.List(StateActive)
	if err != nil {
		return err
	}
	for _, e := range active {
		if start.Before(e.End) && e.Start.Before(end) {
			return fmt.Errorf("%w: %s [%s, %s)", ErrOverlap, e.ID,
				e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
		}
	}
	return nil
}
