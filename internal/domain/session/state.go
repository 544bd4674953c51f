// Package session holds the short-lived per-student mentor session state:
// whether the session was initialized and which module it is focused on.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mentor-hub/mentor-hub/internal/domain/program"
	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

// DefaultIdleTTL is the idle window after which a session is forgotten.
const DefaultIdleTTL = 30 * time.Minute

// Phase is the position of a session in Fresh → Oriented → Focused.
type Phase string

const (
	PhaseFresh    Phase = "fresh"
	PhaseOriented Phase = "oriented"
	PhaseFocused  Phase = "focused"
)

// State is the stored session record.
type State struct {
	StudentEmail  string          `json:"studentEmail"`
	ProgramKey    string          `json:"programKey,omitempty"`
	FocusedModule *program.Module `json:"focusedModule,omitempty"`
	Initialized   bool            `json:"initialized"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Phase derives the state machine position from the stored fields.
func (s State) Phase() Phase {
	switch {
	case s.Initialized && s.FocusedModule != nil:
		return PhaseFocused
	case s.Initialized:
		return PhaseOriented
	default:
		return PhaseFresh
	}
}

// IsInitialized reports whether the session went through /init or a module selection.
func (s State) IsInitialized() bool { return s.Initialized }

// Focus returns the focused module for programKey, if any. A focus recorded
// for another program is ignored.
func (s State) Focus(programKey string) (program.Module, bool) {
	if s.FocusedModule == nil || s.Phase() != PhaseFocused {
		return program.Module{}, false
	}
	if s.ProgramKey != "" && programKey != "" && s.ProgramKey != programKey {
		return program.Module{}, false
	}
	return *s.FocusedModule, true
}

// Store is a keyed ephemeral store with a per-record TTL.
type Store interface {
	// Get returns the state, or (nil, nil) when absent or expired.
	Get(ctx context.Context, id string) (*State, error)
	// Save writes the state and resets its TTL.
	Save(ctx context.Context, id string, state State, ttl time.Duration) error
}

// Manager drives session transitions on top of a Store.
type Manager struct {
	store    Store
	ttl      time.Duration
	calendar program.Calendar
	clock    timeutil.Clock
}

// NewManager creates a Manager. ttl <= 0 means DefaultIdleTTL.
// Module activity is evaluated with cal.
func NewManager(store Store, ttl time.Duration, cal program.Calendar, clock timeutil.Clock) *Manager {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	if clock == nil {
		clock = timeutil.SystemClock()
	}
	return &Manager{store: store, ttl: ttl, calendar: cal, clock: clock}
}

// TTL returns the idle window applied on every write.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Calendar returns the school calendar sessions are evaluated with.
func (m *Manager) Calendar() program.Calendar { return m.calendar }

// Load returns the session state. A missing or expired record is Fresh.
// A store failure also yields Fresh, together with the error so callers can log it.
func (m *Manager) Load(ctx context.Context, id string) (State, error) {
	if id == "" {
		return State{}, nil
	}
	st, err := m.store.Get(ctx, id)
	if err != nil {
		return State{}, fmt.Errorf("%w: read: %w", shared.ErrSessionStoreFailed, err)
	}
	if st == nil {
		return State{}, nil
	}
	return *st, nil
}

// LoadFor is Load for one student. A record written for another student
// (a shared browser) is Fresh.
func (m *Manager) LoadFor(ctx context.Context, id, email string) (State, error) {
	st, err := m.Load(ctx, id)
	if st.StudentEmail != "" && !strings.EqualFold(st.StudentEmail, strings.TrimSpace(email)) {
		return State{}, err
	}
	return st, err
}

// MarkOriented records that the student opened a mentor session.
// An existing focus is kept for the same student and program.
func (m *Manager) MarkOriented(ctx context.Context, id, email, programKey string) (State, error) {
	st, _ := m.LoadFor(ctx, id, email)
	if st.ProgramKey != "" && st.ProgramKey != programKey {
		st.FocusedModule = nil
	}
	st.StudentEmail = email
	st.ProgramKey = programKey
	st.Initialized = true
	return st, m.save(ctx, id, st)
}

// SelectModule focuses the session on an active module of p.
// Moves Fresh or Oriented to Focused.
func (m *Manager) SelectModule(ctx context.Context, id, email string, p *program.Program, moduleID string) (program.Module, error) {
	mod, err := m.calendar.ActiveModule(p, moduleID, m.clock.Now())
	if err != nil {
		return program.Module{}, err
	}

	st := State{
		StudentEmail:  email,
		ProgramKey:    p.Key,
		FocusedModule: &mod,
		Initialized:   true,
	}
	if err := m.save(ctx, id, st); err != nil {
		return program.Module{}, err
	}
	return mod, nil
}

func (m *Manager) save(ctx context.Context, id string, st State) error {
	st.UpdatedAt = m.clock.Now().UTC()
	if err := m.store.Save(ctx, id, st, m.ttl); err != nil {
		return fmt.Errorf("%w: write: %w", shared.ErrSessionStoreFailed, err)
	}
	return nil
}
