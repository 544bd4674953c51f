package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentor-hub/mentor-hub/internal/domain/program"
	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (*State, error) {
	return nil, errors.New("redis: connection refused")
}

func (brokenStore) Save(context.Context, string, State, time.Duration) error {
	return errors.New("redis: connection refused")
}

func testProgram() *program.Program {
	return &program.Program{
		Key: "A1", Label: "Anglais A1",
		Modules: []program.Module{
			{ID: "grammar", Label: "Grammaire", StartMonth: 9, EndMonth: 6, Content: []string{"present simple"}},
			{ID: "summer", Label: "Été", StartMonth: 7, EndMonth: 8},
		},
	}
}

func newTestManager(t *testing.T, store Store) *Manager {
	t.Helper()
	return NewManager(store, time.Minute, program.Calendar{}, timeutil.FixedClock(time.Date(2026, 10, 5, 9, 0, 0, 0, time.UTC)))
}

func TestManager_Transitions(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, NewMemoryStore())

	st, err := m.Load(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, PhaseFresh, st.Phase())
	assert.False(t, st.IsInitialized())

	st, err = m.MarkOriented(ctx, "sid", "a@x.fr", "A1")
	require.NoError(t, err)
	assert.Equal(t, PhaseOriented, st.Phase())

	mod, err := m.SelectModule(ctx, "sid", "a@x.fr", testProgram(), "grammar")
	require.NoError(t, err)
	assert.Equal(t, "Grammaire", mod.Label)

	st, err = m.Load(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, PhaseFocused, st.Phase())
	focus, ok := st.Focus("A1")
	require.True(t, ok)
	assert.Equal(t, "grammar", focus.ID)

	_, ok = st.Focus("B2")
	assert.False(t, ok)

	// Re-orienting keeps the focus.
	st, err = m.MarkOriented(ctx, "sid", "a@x.fr", "A1")
	require.NoError(t, err)
	assert.Equal(t, PhaseFocused, st.Phase())
}

func TestManager_SelectModuleErrors(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, NewMemoryStore())

	_, err := m.SelectModule(ctx, "sid", "a@x.fr", testProgram(), "missing")
	assert.ErrorIs(t, err, shared.ErrModuleNotFound)

	_, err = m.SelectModule(ctx, "sid", "a@x.fr", testProgram(), "summer")
	assert.ErrorIs(t, err, shared.ErrModuleInactive)

	st, _ := m.Load(ctx, "sid")
	assert.Equal(t, PhaseFresh, st.Phase())
}

func TestManager_ExpiryDegradesToFresh(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	m := newTestManager(t, store)

	_, err := m.SelectModule(ctx, "sid", "a@x.fr", testProgram(), "grammar")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	st, err := m.Load(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, PhaseFresh, st.Phase())
	assert.Equal(t, 0, store.Sweep())
}

func TestMemoryStore_Sweep(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(context.Background(), "a", State{}, time.Second))
	require.NoError(t, store.Save(context.Background(), "b", State{}, time.Hour))

	now = now.Add(time.Minute)
	assert.Equal(t, 1, store.Sweep())
}

func TestManager_StoreFailure(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, brokenStore{})

	st, err := m.Load(ctx, "sid")
	assert.Error(t, err)
	assert.Equal(t, PhaseFresh, st.Phase())

	assert.ErrorIs(t, err, shared.ErrSessionStoreFailed)
	assert.ErrorContains(t, err, "connection refused")

	_, err = m.SelectModule(ctx, "sid", "a@x.fr", testProgram(), "grammar")
	assert.ErrorIs(t, err, shared.ErrSessionStoreFailed)
	assert.True(t, shared.IsExternalService(err))
}

func TestManager_LoadForOtherStudentIsFresh(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, NewMemoryStore())

	_, err := m.SelectModule(ctx, "shared-cookie", "ana@x.fr", testProgram(), "grammar")
	require.NoError(t, err)

	st, err := m.LoadFor(ctx, "shared-cookie", "ANA@x.fr")
	require.NoError(t, err)
	assert.Equal(t, PhaseFocused, st.Phase())

	st, err = m.LoadFor(ctx, "shared-cookie", "leo@x.fr")
	require.NoError(t, err)
	assert.Equal(t, PhaseFresh, st.Phase())
	_, focused := st.Focus("A1")
	assert.False(t, focused)

	// Leo opening a session does not inherit Ana's focus.
	st, err = m.MarkOriented(ctx, "shared-cookie", "leo@x.fr", "A1")
	require.NoError(t, err)
	assert.Equal(t, PhaseOriented, st.Phase())
	assert.Equal(t, "leo@x.fr", st.StudentEmail)
}
