package program

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

var utc = Calendar{}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func ids(mods []Module) []string {
	out := make([]string, len(mods))
	for i, m := range mods {
		out[i] = m.ID
	}
	return out
}

func TestModule_ActiveIn(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
		active     []time.Month
		inactive   []time.Month
	}{
		{"plain window", 3, 6, []time.Month{3, 4, 6}, []time.Month{2, 7, 12}},
		{"wrap around", 9, 2, []time.Month{9, 12, 1, 2}, []time.Month{3, 8}},
		{"single month", 5, 5, []time.Month{5}, []time.Month{4, 6}},
		{"whole year", 9, 8, []time.Month{1, 5, 8, 9, 12}, nil},
		{"out of range", 0, 13, nil, []time.Month{1, 6, 12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Module{ID: "m", StartMonth: tt.start, EndMonth: tt.end}
			for _, month := range tt.active {
				assert.True(t, m.ActiveIn(month), "month %d", month)
			}
			for _, month := range tt.inactive {
				assert.False(t, m.ActiveIn(month), "month %d", month)
			}
		})
	}
}

func TestActiveModules(t *testing.T) {
	t.Parallel()
	p := &Program{
		Key: "A1", Label: "A1",
		Modules: []Module{
			{ID: "m1", StartMonth: 9, EndMonth: 2},
			{ID: "m2", StartMonth: 3, EndMonth: 6},
			{ID: "m3", StartMonth: 5, EndMonth: 5},
		},
	}

	assert.Equal(t, []string{"m1"}, ids(utc.ActiveModules(p, day(2026, 1, 15))))
	assert.Equal(t, []string{"m2", "m3"}, ids(utc.ActiveModules(p, day(2026, 5, 15))))
	assert.Equal(t, []string{"m2"}, ids(utc.ActiveModules(p, day(2026, 4, 15))))
	assert.Empty(t, utc.ActiveModules(p, day(2026, 7, 15)))
	assert.Nil(t, utc.ActiveModules(nil, day(2026, 7, 15)))
}

func TestCalendar_SchoolZone(t *testing.T) {
	t.Parallel()
	auckland, err := timeutil.LoadZone("Pacific/Auckland")
	require.NoError(t, err)
	cal := NewCalendar(auckland)

	p := &Program{Modules: []Module{{ID: "march", StartMonth: 3, EndMonth: 3}}}
	// 28 Feb 20:00 UTC is already 1 March in Auckland.
	asOf := time.Date(2026, 2, 28, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"march"}, ids(cal.ActiveModules(p, asOf)))
	assert.Empty(t, utc.ActiveModules(p, asOf))

	_, err = cal.ActiveModule(p, "march", asOf)
	assert.NoError(t, err)
	_, err = utc.ActiveModule(p, "march", asOf)
	assert.ErrorIs(t, err, shared.ErrModuleInactive)

	// A local due date is read in the school zone.
	due, ok := cal.Due(Deliverable{Date: "2026-03-01T08:00"})
	require.True(t, ok)
	assert.True(t, time.Date(2026, 2, 28, 19, 0, 0, 0, time.UTC).Equal(due))
	assert.Equal(t, "1 mars 2026", cal.FormatDate(due))
}

func TestUpcomingDeliverables(t *testing.T) {
	t.Parallel()
	m := Module{
		ID: "m",
		Deliverables: []Deliverable{
			{Descriptif: "undated"},
			{Descriptif: "late", Date: "2026-04-20"},
			{Descriptif: "past", Date: "2026-01-10"},
			{Descriptif: "early", Date: "2026-03-15T18:00"},
			{Descriptif: "garbage", Date: "soon"},
		},
	}

	got := utc.UpcomingDeliverables(m, day(2026, 2, 1))
	require.Len(t, got, 2)
	assert.Equal(t, "early", got[0].Descriptif)
	assert.Equal(t, "late", got[1].Descriptif)

	assert.Empty(t, utc.UpcomingDeliverables(Module{}, day(2026, 2, 1)))
}

func TestUpcomingDeliverables_DueNowIsKept(t *testing.T) {
	t.Parallel()
	asOf := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	m := Module{Deliverables: []Deliverable{{Descriptif: "today", Date: "2026-03-15"}}}
	assert.Len(t, utc.UpcomingDeliverables(m, asOf), 1)
}

func TestResolveModule(t *testing.T) {
	t.Parallel()
	p := &Program{Modules: []Module{{ID: "m1", StartMonth: 1, EndMonth: 1}}}

	m, err := ResolveModule(p, "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)

	_, err = ResolveModule(p, "nope")
	assert.ErrorIs(t, err, shared.ErrModuleNotFound)
	assert.True(t, shared.IsNotFound(err))

	_, err = utc.ActiveModule(p, "m1", day(2026, 6, 1))
	assert.ErrorIs(t, err, shared.ErrModuleInactive)

	_, err = utc.ActiveModule(p, "m1", day(2026, 1, 20))
	assert.NoError(t, err)
}

func TestProgram_Validate(t *testing.T) {
	t.Parallel()
	valid := func() *Program {
		return &Program{
			Key: "A1", Label: "Anglais A1",
			Modules: []Module{{ID: "m1", StartMonth: 9, EndMonth: 11,
				Deliverables: []Deliverable{{Descriptif: "essai", Date: "2026-10-01"}}}},
		}
	}

	assert.NoError(t, valid().Validate())

	p := valid()
	p.Label = " "
	err := p.Validate()
	assert.True(t, shared.IsValidation(err))
	assert.ErrorIs(t, err, shared.ErrInvalidProgram)
	assert.ErrorContains(t, err, "label is required")

	p = valid()
	p.Modules[0].EndMonth = 13
	assert.Error(t, p.Validate())

	p = valid()
	p.Modules = append(p.Modules, Module{ID: "m1", StartMonth: 1, EndMonth: 2})
	assert.ErrorContains(t, p.Validate(), "duplicate")

	p = valid()
	p.Modules[0].Deliverables[0].Date = "01/10/2026"
	assert.ErrorContains(t, p.Validate(), "invalid deliverable date")
}

func TestPublishState_Consistent(t *testing.T) {
	tok := "abc"
	now := time.Now()
	assert.True(t, PublishState{}.Consistent())
	assert.True(t, PublishState{Published: true, Token: &tok, PublishedAt: &now}.Consistent())
	assert.False(t, PublishState{Published: true}.Consistent())
	assert.False(t, PublishState{Token: &tok}.Consistent())
}
