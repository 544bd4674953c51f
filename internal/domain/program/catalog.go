package program

import (
	"sort"
	"time"

	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

// Calendar evaluates module windows and deliverable dates in the school
// time zone. The zero value works in UTC.
type Calendar struct {
	Location *time.Location
}

// NewCalendar returns a Calendar for loc.
func NewCalendar(loc *time.Location) Calendar {
	return Calendar{Location: loc}
}

func (c Calendar) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Month returns the school month of t.
func (c Calendar) Month(t time.Time) time.Month {
	return t.In(c.location()).Month()
}

// Due returns the parsed due date of d. ok is false for empty or
// unparsable dates.
func (c Calendar) Due(d Deliverable) (due time.Time, ok bool) {
	t, err := timeutil.ParseDeliverableDate(d.Date, c.location())
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatDate renders t as a French long date in the school zone.
func (c Calendar) FormatDate(t time.Time) string {
	return timeutil.FormatFrenchLong(t, c.location())
}

// ActiveModules returns the modules whose window contains the school month
// of asOf, in program order.
func (c Calendar) ActiveModules(p *Program, asOf time.Time) []Module {
	if p == nil {
		return nil
	}
	month := c.Month(asOf)

	active := make([]Module, 0, len(p.Modules))
	for _, m := range p.Modules {
		if m.ActiveIn(month) {
			active = append(active, m)
		}
	}
	return active
}

// UpcomingDeliverables returns the dated deliverables due at or after asOf,
// earliest first. Undated and unparsable entries are dropped.
func (c Calendar) UpcomingDeliverables(m Module, asOf time.Time) []Deliverable {
	type dated struct {
		d   Deliverable
		due time.Time
	}

	items := make([]dated, 0, len(m.Deliverables))
	for _, d := range m.Deliverables {
		due, ok := c.Due(d)
		if !ok || due.Before(asOf) {
			continue
		}
		items = append(items, dated{d: d, due: due})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].due.Before(items[j].due)
	})

	out := make([]Deliverable, len(items))
	for i, it := range items {
		out[i] = it.d
	}
	return out
}

// ActiveModule resolves a module and checks that it is active at asOf.
// Students may only focus on modules that are currently running.
func (c Calendar) ActiveModule(p *Program, moduleID string, asOf time.Time) (Module, error) {
	m, err := ResolveModule(p, moduleID)
	if err != nil {
		return Module{}, err
	}
	if !m.ActiveIn(c.Month(asOf)) {
		return Module{}, shared.ErrModuleInactive
	}
	return m, nil
}

// ResolveModule finds a module of the program by id.
func ResolveModule(p *Program, moduleID string) (Module, error) {
	if p == nil {
		return Module{}, shared.ErrProgramNotFound
	}
	m, ok := p.Module(moduleID)
	if !ok {
		return Module{}, shared.ErrModuleNotFound
	}
	return m, nil
}
