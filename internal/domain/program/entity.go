// Package program contains the academic program model: programs, their
// modules scheduled over cyclic month windows, and module deliverables.
// Pure domain code, no infrastructure dependencies.
package program

import (
	"fmt"
	"strings"
	"time"

	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Deliverable is a dated piece of work expected within a module.
type Deliverable struct {
	Descriptif string `json:"descriptif" yaml:"descriptif"`
	// Date is "YYYY-MM-DD", "YYYY-MM-DDTHH:MM" or RFC 3339. May be empty.
	Date string `json:"date,omitempty" yaml:"date,omitempty"`
}

// Module is a unit of a program active over a cyclic month window.
type Module struct {
	ID           string        `json:"id" yaml:"id"`
	Label        string        `json:"label" yaml:"label"`
	StartMonth   int           `json:"start_month" yaml:"start_month"`
	EndMonth     int           `json:"end_month" yaml:"end_month"`
	Content      []string      `json:"content" yaml:"content"`
	Deliverables []Deliverable `json:"deliverables,omitempty" yaml:"deliverables,omitempty"`
}

// ActiveIn reports whether month falls inside the module window.
// The window is an arc on a 12-month ring from StartMonth to EndMonth
// inclusive, so 9→2 covers Sep..Feb and 5→5 covers May only.
// Months outside 1..12 never match.
func (m Module) ActiveIn(month time.Month) bool {
	start, end, cur := m.StartMonth, m.EndMonth, int(month)
	if !validMonth(start) || !validMonth(end) || !validMonth(cur) {
		return false
	}
	span := (end - start + 12) % 12
	offset := (cur - start + 12) % 12
	return offset <= span
}

// ContentSummary joins content lines the way they are shown to the mentor.
func (m Module) ContentSummary() string {
	return strings.Join(m.Content, ", ")
}

func validMonth(m int) bool { return m >= 1 && m <= 12 }

// PublishState tracks whether a program is shared publicly.
// Token is non-nil iff Published.
type PublishState struct {
	Published   bool       `json:"published"`
	Token       *string    `json:"publishToken,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// Consistent reports whether the token/published invariant holds.
func (s PublishState) Consistent() bool {
	if s.Published {
		return s.Token != nil && *s.Token != "" && s.PublishedAt != nil
	}
	return s.Token == nil && s.PublishedAt == nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE
// ══════════════════════════════════════════════════════════════════════════════

// Program is an academic program identified by a unique key ("A1", "B2", ...).
type Program struct {
	Key         string   `json:"key" yaml:"key"`
	Label       string   `json:"label" yaml:"label"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Objectives  string   `json:"objectives,omitempty" yaml:"objectives,omitempty"`
	Level       string   `json:"level,omitempty" yaml:"level,omitempty"`
	Resources   []string `json:"resources,omitempty" yaml:"resources,omitempty"`
	Modules     []Module `json:"modules" yaml:"modules"`

	PublishState `yaml:"-"`

	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// Validate checks the program before it is stored.
func (p *Program) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", shared.ErrInvalidProgram, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(p.Key) == "" {
		return fail("key is required")
	}
	if strings.TrimSpace(p.Label) == "" {
		return fail("label is required")
	}

	seen := make(map[string]struct{}, len(p.Modules))
	for i, m := range p.Modules {
		if strings.TrimSpace(m.ID) == "" {
			return fail("module #%d: id is required", i+1)
		}
		if _, dup := seen[m.ID]; dup {
			return fail("module %q: duplicate id", m.ID)
		}
		seen[m.ID] = struct{}{}

		if !validMonth(m.StartMonth) || !validMonth(m.EndMonth) {
			return fail("module %q: months must be between 1 and 12", m.ID)
		}
		for _, d := range m.Deliverables {
			if d.Date == "" {
				continue
			}
			// Validity does not depend on the zone.
			if _, ok := (Calendar{}).Due(d); !ok {
				return fail("module %q: invalid deliverable date %q", m.ID, d.Date)
			}
		}
	}
	return nil
}

// Module returns the module with the given id.
func (p *Program) Module(id string) (Module, bool) {
	for _, m := range p.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return Module{}, false
}
