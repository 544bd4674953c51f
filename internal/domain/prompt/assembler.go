package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/mentor-hub/mentor-hub/internal/domain/program"
	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
)

// Mode selects how much program context the mentor receives.
type Mode string

const (
	ModeGuided Mode = "guided"
	ModeFree   Mode = "free"
)

// ParseMode validates a mode coming from a request.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeGuided:
		return ModeGuided, nil
	case ModeFree:
		return ModeFree, nil
	default:
		return "", shared.ErrUnknownMode
	}
}

// Request is everything needed to build the instructions for one turn.
type Request struct {
	Mode    Mode
	Email   string
	Program *program.Program
	// Focus is the module the session is focused on, nil otherwise.
	Focus   *program.Module
	Summary string
	Config  MentorConfig
	// Template is the mentor template for guided mode or the free template.
	Template string
	AsOf     time.Time
	// Calendar places AsOf and due dates in the school zone.
	Calendar program.Calendar
}

// Result is the assembled instructions plus diagnostics.
type Result struct {
	Instructions string
	// Unresolved lists template keys that had no value.
	Unresolved []string
	// FullContext is true when the whole program context was injected.
	FullContext bool
}

// Assemble builds the system instructions for one chat turn.
//
// Guided mode without a focused module sends the full program context.
// Once a module is focused only a "Focus:" line is sent. Free mode only
// carries the summary.
func Assemble(req Request) (Result, error) {
	summary := req.Summary
	if strings.TrimSpace(summary) == "" {
		summary = NoHistory
	}

	switch req.Mode {
	case ModeFree:
		tmpl := req.Template
		if tmpl == "" {
			tmpl = DefaultFreeTemplate
		}
		out, missing := RenderReport(tmpl, Vars{"summary": summary})
		return Result{Instructions: out, Unresolved: missing}, nil

	case ModeGuided:
		if req.Program == nil {
			return Result{}, shared.ErrProgramNotFound
		}
		tmpl := req.Template
		if tmpl == "" {
			tmpl = DefaultMentorTemplate
		}

		var (
			programCtx string
			full       bool
		)
		if req.Focus != nil {
			programCtx = FocusContext(req.Calendar, *req.Focus, req.AsOf)
		} else {
			programCtx = ProgramContext(req.Calendar, req.Program, req.AsOf)
			full = true
		}

		out, missing := RenderReport(tmpl, Vars{
			"email":       req.Email,
			"school_name": req.Config.SchoolName,
			"tone":        req.Config.Tone,
			"rules":       req.Config.Rules,
			"summary":     summary,
			"program":     programCtx,
		})
		return Result{Instructions: out, Unresolved: missing, FullContext: full}, nil

	default:
		return Result{}, shared.ErrUnknownMode
	}
}

// FormatDeliverable renders "descriptif (échéance: 15 mars 2026)".
func FormatDeliverable(cal program.Calendar, d program.Deliverable) string {
	due, ok := cal.Due(d)
	if !ok {
		return d.Descriptif
	}
	return fmt.Sprintf("%s (échéance: %s)", d.Descriptif, cal.FormatDate(due))
}

func deliverablesLine(cal program.Calendar, m program.Module, asOf time.Time) string {
	upcoming := cal.UpcomingDeliverables(m, asOf)
	if len(upcoming) == 0 {
		return ""
	}
	parts := make([]string, len(upcoming))
	for i, d := range upcoming {
		parts[i] = FormatDeliverable(cal, d)
	}
	return "Livrables à venir : " + strings.Join(parts, ", ")
}

// ModuleBlock renders a module with its upcoming deliverables.
func ModuleBlock(cal program.Calendar, m program.Module, asOf time.Time) string {
	s := fmt.Sprintf("%s (%s)", m.Label, m.ContentSummary())
	if line := deliverablesLine(cal, m, asOf); line != "" {
		s += "\n" + line
	}
	return s
}

// FocusContext is the reduced context sent once a module is focused.
func FocusContext(cal program.Calendar, m program.Module, asOf time.Time) string {
	return "Focus: " + ModuleBlock(cal, m, asOf)
}

// ProgramContext is the full context sent before a module is focused.
func ProgramContext(cal program.Calendar, p *program.Program, asOf time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Programme : %s\n", p.Label)
	if p.Description != "" {
		fmt.Fprintf(&b, "Description : %s\n", p.Description)
	}
	if p.Objectives != "" {
		fmt.Fprintf(&b, "Objectifs : %s\n", p.Objectives)
	}
	if p.Level != "" {
		fmt.Fprintf(&b, "Niveau : %s\n", p.Level)
	}
	if len(p.Resources) > 0 {
		fmt.Fprintf(&b, "Ressources : %s\n", strings.Join(p.Resources, ", "))
	}

	active := cal.ActiveModules(p, asOf)
	if len(active) == 0 {
		b.WriteString("Modules en cours : aucun")
		return b.String()
	}

	b.WriteString("Modules en cours :")
	for _, m := range active {
		b.WriteString("\n- ")
		b.WriteString(strings.ReplaceAll(ModuleBlock(cal, m, asOf), "\n", "\n  "))
	}
	return b.String()
}
