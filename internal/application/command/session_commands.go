package command

import (
	"context"
	"strings"

	"github.com/mentor-hub/mentor-hub/internal/domain/program"
	"github.com/mentor-hub/mentor-hub/internal/domain/session"
	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/internal/domain/usage"
	"github.com/mentor-hub/mentor-hub/pkg/logger"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// INIT SESSION COMMAND
// Opens a mentor session on a program and lists the modules of the month.
// ══════════════════════════════════════════════════════════════════════════════

// InitSessionCommand opens a mentor session.
type InitSessionCommand struct {
	ProgramKey string
	Email      string // optional
	SessionID  string
}

// Validate checks the command.
func (c InitSessionCommand) Validate() error {
	if strings.TrimSpace(c.ProgramKey) == "" {
		return shared.WrapError("session", "Init", shared.ErrInvalidInput, "programID is required", nil)
	}
	return nil
}

// InitSessionResult lists the modules a student can focus on.
type InitSessionResult struct {
	Program *program.Program
	Modules []program.Module
	State   session.State
}

// SessionHandler handles InitSessionCommand and SelectModuleCommand.
type SessionHandler struct {
	sessions *session.Manager
	programs program.Repository
	clock    timeutil.Clock
	log      *logger.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *session.Manager, programs program.Repository, clock timeutil.Clock, log *logger.Logger) *SessionHandler {
	if clock == nil {
		clock = timeutil.SystemClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SessionHandler{
		sessions: sessions,
		programs: programs,
		clock:    clock,
		log:      log.With(logger.Component("session")),
	}
}

// Init marks the session oriented. A session store failure is logged and the
// module list is still returned.
func (h *SessionHandler) Init(ctx context.Context, cmd InitSessionCommand) (*InitSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	p, err := h.programs.GetByKey(ctx, cmd.ProgramKey)
	if err != nil {
		return nil, err
	}

	email := usage.NormalizeEmail(cmd.Email)
	st, err := h.sessions.MarkOriented(ctx, cmd.SessionID, email, p.Key)
	if err != nil {
		h.log.Warn("session not saved", logger.SessionID(cmd.SessionID), logger.Err(err))
	}

	modules := h.sessions.Calendar().ActiveModules(p, h.clock.Now())
	if modules == nil {
		modules = []program.Module{}
	}
	return &InitSessionResult{Program: p, Modules: modules, State: st}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SELECT MODULE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// SelectModuleCommand focuses the session on one module.
type SelectModuleCommand struct {
	ProgramKey string
	ModuleID   string
	Email      string // optional
	SessionID  string
}

// Validate checks the command.
func (c SelectModuleCommand) Validate() error {
	if strings.TrimSpace(c.ProgramKey) == "" || strings.TrimSpace(c.ModuleID) == "" {
		return shared.WrapError("session", "SelectModule", shared.ErrInvalidInput, "programID and moduleId are required", nil)
	}
	return nil
}

// SelectModule moves the session to the focused phase. Only modules active
// this month can be selected.
func (h *SessionHandler) SelectModule(ctx context.Context, cmd SelectModuleCommand) (program.Module, error) {
	if err := cmd.Validate(); err != nil {
		return program.Module{}, err
	}

	p, err := h.programs.GetByKey(ctx, cmd.ProgramKey)
	if err != nil {
		return program.Module{}, err
	}

	mod, err := h.sessions.SelectModule(ctx, cmd.SessionID, usage.NormalizeEmail(cmd.Email), p, cmd.ModuleID)
	if err != nil {
		return program.Module{}, err
	}

	h.log.Info("module focused",
		logger.SessionID(cmd.SessionID),
		logger.ProgramKey(p.Key),
		logger.ModuleID(mod.ID),
	)
	return mod, nil
}
