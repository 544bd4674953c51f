package command

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mentor-hub/mentor-hub/internal/domain/program"
	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// EDIT PROGRAM WITH ASSISTANT
// An administrator describes a change in plain words and gets the modified
// program JSON back. Nothing is stored; the admin saves it explicitly.
// ══════════════════════════════════════════════════════════════════════════════

// ProgramEditorInstructions is sent as the system message.
const ProgramEditorInstructions = `Tu es un assistant IA spécialisé dans la modification de programmes académiques.
Tu reçois un programme au format JSON et des instructions de l'utilisateur.
RÈGLES IMPORTANTES :
1. Retourne UNIQUEMENT le JSON modifié, sans texte avant ou après
2. Conserve la structure exacte du JSON
3. Ne modifie que ce qui est demandé
4. Les mois sont des nombres : 1=Jan, 2=Fév, ..., 9=Sep, 12=Déc
5. Les dates des livrables au format YYYY-MM-DD
6. Génère des IDs uniques pour les nouveaux modules (ex: Charte Graphique => charte-graphique)
7. Garde tous les champs existants, même si non modifiés`

// Pinger checks that a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EditProgramCommand asks the assistant to modify a program.
type EditProgramCommand struct {
	Program json.RawMessage
	Message string
}

// Validate checks the command.
func (c EditProgramCommand) Validate() error {
	if len(c.Program) == 0 || strings.TrimSpace(c.Message) == "" {
		return shared.WrapError("program", "Edit", shared.ErrInvalidInput, "program and message are required", nil)
	}
	if !json.Valid(c.Program) {
		return shared.WrapError("program", "Edit", shared.ErrInvalidFormat, "program is not valid JSON", nil)
	}
	return nil
}

// EditProgramResult carries the assistant output.
type EditProgramResult struct {
	// Output is the raw text returned by the assistant.
	Output string
	// Program is Output decoded, nil when it is not a valid program.
	Program *program.Program
	// BackendOK is false when the backend health check failed before the call.
	BackendOK bool
}

// EditProgramHandler handles EditProgramCommand.
type EditProgramHandler struct {
	completer Completer
	pinger    Pinger
	log       *logger.Logger
}

// NewEditProgramHandler creates a new EditProgramHandler. pinger may be nil.
func NewEditProgramHandler(completer Completer, pinger Pinger, log *logger.Logger) *EditProgramHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &EditProgramHandler{completer: completer, pinger: pinger, log: log.With(logger.Component("program_editor"))}
}

// Handle runs the command.
func (h *EditProgramHandler) Handle(ctx context.Context, cmd EditProgramCommand) (*EditProgramResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	res := &EditProgramResult{BackendOK: true}
	if h.pinger != nil {
		if err := h.pinger.Ping(ctx); err != nil {
			h.log.Warn("completion backend health check failed", logger.Err(err))
			res.BackendOK = false
		}
	}

	input := cmd.Message + "\n\n" + string(cmd.Program)
	out, err := h.completer.Complete(ctx, ProgramEditorInstructions, input)
	if err != nil {
		return nil, err
	}
	res.Output = strings.TrimSpace(out)

	var p program.Program
	if err := json.Unmarshal([]byte(stripCodeFence(res.Output)), &p); err == nil && p.Validate() == nil {
		res.Program = &p
	} else {
		h.log.Debug("assistant output is not a valid program")
	}
	return res, nil
}

// stripCodeFence removes a surrounding ```json fence.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
