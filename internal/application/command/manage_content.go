package command

import (
	"context"
	"strings"

	"github.com/mentor-hub/mentor-hub/internal/domain/program"
	"github.com/mentor-hub/mentor-hub/internal/domain/prompt"
	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT MANAGEMENT
// Administrator writes on programs, prompt templates and the mentor config.
// ══════════════════════════════════════════════════════════════════════════════

// ContentHandler applies administrator edits.
type ContentHandler struct {
	programs  program.Repository
	templates prompt.TemplateRepository
	configs   prompt.ConfigRepository
	log       *logger.Logger
}

// NewContentHandler creates a new ContentHandler.
func NewContentHandler(programs program.Repository, templates prompt.TemplateRepository, configs prompt.ConfigRepository, log *logger.Logger) *ContentHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ContentHandler{
		programs:  programs,
		templates: templates,
		configs:   configs,
		log:       log.With(logger.Component("content")),
	}
}

// UpsertProgram validates and stores a program. The publish state of an
// existing program is left untouched.
func (h *ContentHandler) UpsertProgram(ctx context.Context, p *program.Program) error {
	if p == nil {
		return shared.ErrInvalidProgram
	}
	p.Key = strings.TrimSpace(p.Key)
	if err := p.Validate(); err != nil {
		return err
	}
	if err := h.programs.Upsert(ctx, p); err != nil {
		return err
	}
	h.log.Info("program saved", logger.ProgramKey(p.Key), logger.Int("modules", len(p.Modules)))
	return nil
}

// DeleteProgram removes a program.
func (h *ContentHandler) DeleteProgram(ctx context.Context, key string) error {
	if err := h.programs.Delete(ctx, key); err != nil {
		return err
	}
	h.log.Info("program deleted", logger.ProgramKey(key))
	return nil
}

// UpsertTemplate validates and stores a prompt template.
func (h *ContentHandler) UpsertTemplate(ctx context.Context, t *prompt.Template) error {
	if t == nil {
		return shared.WrapError("prompt", "Upsert", shared.ErrInvalidInput, "template is required", nil)
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if unknown := unknownPlaceholders(t.Content); len(unknown) > 0 {
		h.log.Warn("template uses unknown placeholders", logger.String("key", t.Key), logger.Strings("keys", unknown))
	}
	if err := h.templates.Upsert(ctx, t); err != nil {
		return err
	}
	h.log.Info("template saved", logger.String("key", t.Key))
	return nil
}

// DeleteTemplate removes a stored template. Well-known keys fall back to
// their built-in content afterwards.
func (h *ContentHandler) DeleteTemplate(ctx context.Context, key string) error {
	if err := h.templates.Delete(ctx, key); err != nil {
		return err
	}
	h.log.Info("template deleted", logger.String("key", key))
	return nil
}

// SaveMentorConfig replaces the mentor config.
func (h *ContentHandler) SaveMentorConfig(ctx context.Context, cfg prompt.MentorConfig) error {
	if err := h.configs.SaveMentorConfig(ctx, cfg); err != nil {
		return err
	}
	h.log.Info("mentor config saved")
	return nil
}

var knownPlaceholders = map[string]struct{}{
	"school_name": {}, "tone": {}, "rules": {}, "email": {}, "summary": {}, "program": {},
	"previous_summary": {}, "last_user_message": {}, "last_assistant_reply": {},
}

func unknownPlaceholders(content string) []string {
	var out []string
	for _, name := range prompt.Placeholders(content) {
		if _, ok := knownPlaceholders[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}
