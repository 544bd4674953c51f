package command

import (
	"context"
	"strings"
	"time"

	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/internal/domain/syllabus"
	"github.com/mentor-hub/mentor-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUBLISH PROGRAM COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// PublishAction selects what PublishProgramHandler does.
type PublishAction string

const (
	ActionPublish    PublishAction = "publish"
	ActionUnpublish  PublishAction = "unpublish"
	ActionRegenerate PublishAction = "regenerate"
)

// PublishProgramCommand changes the publish state of a program.
type PublishProgramCommand struct {
	ProgramKey string
	Action     PublishAction
}

// Validate checks the command.
func (c PublishProgramCommand) Validate() error {
	if strings.TrimSpace(c.ProgramKey) == "" {
		return shared.WrapError("syllabus", string(c.Action), shared.ErrInvalidInput, "program key is required", nil)
	}
	switch c.Action {
	case ActionPublish, ActionUnpublish, ActionRegenerate:
		return nil
	default:
		return shared.WrapError("syllabus", "Publish", shared.ErrInvalidInput, "unknown action "+string(c.Action), nil)
	}
}

// PublishProgramResult is the publish state after the command.
type PublishProgramResult struct {
	Published   bool       `json:"published"`
	Token       string     `json:"token,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// PublishProgramHandler handles PublishProgramCommand.
type PublishProgramHandler struct {
	publisher *syllabus.Publisher
	log       *logger.Logger
}

// NewPublishProgramHandler creates a new PublishProgramHandler.
func NewPublishProgramHandler(publisher *syllabus.Publisher, log *logger.Logger) *PublishProgramHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &PublishProgramHandler{publisher: publisher, log: log.With(logger.Component("publisher"))}
}

// Handle runs the command.
func (h *PublishProgramHandler) Handle(ctx context.Context, cmd PublishProgramCommand) (*PublishProgramResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var pub syllabus.Publication
	var err error
	switch cmd.Action {
	case ActionUnpublish:
		if err := h.publisher.Unpublish(ctx, cmd.ProgramKey); err != nil {
			return nil, err
		}
		h.log.Info("program unpublished", logger.ProgramKey(cmd.ProgramKey))
		return &PublishProgramResult{Published: false}, nil
	case ActionRegenerate:
		pub, err = h.publisher.Regenerate(ctx, cmd.ProgramKey)
	default:
		pub, err = h.publisher.Publish(ctx, cmd.ProgramKey)
	}
	if err != nil {
		return nil, err
	}

	h.log.Info("program published", logger.ProgramKey(cmd.ProgramKey), logger.String("action", string(cmd.Action)))
	at := pub.PublishedAt
	return &PublishProgramResult{Published: true, Token: pub.Token, PublishedAt: &at}, nil
}
