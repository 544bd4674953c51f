// Package command contains the write operations of mentor-hub.
package command

import (
	"context"
	"strings"
	"time"

	"github.com/mentor-hub/mentor-hub/internal/domain/program"
	"github.com/mentor-hub/mentor-hub/internal/domain/prompt"
	"github.com/mentor-hub/mentor-hub/internal/domain/session"
	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/internal/domain/summary"
	"github.com/mentor-hub/mentor-hub/internal/domain/usage"
	"github.com/mentor-hub/mentor-hub/pkg/logger"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

// Feature names checked by the commands. They match config.Feature* values.
const (
	FeatureFreeMode    = "chat.free_mode"
	FeatureSummaries   = "chat.summaries"
	FeatureFocusModule = "chat.focus_module"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Completer produces text from instructions and an input.
type Completer interface {
	Complete(ctx context.Context, instructions, input string) (string, error)
}

// SummaryEnqueuer hands a finished exchange to the summary updater.
type SummaryEnqueuer interface {
	Enqueue(ctx context.Context, ex summary.Exchange) error
}

// FeatureChecker reports per-student feature flags.
type FeatureChecker interface {
	EnabledFor(feature, email string) bool
}

type allFeatures struct{}

func (allFeatures) EnabledFor(string, string) bool { return true }

// ══════════════════════════════════════════════════════════════════════════════
// SEND MESSAGE COMMAND
// One chat turn: bill the message, build the prompt, ask the mentor.
// ══════════════════════════════════════════════════════════════════════════════

// SendMessageCommand contains one student message.
type SendMessageCommand struct {
	Email      string
	Message    string
	ProgramKey string
	Mode       string
	SessionID  string
}

// Validate checks that every field of the turn is present.
func (c SendMessageCommand) Validate() error {
	if strings.TrimSpace(c.Email) == "" || strings.TrimSpace(c.Message) == "" ||
		strings.TrimSpace(c.ProgramKey) == "" || strings.TrimSpace(c.Mode) == "" {
		return shared.WrapError("chat", "SendMessage", shared.ErrInvalidInput,
			"email, message, programID and mode are required", nil)
	}
	return nil
}

// SendMessageResult is the outcome of a chat turn.
type SendMessageResult struct {
	Reply    string
	Decision usage.Decision
	Phase    session.Phase

	// FullContext is true when the whole program context was sent.
	FullContext bool

	// Exchange is what the summary updater receives once the reply is out.
	Exchange summary.Exchange
}

// SendMessageHandler handles SendMessageCommand.
type SendMessageHandler struct {
	governor     *usage.Governor
	monthlyLimit int64
	sessions     *session.Manager
	programs     program.Repository
	templates    prompt.TemplateRepository
	configs      prompt.ConfigRepository
	summaries    summary.Repository
	completer    Completer
	queue        SummaryEnqueuer
	features     FeatureChecker
	clock        timeutil.Clock
	log          *logger.Logger
}

// SendMessageDeps groups the collaborators of SendMessageHandler.
type SendMessageDeps struct {
	Governor     *usage.Governor
	MonthlyLimit int64
	Sessions     *session.Manager
	Programs     program.Repository
	Templates    prompt.TemplateRepository
	Configs      prompt.ConfigRepository
	Summaries    summary.Repository
	Completer    Completer
	Queue        SummaryEnqueuer // optional
	Features     FeatureChecker  // optional
	Clock        timeutil.Clock  // optional
	Logger       *logger.Logger  // optional
}

// NewSendMessageHandler creates a new SendMessageHandler.
func NewSendMessageHandler(d SendMessageDeps) *SendMessageHandler {
	if d.Features == nil {
		d.Features = allFeatures{}
	}
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock()
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	return &SendMessageHandler{
		governor:     d.Governor,
		monthlyLimit: d.MonthlyLimit,
		sessions:     d.Sessions,
		programs:     d.Programs,
		templates:    d.Templates,
		configs:      d.Configs,
		summaries:    d.Summaries,
		completer:    d.Completer,
		queue:        d.Queue,
		features:     d.Features,
		clock:        d.Clock,
		log:          d.Logger.With(logger.Component("chat")),
	}
}

// Handle runs one chat turn. The quota is consumed before anything else, so
// a turn that later fails stays billed.
func (h *SendMessageHandler) Handle(ctx context.Context, cmd SendMessageCommand) (*SendMessageResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	mode, err := prompt.ParseMode(cmd.Mode)
	if err != nil {
		return nil, err
	}

	email := usage.NormalizeEmail(cmd.Email)
	log := h.log.With(logger.Email(email), logger.ProgramKey(cmd.ProgramKey), logger.String("mode", string(mode)))

	if mode == prompt.ModeFree && !h.features.EnabledFor(FeatureFreeMode, email) {
		return nil, shared.WrapError("chat", "SendMessage", shared.ErrForbidden, "free mode is disabled", nil)
	}

	decision, err := h.governor.CheckAndIncrement(ctx, email, h.monthlyLimit)
	result := &SendMessageResult{Decision: decision}
	if err != nil {
		log.Error("usage increment failed, denying", logger.Err(err))
		return result, err
	}
	if !decision.Allowed {
		log.Info("monthly quota exceeded", logger.Int64("count", decision.Count), logger.Period(decision.Period))
		return result, shared.ErrMonthlyQuotaExceeded
	}

	state, err := h.sessions.LoadFor(ctx, cmd.SessionID, email)
	if err != nil {
		log.Warn("session unavailable, continuing fresh", logger.Err(err))
	}
	result.Phase = state.Phase()

	history, err := summary.Text(ctx, h.summaries, email)
	if err != nil {
		log.Warn("summary unavailable", logger.Err(err))
	}

	req, err := h.promptRequest(ctx, mode, email, cmd.ProgramKey, state, history)
	if err != nil {
		return result, err
	}

	assembled, err := prompt.Assemble(req)
	if err != nil {
		return result, err
	}
	if len(assembled.Unresolved) > 0 {
		log.Warn("unresolved template placeholders", logger.Strings("keys", assembled.Unresolved))
	}
	result.FullContext = assembled.FullContext

	start := time.Now()
	reply, err := h.completer.Complete(ctx, assembled.Instructions, cmd.Message)
	if err != nil {
		log.Error("mentor completion failed", logger.Err(err), logger.Latency(time.Since(start)))
		return result, err
	}

	result.Reply = strings.TrimSpace(reply)
	result.Exchange = summary.Exchange{Email: email, UserMessage: cmd.Message, MentorReply: result.Reply}

	log.Info("mentor replied",
		logger.Int64("count", decision.Count),
		logger.String("phase", string(result.Phase)),
		logger.Bool("full_context", result.FullContext),
		logger.Latency(time.Since(start)),
	)
	return result, nil
}

// RecordExchange queues the summary update of a finished turn. Failures are
// logged only; the student already has the reply.
func (h *SendMessageHandler) RecordExchange(ctx context.Context, ex summary.Exchange) {
	if h.queue == nil || ex.Email == "" {
		return
	}
	if !h.features.EnabledFor(FeatureSummaries, ex.Email) {
		return
	}
	if err := h.queue.Enqueue(ctx, ex); err != nil {
		h.log.Warn("summary enqueue failed", logger.Email(ex.Email), logger.Err(err))
	}
}

func (h *SendMessageHandler) promptRequest(ctx context.Context, mode prompt.Mode, email, programKey string, state session.State, history string) (prompt.Request, error) {
	req := prompt.Request{Mode: mode, Email: email, Summary: history, AsOf: h.clock.Now(), Calendar: h.sessions.Calendar()}

	if mode == prompt.ModeFree {
		tmpl, err := prompt.Lookup(ctx, h.templates, prompt.KeyFreeSystem)
		if err != nil {
			h.log.Warn("free template unavailable, using default", logger.Err(err))
		}
		req.Template = tmpl
		return req, nil
	}

	p, err := h.programs.GetByKey(ctx, programKey)
	if err != nil {
		return req, err
	}
	req.Program = p

	if focus, ok := state.Focus(p.Key); ok && h.features.EnabledFor(FeatureFocusModule, email) {
		req.Focus = &focus
	}

	tmpl, err := prompt.Lookup(ctx, h.templates, prompt.KeyMentorSystem)
	if err != nil {
		h.log.Warn("mentor template unavailable, using default", logger.Err(err))
	}
	req.Template = tmpl

	cfg, err := h.configs.GetMentorConfig(ctx)
	if err != nil {
		h.log.Warn("mentor config unavailable", logger.Err(err))
	}
	req.Config = cfg
	return req, nil
}
