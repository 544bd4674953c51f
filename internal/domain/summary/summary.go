// Package summary maintains the running, overwritten summary of each
// student's exchanges with the mentor.
package summary

import (
	"context"
	"strings"
	"time"

	"github.com/mentor-hub/mentor-hub/internal/domain/prompt"
	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
)

// NoHistory stands in for a student without a stored summary.
const NoHistory = prompt.NoHistory

// Summary is the stored summary of one student.
type Summary struct {
	Email     string    `json:"email"`
	Text      string    `json:"summary"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Repository stores summaries.
type Repository interface {
	// Get returns (nil, nil) when the student has no summary.
	Get(ctx context.Context, email string) (*Summary, error)
	// Put overwrites the summary of email.
	Put(ctx context.Context, email, text string) error
}

// Completer produces text from instructions and an input.
type Completer interface {
	Complete(ctx context.Context, instructions, input string) (string, error)
}

// Exchange is one completed chat turn.
type Exchange struct {
	Email       string `json:"email"`
	UserMessage string `json:"userMessage"`
	MentorReply string `json:"mentorReply"`
}

// Text returns the summary text of email, or NoHistory.
func Text(ctx context.Context, repo Repository, email string) (string, error) {
	s, err := repo.Get(ctx, email)
	if err != nil {
		return NoHistory, err
	}
	if s == nil || strings.TrimSpace(s.Text) == "" {
		return NoHistory, nil
	}
	return s.Text, nil
}

// Updater folds the latest exchange into the student summary.
type Updater struct {
	repo      Repository
	templates prompt.TemplateRepository
	completer Completer
}

// NewUpdater creates an Updater.
func NewUpdater(repo Repository, templates prompt.TemplateRepository, completer Completer) *Updater {
	return &Updater{repo: repo, templates: templates, completer: completer}
}

// Update renders the summary template, asks the completer for a new summary
// and overwrites the stored one. It only ever writes the summary record.
// Callers run it off the request path and do not retry it.
func (u *Updater) Update(ctx context.Context, ex Exchange) error {
	previous, err := Text(ctx, u.repo, ex.Email)
	if err != nil {
		return shared.WrapError("summary", "Update", shared.ErrServiceUnavailable, "read previous summary", err)
	}

	tmpl, err := prompt.Lookup(ctx, u.templates, prompt.KeySummarySystem)
	if err != nil {
		return shared.WrapError("summary", "Update", shared.ErrServiceUnavailable, "load summary template", err)
	}

	input := prompt.Render(tmpl, prompt.Vars{
		"previous_summary":     previous,
		"last_user_message":    ex.UserMessage,
		"last_assistant_reply": ex.MentorReply,
	})

	// The rendered template is the whole request; there are no separate instructions.
	out, err := u.completer.Complete(ctx, "", input)
	if err != nil {
		return shared.WrapError("summary", "Update", shared.ErrExternalService, "summarize exchange", err)
	}

	text := strings.TrimSpace(out)
	if text == "" {
		return shared.ErrCompletionEmpty
	}
	return u.repo.Put(ctx, ex.Email, text)
}
