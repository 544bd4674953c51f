package query

import (
	"context"
	"sort"

	"github.com/mentor-hub/mentor-hub/internal/domain/program"
	"github.com/mentor-hub/mentor-hub/internal/domain/prompt"
	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/internal/domain/usage"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

// UsageReporter lists the usage records of a period.
type UsageReporter interface {
	Records(ctx context.Context, period string) ([]usage.Record, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT QUERIES
// Administrator reads on programs, templates, config and usage.
// ══════════════════════════════════════════════════════════════════════════════

// ContentReader serves the administrator read endpoints.
type ContentReader struct {
	programs  program.Repository
	templates prompt.TemplateRepository
	configs   prompt.ConfigRepository
	usage     UsageReporter
	clock     timeutil.Clock
}

// NewContentReader creates a ContentReader. reporter may be nil when the
// quota store cannot list records.
func NewContentReader(programs program.Repository, templates prompt.TemplateRepository, configs prompt.ConfigRepository, reporter UsageReporter, clock timeutil.Clock) *ContentReader {
	if clock == nil {
		clock = timeutil.SystemClock()
	}
	return &ContentReader{programs: programs, templates: templates, configs: configs, usage: reporter, clock: clock}
}

// Programs returns every program ordered by key.
func (r *ContentReader) Programs(ctx context.Context) ([]*program.Program, error) {
	ps, err := r.programs.List(ctx)
	if err != nil {
		return nil, err
	}
	if ps == nil {
		ps = []*program.Program{}
	}
	return ps, nil
}

// Program returns one program.
func (r *ContentReader) Program(ctx context.Context, key string) (*program.Program, error) {
	return r.programs.GetByKey(ctx, key)
}

// Templates returns the stored templates, completed with the built-in
// default of every well-known key that is not stored.
func (r *ContentReader) Templates(ctx context.Context) ([]*prompt.Template, error) {
	stored, err := r.templates.List(ctx)
	if err != nil {
		return nil, err
	}

	have := make(map[string]bool, len(stored))
	out := make([]*prompt.Template, 0, len(stored)+len(prompt.Defaults))
	for _, t := range stored {
		have[t.Key] = true
		out = append(out, t)
	}
	for key, content := range prompt.Defaults {
		if !have[key] {
			out = append(out, &prompt.Template{Key: key, Label: key, Content: content})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Template returns one template, falling back to the built-in default.
func (r *ContentReader) Template(ctx context.Context, key string) (*prompt.Template, error) {
	t, err := r.templates.Get(ctx, key)
	if err == nil {
		return t, nil
	}
	if shared.IsNotFound(err) {
		if content, ok := prompt.Defaults[key]; ok {
			return &prompt.Template{Key: key, Label: key, Content: content}, nil
		}
	}
	return nil, err
}

// MentorConfig returns the mentor config.
func (r *ContentReader) MentorConfig(ctx context.Context) (prompt.MentorConfig, error) {
	return r.configs.GetMentorConfig(ctx)
}

// Usage lists the usage records of period, the current period when empty.
func (r *ContentReader) Usage(ctx context.Context, period string) (string, []usage.Record, error) {
	if period == "" {
		period = timeutil.Period(r.clock.Now())
	} else if _, err := timeutil.ParsePeriod(period); err != nil {
		return "", nil, shared.WrapError("usage", "Records", shared.ErrInvalidFormat, "period must be YYYY-MM", err)
	}
	if r.usage == nil {
		return period, nil, shared.WrapError("usage", "Records", shared.ErrServiceUnavailable, "usage store cannot list records", nil)
	}
	records, err := r.usage.Records(ctx, period)
	if err != nil {
		return period, nil, err
	}
	if records == nil {
		records = []usage.Record{}
	}
	return period, records, nil
}
