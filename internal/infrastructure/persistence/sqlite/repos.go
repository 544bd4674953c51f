package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mentor-hub/mentor-hub/internal/domain/prompt"
	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/internal/domain/summary"
	"github.com/mentor-hub/mentor-hub/internal/domain/usage"
)

// ══════════════════════════════════════════════════════════════════════════════
// USAGE
// ══════════════════════════════════════════════════════════════════════════════

// UsageRepository implements usage.Counter.
type UsageRepository struct {
	store *Store
}

// NewUsageRepository creates a new UsageRepository.
func NewUsageRepository(store *Store) *UsageRepository {
	return &UsageRepository{store: store}
}

var _ usage.Counter = (*UsageRepository)(nil)

// Count returns the stored count, 0 when absent.
func (r *UsageRepository) Count(ctx context.Context, email, period string) (int64, error) {
	var n int64
	err := r.store.db.QueryRowContext(ctx,
		`SELECT count FROM student_usage WHERE email = ? AND period = ?`, email, period).Scan(&n)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read usage: %w", err)
	}
	return n, nil
}

// Increment adds one in a single statement and returns the new count.
func (r *UsageRepository) Increment(ctx context.Context, email, period string) (int64, error) {
	now := formatTime(time.Now())
	var n int64
	err := r.store.db.QueryRowContext(ctx, `
		INSERT INTO student_usage (email, period, count, created_at, updated_at) VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (email, period) DO UPDATE SET count = count + 1, updated_at = excluded.updated_at
		RETURNING count`, email, period, now, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return n, nil
}

// Records lists usage for period, highest first.
func (r *UsageRepository) Records(ctx context.Context, period string) ([]usage.Record, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT email, period, count, created_at, updated_at FROM student_usage
		WHERE period = ? ORDER BY count DESC, email`, period)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	defer rows.Close()

	var out []usage.Record
	for rows.Next() {
		var (
			rec              usage.Record
			created, updated string
		)
		if err := rows.Scan(&rec.Email, &rec.Period, &rec.Count, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		rec.CreatedAt, rec.UpdatedAt = parseTime(created), parseTime(updated)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// SUMMARIES
// ══════════════════════════════════════════════════════════════════════════════

// SummaryRepository implements summary.Repository.
type SummaryRepository struct {
	store *Store
}

// NewSummaryRepository creates a new SummaryRepository.
func NewSummaryRepository(store *Store) *SummaryRepository {
	return &SummaryRepository{store: store}
}

var _ summary.Repository = (*SummaryRepository)(nil)

// Get returns the summary or nil.
func (r *SummaryRepository) Get(ctx context.Context, email string) (*summary.Summary, error) {
	var (
		s       summary.Summary
		updated string
	)
	err := r.store.db.QueryRowContext(ctx,
		`SELECT email, summary, updated_at FROM student_summaries WHERE email = ?`, email,
	).Scan(&s.Email, &s.Text, &updated)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	s.UpdatedAt = parseTime(updated)
	return &s, nil
}

// Put overwrites the summary of email.
func (r *SummaryRepository) Put(ctx context.Context, email, text string) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO student_summaries (email, summary, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET summary = excluded.summary, updated_at = excluded.updated_at`,
		email, text, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROMPTS
// ══════════════════════════════════════════════════════════════════════════════

const mentorConfigKey = "mentor"

// PromptRepository implements prompt.TemplateRepository and prompt.ConfigRepository.
type PromptRepository struct {
	store *Store
}

// NewPromptRepository creates a new PromptRepository.
func NewPromptRepository(store *Store) *PromptRepository {
	return &PromptRepository{store: store}
}

var (
	_ prompt.TemplateRepository = (*PromptRepository)(nil)
	_ prompt.ConfigRepository   = (*PromptRepository)(nil)
)

// Get returns a template by key.
func (r *PromptRepository) Get(ctx context.Context, key string) (*prompt.Template, error) {
	row := r.store.db.QueryRowContext(ctx,
		`SELECT key, label, content, created_at, updated_at FROM prompt_templates WHERE key = ?`, key)
	return scanTemplate(row)
}

// List returns all templates ordered by key.
func (r *PromptRepository) List(ctx context.Context) ([]*prompt.Template, error) {
	rows, err := r.store.db.QueryContext(ctx,
		`SELECT key, label, content, created_at, updated_at FROM prompt_templates ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*prompt.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Upsert creates or replaces a template.
func (r *PromptRepository) Upsert(ctx context.Context, t *prompt.Template) error {
	now := formatTime(time.Now())
	var created, updated string
	err := r.store.db.QueryRowContext(ctx, `
		INSERT INTO prompt_templates (key, label, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			label = excluded.label, content = excluded.content, updated_at = excluded.updated_at
		RETURNING created_at, updated_at`, t.Key, t.Label, t.Content, now, now).Scan(&created, &updated)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	t.CreatedAt, t.UpdatedAt = parseTime(created), parseTime(updated)
	return nil
}

// Delete removes a template.
func (r *PromptRepository) Delete(ctx context.Context, key string) error {
	res, err := r.store.db.ExecContext(ctx, `DELETE FROM prompt_templates WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.ErrTemplateNotFound
	}
	return nil
}

func scanTemplate(row rowScanner) (*prompt.Template, error) {
	var (
		t                prompt.Template
		created, updated string
	)
	if err := row.Scan(&t.Key, &t.Label, &t.Content, &created, &updated); err != nil {
		if isNoRows(err) {
			return nil, shared.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}
	t.CreatedAt, t.UpdatedAt = parseTime(created), parseTime(updated)
	return &t, nil
}

// GetMentorConfig returns the stored config or a zero value.
func (r *PromptRepository) GetMentorConfig(ctx context.Context) (prompt.MentorConfig, error) {
	var raw, updated string
	err := r.store.db.QueryRowContext(ctx,
		`SELECT value, updated_at FROM app_config WHERE key = ?`, mentorConfigKey).Scan(&raw, &updated)
	if isNoRows(err) {
		return prompt.MentorConfig{}, nil
	}
	if err != nil {
		return prompt.MentorConfig{}, fmt.Errorf("get mentor config: %w", err)
	}

	var cfg prompt.MentorConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal mentor config: %w", err)
	}
	cfg.UpdatedAt = parseTime(updated)
	return cfg, nil
}

// SaveMentorConfig overwrites the mentor config.
func (r *PromptRepository) SaveMentorConfig(ctx context.Context, cfg prompt.MentorConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal mentor config: %w", err)
	}
	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO app_config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		mentorConfigKey, string(raw), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save mentor config: %w", err)
	}
	return nil
}
