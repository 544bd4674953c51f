package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mentor-hub/mentor-hub/internal/domain/prompt"
	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
)

const mentorConfigKey = "mentor"

// PromptRepository implements prompt.TemplateRepository and
// prompt.ConfigRepository.
type PromptRepository struct {
	conn *Connection
}

// NewPromptRepository creates a new PromptRepository.
func NewPromptRepository(conn *Connection) *PromptRepository {
	return &PromptRepository{conn: conn}
}

var (
	_ prompt.TemplateRepository = (*PromptRepository)(nil)
	_ prompt.ConfigRepository   = (*PromptRepository)(nil)
)

// ─────────────────────────────────────────────────────────────────────────────
// Templates
// ─────────────────────────────────────────────────────────────────────────────

// Get returns a template by key.
func (r *PromptRepository) Get(ctx context.Context, key string) (*prompt.Template, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT key, label, content, created_at, updated_at FROM prompt_templates WHERE key = $1`, key)
	return scanTemplate(row)
}

// List returns all templates ordered by key.
func (r *PromptRepository) List(ctx context.Context) ([]*prompt.Template, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT key, label, content, created_at, updated_at FROM prompt_templates ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
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
	err := r.conn.QueryRow(ctx, `
		INSERT INTO prompt_templates (key, label, content) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			label = EXCLUDED.label, content = EXCLUDED.content, updated_at = NOW()
		RETURNING created_at, updated_at
	`, t.Key, t.Label, t.Content).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert template: %w", err)
	}
	return nil
}

// Delete removes a template.
func (r *PromptRepository) Delete(ctx context.Context, key string) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM prompt_templates WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrTemplateNotFound
	}
	return nil
}

func scanTemplate(row pgx.Row) (*prompt.Template, error) {
	var t prompt.Template
	if err := row.Scan(&t.Key, &t.Label, &t.Content, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}
	return &t, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Mentor config
// ─────────────────────────────────────────────────────────────────────────────

// GetMentorConfig returns the stored config or a zero value.
func (r *PromptRepository) GetMentorConfig(ctx context.Context) (prompt.MentorConfig, error) {
	var (
		cfg     prompt.MentorConfig
		raw     []byte
		updated time.Time
	)
	err := r.conn.QueryRow(ctx,
		`SELECT value, updated_at FROM app_config WHERE key = $1`, mentorConfigKey,
	).Scan(&raw, &updated)
	if IsNoRows(err) {
		return prompt.MentorConfig{}, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to get mentor config: %w", err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal mentor config: %w", err)
	}
	cfg.UpdatedAt = updated
	return cfg, nil
}

// SaveMentorConfig overwrites the mentor config.
func (r *PromptRepository) SaveMentorConfig(ctx context.Context, cfg prompt.MentorConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal mentor config: %w", err)
	}
	_, err = r.conn.Exec(ctx, `
		INSERT INTO app_config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, mentorConfigKey, raw)
	if err != nil {
		return fmt.Errorf("failed to save mentor config: %w", err)
	}
	return nil
}
