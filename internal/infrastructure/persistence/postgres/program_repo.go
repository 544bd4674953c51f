package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mentor-hub/mentor-hub/internal/domain/program"
	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRAM REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgramRepository implements program.Repository for PostgreSQL.
type ProgramRepository struct {
	conn *Connection
}

// NewProgramRepository creates a new ProgramRepository.
func NewProgramRepository(conn *Connection) *ProgramRepository {
	return &ProgramRepository{conn: conn}
}

var _ program.Repository = (*ProgramRepository)(nil)

const programColumns = `
	key, label, description, objectives, level, resources, modules,
	published, publish_token, published_at, created_at, updated_at
`

// GetByKey returns a program by key.
func (r *ProgramRepository) GetByKey(ctx context.Context, key string) (*program.Program, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+programColumns+` FROM programs WHERE key = $1`, key)
	return scanProgram(row)
}

// GetByPublishToken returns the published program holding token.
func (r *ProgramRepository) GetByPublishToken(ctx context.Context, token string) (*program.Program, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT `+programColumns+` FROM programs WHERE publish_token = $1 AND published`, token)
	return scanProgram(row)
}

// List returns all programs ordered by key.
func (r *ProgramRepository) List(ctx context.Context) ([]*program.Program, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+programColumns+` FROM programs ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	defer rows.Close()

	var out []*program.Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Upsert creates or replaces program content. Publish columns and
// created_at are left untouched on conflict.
func (r *ProgramRepository) Upsert(ctx context.Context, p *program.Program) error {
	modules, resources, err := marshalProgramJSON(p)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO programs (key, label, description, objectives, level, resources, modules, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (key) DO UPDATE SET
			label = EXCLUDED.label,
			description = EXCLUDED.description,
			objectives = EXCLUDED.objectives,
			level = EXCLUDED.level,
			resources = EXCLUDED.resources,
			modules = EXCLUDED.modules,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`
	err = r.conn.QueryRow(ctx, query,
		p.Key, p.Label, p.Description, p.Objectives, p.Level, resources, modules, now,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert program: %w", err)
	}
	return nil
}

// Delete removes a program.
func (r *ProgramRepository) Delete(ctx context.Context, key string) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM programs WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete program: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrProgramNotFound
	}
	return nil
}

// SavePublishState replaces the publish state and revokes the previous token
// in the same transaction.
func (r *ProgramRepository) SavePublishState(ctx context.Context, key string, state program.PublishState) error {
	return r.savePublishState(ctx, key, state, false)
}

// RotatePublishToken is SavePublishState guarded on the program being
// published while its row is locked.
func (r *ProgramRepository) RotatePublishToken(ctx context.Context, key string, state program.PublishState) error {
	return r.savePublishState(ctx, key, state, true)
}

func (r *ProgramRepository) savePublishState(ctx context.Context, key string, state program.PublishState, mustBePublished bool) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var (
			old          *string
			wasPublished bool
		)
		err := tx.QueryRow(ctx,
			`SELECT publish_token, published FROM programs WHERE key = $1 FOR UPDATE`, key).Scan(&old, &wasPublished)
		if IsNoRows(err) {
			return shared.ErrProgramNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock program: %w", err)
		}
		if mustBePublished && !wasPublished {
			return shared.ErrNotPublished
		}

		if old != nil && (state.Token == nil || *state.Token != *old) {
			_, err := tx.Exec(ctx, `
				INSERT INTO revoked_publish_tokens (token, program_key) VALUES ($1, $2)
				ON CONFLICT (token) DO NOTHING
			`, *old, key)
			if err != nil {
				return fmt.Errorf("failed to revoke token: %w", err)
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE programs SET published = $1, publish_token = $2, published_at = $3, updated_at = NOW()
			WHERE key = $4
		`, state.Published, state.Token, state.PublishedAt, key)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.WrapError("program", "SavePublishState", shared.ErrAlreadyExists,
					"publish token already in use", err)
			}
			return fmt.Errorf("failed to save publish state: %w", err)
		}
		return nil
	})
}

// TokenRevoked reports whether token was ever revoked.
func (r *ProgramRepository) TokenRevoked(ctx context.Context, token string) (bool, error) {
	var revoked bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_publish_tokens WHERE token = $1)`, token).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("failed to check revoked token: %w", err)
	}
	return revoked, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanProgram(row pgx.Row) (*program.Program, error) {
	var (
		p                  program.Program
		resources, modules []byte
	)
	err := row.Scan(
		&p.Key, &p.Label, &p.Description, &p.Objectives, &p.Level, &resources, &modules,
		&p.Published, &p.Token, &p.PublishedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgramNotFound
		}
		return nil, fmt.Errorf("failed to scan program: %w", err)
	}

	if err := json.Unmarshal(resources, &p.Resources); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resources: %w", err)
	}
	if err := json.Unmarshal(modules, &p.Modules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal modules: %w", err)
	}
	return &p, nil
}

func marshalProgramJSON(p *program.Program) (modules, resources []byte, err error) {
	mods := p.Modules
	if mods == nil {
		mods = []program.Module{}
	}
	res := p.Resources
	if res == nil {
		res = []string{}
	}
	if modules, err = json.Marshal(mods); err != nil {
		return nil, nil, fmt.Errorf("failed to marshal modules: %w", err)
	}
	if resources, err = json.Marshal(res); err != nil {
		return nil, nil, fmt.Errorf("failed to marshal resources: %w", err)
	}
	return modules, resources, nil
}
