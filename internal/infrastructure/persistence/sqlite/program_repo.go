package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mentor-hub/mentor-hub/internal/domain/program"
	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
)

// ProgramRepository implements program.Repository.
type ProgramRepository struct {
	store *Store
}

// NewProgramRepository creates a new ProgramRepository.
func NewProgramRepository(store *Store) *ProgramRepository {
	return &ProgramRepository{store: store}
}

var _ program.Repository = (*ProgramRepository)(nil)

const programColumns = `key, label, description, objectives, level, resources, modules,
	published, publish_token, published_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// GetByKey returns a program by key.
func (r *ProgramRepository) GetByKey(ctx context.Context, key string) (*program.Program, error) {
	row := r.store.db.QueryRowContext(ctx, `SELECT `+programColumns+` FROM programs WHERE key = ?`, key)
	return scanProgram(row)
}

// GetByPublishToken returns the published program holding token.
func (r *ProgramRepository) GetByPublishToken(ctx context.Context, token string) (*program.Program, error) {
	row := r.store.db.QueryRowContext(ctx,
		`SELECT `+programColumns+` FROM programs WHERE publish_token = ? AND published = 1`, token)
	return scanProgram(row)
}

// List returns all programs ordered by key.
func (r *ProgramRepository) List(ctx context.Context) ([]*program.Program, error) {
	rows, err := r.store.db.QueryContext(ctx, `SELECT `+programColumns+` FROM programs ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
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

// Upsert creates or replaces program content, keeping publish state and
// created_at of an existing row.
func (r *ProgramRepository) Upsert(ctx context.Context, p *program.Program) error {
	mods := p.Modules
	if mods == nil {
		mods = []program.Module{}
	}
	res := p.Resources
	if res == nil {
		res = []string{}
	}
	modules, err := json.Marshal(mods)
	if err != nil {
		return fmt.Errorf("marshal modules: %w", err)
	}
	resources, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal resources: %w", err)
	}

	now := formatTime(time.Now())
	var created, updated string
	err = r.store.db.QueryRowContext(ctx, `
		INSERT INTO programs (key, label, description, objectives, level, resources, modules, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			label = excluded.label,
			description = excluded.description,
			objectives = excluded.objectives,
			level = excluded.level,
			resources = excluded.resources,
			modules = excluded.modules,
			updated_at = excluded.updated_at
		RETURNING created_at, updated_at`,
		p.Key, p.Label, p.Description, p.Objectives, p.Level, string(resources), string(modules), now, now,
	).Scan(&created, &updated)
	if err != nil {
		return fmt.Errorf("upsert program: %w", err)
	}
	p.CreatedAt, p.UpdatedAt = parseTime(created), parseTime(updated)
	return nil
}

// Delete removes a program.
func (r *ProgramRepository) Delete(ctx context.Context, key string) error {
	res, err := r.store.db.ExecContext(ctx, `DELETE FROM programs WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete program: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.ErrProgramNotFound
	}
	return nil
}

// SavePublishState replaces the publish state and revokes the previous token.
func (r *ProgramRepository) SavePublishState(ctx context.Context, key string, state program.PublishState) error {
	return r.savePublishState(ctx, key, state, false)
}

// RotatePublishToken is SavePublishState guarded on the program being
// published when the transaction reads it.
func (r *ProgramRepository) RotatePublishToken(ctx context.Context, key string, state program.PublishState) error {
	return r.savePublishState(ctx, key, state, true)
}

func (r *ProgramRepository) savePublishState(ctx context.Context, key string, state program.PublishState, mustBePublished bool) error {
	return r.store.withTx(ctx, func(tx *sql.Tx) error {
		var (
			old          sql.NullString
			wasPublished bool
		)
		err := tx.QueryRowContext(ctx,
			`SELECT publish_token, published FROM programs WHERE key = ?`, key).Scan(&old, &wasPublished)
		if isNoRows(err) {
			return shared.ErrProgramNotFound
		}
		if err != nil {
			return fmt.Errorf("read program: %w", err)
		}
		if mustBePublished && !wasPublished {
			return shared.ErrNotPublished
		}

		now := formatTime(time.Now())
		if old.Valid && (state.Token == nil || *state.Token != old.String) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO revoked_publish_tokens (token, program_key, revoked_at) VALUES (?, ?, ?)
				ON CONFLICT (token) DO NOTHING`, old.String, key, now)
			if err != nil {
				return fmt.Errorf("revoke token: %w", err)
			}
		}

		var token, publishedAt any
		if state.Token != nil {
			token = *state.Token
		}
		if state.PublishedAt != nil {
			publishedAt = formatTime(*state.PublishedAt)
		}
		published := 0
		if state.Published {
			published = 1
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE programs SET published = ?, publish_token = ?, published_at = ?, updated_at = ?
			WHERE key = ?`, published, token, publishedAt, now, key)
		if err != nil {
			return fmt.Errorf("save publish state: %w", err)
		}
		return nil
	})
}

// TokenRevoked reports whether token was ever revoked.
func (r *ProgramRepository) TokenRevoked(ctx context.Context, token string) (bool, error) {
	var n int
	err := r.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revoked_publish_tokens WHERE token = ?`, token).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

func scanProgram(row rowScanner) (*program.Program, error) {
	var (
		p                    program.Program
		resources, modules   string
		published            int
		token, publishedAt   sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&p.Key, &p.Label, &p.Description, &p.Objectives, &p.Level, &resources, &modules,
		&published, &token, &publishedAt, &createdAt, &updatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, shared.ErrProgramNotFound
		}
		return nil, fmt.Errorf("scan program: %w", err)
	}

	if err := json.Unmarshal([]byte(resources), &p.Resources); err != nil {
		return nil, fmt.Errorf("unmarshal resources: %w", err)
	}
	if err := json.Unmarshal([]byte(modules), &p.Modules); err != nil {
		return nil, fmt.Errorf("unmarshal modules: %w", err)
	}

	p.Published = published == 1
	if token.Valid {
		t := token.String
		p.Token = &t
	}
	p.PublishedAt = parseNullTime(publishedAt)
	p.CreatedAt, p.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
	return &p, nil
}
