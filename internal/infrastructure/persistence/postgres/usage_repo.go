package postgres

import (
	"context"
	"fmt"

	"github.com/mentor-hub/mentor-hub/internal/domain/usage"
)

// UsageRepository implements usage.Counter on the student_usage table.
// Increments are a single UPSERT so concurrent requests never lose a count.
type UsageRepository struct {
	conn *Connection
}

// NewUsageRepository creates a new UsageRepository.
func NewUsageRepository(conn *Connection) *UsageRepository {
	return &UsageRepository{conn: conn}
}

var _ usage.Counter = (*UsageRepository)(nil)

// Count returns the stored count, 0 when no record exists.
func (r *UsageRepository) Count(ctx context.Context, email, period string) (int64, error) {
	var count int64
	err := r.conn.QueryRow(ctx,
		`SELECT count FROM student_usage WHERE email = $1 AND period = $2`, email, period,
	).Scan(&count)
	if IsNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage: %w", err)
	}
	return count, nil
}

// Increment adds one and returns the new count.
func (r *UsageRepository) Increment(ctx context.Context, email, period string) (int64, error) {
	var count int64
	err := r.conn.QueryRow(ctx, `
		INSERT INTO student_usage (email, period, count) VALUES ($1, $2, 1)
		ON CONFLICT (email, period) DO UPDATE
			SET count = student_usage.count + 1, updated_at = NOW()
		RETURNING count
	`, email, period).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}
	return count, nil
}

// Records lists the usage of every student in period, highest first.
func (r *UsageRepository) Records(ctx context.Context, period string) ([]usage.Record, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT email, period, count, created_at, updated_at
		FROM student_usage WHERE period = $1
		ORDER BY count DESC, email
	`, period)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	defer rows.Close()

	var out []usage.Record
	for rows.Next() {
		var rec usage.Record
		if err := rows.Scan(&rec.Email, &rec.Period, &rec.Count, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
