package postgres

import (
	"context"
	"fmt"

	"github.com/mentor-hub/mentor-hub/internal/domain/summary"
)

// SummaryRepository implements summary.Repository.
type SummaryRepository struct {
	conn *Connection
}

// NewSummaryRepository creates a new SummaryRepository.
func NewSummaryRepository(conn *Connection) *SummaryRepository {
	return &SummaryRepository{conn: conn}
}

var _ summary.Repository = (*SummaryRepository)(nil)

// Get returns the summary of email, or nil when none is stored.
func (r *SummaryRepository) Get(ctx context.Context, email string) (*summary.Summary, error) {
	var s summary.Summary
	err := r.conn.QueryRow(ctx,
		`SELECT email, summary, updated_at FROM student_summaries WHERE email = $1`, email,
	).Scan(&s.Email, &s.Text, &s.UpdatedAt)
	if IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return &s, nil
}

// Put overwrites the summary of email.
func (r *SummaryRepository) Put(ctx context.Context, email, text string) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO student_summaries (email, summary, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (email) DO UPDATE SET summary = EXCLUDED.summary, updated_at = NOW()
	`, email, text)
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}
