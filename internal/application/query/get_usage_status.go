package query

import (
	"context"
	"strings"
	"time"

	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/internal/domain/usage"
	"github.com/mentor-hub/mentor-hub/pkg/logger"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

// Pinger checks that a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ══════════════════════════════════════════════════════════════════════════════
// GET USAGE STATUS QUERY
// Health endpoint: backend reachability plus the quota of one student.
// ══════════════════════════════════════════════════════════════════════════════

// GetUsageStatusQuery names the student. Email is required.
type GetUsageStatusQuery struct {
	Email string
}

// Validate checks the query.
func (q GetUsageStatusQuery) Validate() error {
	if strings.TrimSpace(q.Email) == "" {
		return shared.WrapError("usage", "Status", shared.ErrInvalidInput, "email is required", nil)
	}
	return nil
}

// UsageStatus is the health report of one student.
type UsageStatus struct {
	BackendOK bool
	Decision  usage.Decision
	Time      time.Time
}

// GetUsageStatusHandler handles GetUsageStatusQuery.
type GetUsageStatusHandler struct {
	governor *usage.Governor
	limit    int64
	backend  Pinger
	clock    timeutil.Clock
	log      *logger.Logger
}

// NewGetUsageStatusHandler creates a new GetUsageStatusHandler.
func NewGetUsageStatusHandler(governor *usage.Governor, limit int64, backend Pinger, clock timeutil.Clock, log *logger.Logger) *GetUsageStatusHandler {
	if clock == nil {
		clock = timeutil.SystemClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GetUsageStatusHandler{
		governor: governor,
		limit:    limit,
		backend:  backend,
		clock:    clock,
		log:      log.With(logger.Component("health")),
	}
}

// Handle never consumes quota. A usage store failure reports the student as
// denied and returns the error with the status.
func (h *GetUsageStatusHandler) Handle(ctx context.Context, q GetUsageStatusQuery) (*UsageStatus, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	status := &UsageStatus{BackendOK: true, Time: h.clock.Now().UTC()}
	if h.backend != nil {
		if err := h.backend.Ping(ctx); err != nil {
			h.log.Warn("completion backend health check failed", logger.Err(err))
			status.BackendOK = false
		}
	}

	decision, err := h.governor.CheckOnly(ctx, q.Email, h.limit)
	status.Decision = decision
	if err != nil {
		h.log.Error("usage lookup failed", logger.Email(usage.NormalizeEmail(q.Email)), logger.Err(err))
		return status, err
	}
	return status, nil
}
