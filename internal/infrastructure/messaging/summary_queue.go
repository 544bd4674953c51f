// Package messaging carries completed chat exchanges to the summary updater.
// Delivery is in-process and at-most-once: a failed job is logged and acked.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/oklog/ulid/v2"

	"github.com/mentor-hub/mentor-hub/internal/domain/summary"
	"github.com/mentor-hub/mentor-hub/pkg/logger"
)

// TopicExchangeCompleted is published once per answered chat message.
const TopicExchangeCompleted = "chat.exchange_completed"

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("messaging: summary queue is closed")

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Handler processes one exchange.
type Handler func(ctx context.Context, ex summary.Exchange) error

// QueueConfig configures the summary queue.
type QueueConfig struct {
	// Buffer is the size of the subscriber channel.
	Buffer int64
	// JobTimeout bounds one handler run. The handler context does not
	// inherit cancellation from the request that enqueued the job.
	JobTimeout time.Duration
}

// DefaultQueueConfig returns sensible defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{Buffer: 100, JobTimeout: 90 * time.Second}
}

// ══════════════════════════════════════════════════════════════════════════════
// QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// SummaryQueue runs summary updates on a single background consumer.
type SummaryQueue struct {
	pubsub  *gochannel.GoChannel
	handler Handler
	config  QueueConfig
	log     *logger.Logger
	metrics *QueueMetrics

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewSummaryQueue creates a queue. Call Start before Enqueue.
func NewSummaryQueue(cfg QueueConfig, handler Handler, log *logger.Logger) *SummaryQueue {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 100
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SummaryQueue{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: cfg.Buffer,
			Persistent:          false,
		}, watermill.NopLogger{}),
		handler: handler,
		config:  cfg,
		log:     log.With(logger.Component("summary_queue")),
		metrics: &QueueMetrics{},
	}
}

// Start subscribes the consumer. The consumer stops when Close is called.
func (q *SummaryQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.started {
		return nil
	}

	// The subscription lives until Close, not until ctx ends.
	messages, err := q.pubsub.Subscribe(context.WithoutCancel(ctx), TopicExchangeCompleted)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	q.started = true

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for msg := range messages {
			q.process(msg)
		}
	}()
	return nil
}

// Enqueue publishes an exchange. It never waits for the handler.
func (q *SummaryQueue) Enqueue(_ context.Context, ex summary.Exchange) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	payload, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("marshal exchange: %w", err)
	}
	msg := message.NewMessage(ulid.Make().String(), payload)

	if err := q.pubsub.Publish(TopicExchangeCompleted, msg); err != nil {
		return fmt.Errorf("publish exchange: %w", err)
	}
	q.metrics.published.Add(1)
	return nil
}

// Close stops accepting jobs, lets the in-flight job finish and waits for
// the consumer to exit.
func (q *SummaryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	err := q.pubsub.Close()
	q.wg.Wait()
	return err
}

// Metrics returns a snapshot of queue counters.
func (q *SummaryQueue) Metrics() QueueSnapshot {
	return q.metrics.Snapshot()
}

func (q *SummaryQueue) process(msg *message.Message) {
	defer msg.Ack()

	ctx := context.WithoutCancel(msg.Context())
	if q.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.config.JobTimeout)
		defer cancel()
	}

	log := q.log.With(logger.String("message_id", msg.UUID))

	var ex summary.Exchange
	if err := json.Unmarshal(msg.Payload, &ex); err != nil {
		q.metrics.failed.Add(1)
		log.Error("undecodable exchange dropped", logger.Err(err))
		return
	}
	log = log.With(logger.Email(ex.Email))

	start := time.Now()
	if err := q.run(ctx, ex); err != nil {
		q.metrics.failed.Add(1)
		log.Warn("summary update failed", logger.Err(err), logger.Latency(time.Since(start)))
		return
	}
	q.metrics.processed.Add(1)
	log.Debug("summary updated", logger.Latency(time.Since(start)))
}

func (q *SummaryQueue) run(ctx context.Context, ex summary.Exchange) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in summary handler: %v", r)
		}
	}()
	return q.handler(ctx, ex)
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// QueueMetrics counts queue activity.
type QueueMetrics struct {
	published atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

// QueueSnapshot is a point-in-time copy of QueueMetrics.
type QueueSnapshot struct {
	Published int64 `json:"published"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Snapshot returns the current counters.
func (m *QueueMetrics) Snapshot() QueueSnapshot {
	return QueueSnapshot{
		Published: m.published.Load(),
		Processed: m.processed.Load(),
		Failed:    m.failed.Load(),
	}
}
