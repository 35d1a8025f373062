package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/mapping"
	"github.com/ekaya-inc/ekaya-intake/pkg/repositories"
	"github.com/ekaya-inc/ekaya-intake/pkg/retry"
)

// ConfirmedMapping is one human-confirmed source → target pair.
type ConfirmedMapping struct {
	SourceField string
	TargetField string
}

// LearningTask records the confirmed mappings of one committed session.
type LearningTask struct {
	SessionID  uuid.UUID
	SchemaName string
	Mappings   []ConfirmedMapping
}

// LearningScheduler accepts learning work without blocking the caller.
type LearningScheduler interface {
	// Dispatch queues task and reports whether it was accepted.
	Dispatch(task LearningTask) bool
}

// LearningDispatcher upserts learned patterns on background workers.
// Failures are logged and never reach the session that triggered them.
type LearningDispatcher struct {
	patterns repositories.LearnedPatternRepository
	logger   *zap.Logger

	workers     int
	parallelism int
	taskTimeout time.Duration
	retryConfig *retry.Config

	queue     chan LearningTask
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

var _ LearningScheduler = (*LearningDispatcher)(nil)

// LearningOption configures a LearningDispatcher.
type LearningOption func(*LearningDispatcher)

// WithLearningWorkers sets the number of worker goroutines.
func WithLearningWorkers(n int) LearningOption {
	return func(d *LearningDispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithLearningQueueSize sets how many tasks may wait before Dispatch drops.
func WithLearningQueueSize(n int) LearningOption {
	return func(d *LearningDispatcher) {
		if n > 0 {
			d.queue = make(chan LearningTask, n)
		}
	}
}

// WithLearningRetry sets the backoff for each upsert. Its classifier is
// always replaced by retry.IsRetryableBeforeWrite.
func WithLearningRetry(cfg *retry.Config) LearningOption {
	return func(d *LearningDispatcher) {
		if cfg != nil {
			d.retryConfig = cfg
		}
	}
}

// WithLearningTaskTimeout bounds one task.
func WithLearningTaskTimeout(timeout time.Duration) LearningOption {
	return func(d *LearningDispatcher) {
		if timeout > 0 {
			d.taskTimeout = timeout
		}
	}
}

// NewLearningDispatcher starts the workers. Call Close to drain and stop them.
func NewLearningDispatcher(patterns repositories.LearnedPatternRepository, logger *zap.Logger, opts ...LearningOption) *LearningDispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &LearningDispatcher{
		patterns:    patterns,
		logger:      logger.Named("learning"),
		workers:     2,
		parallelism: 4,
		taskTimeout: 30 * time.Second,
		retryConfig: retry.DefaultConfig(),
		queue:       make(chan LearningTask, 64),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(d)
	}

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

// Dispatch implements LearningScheduler. A full queue or a closed dispatcher
// drops the task.
func (d *LearningDispatcher) Dispatch(task LearningTask) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("Learning task dropped after close",
			zap.String("session_id", task.SessionID.String()),
			zap.Error(apperrors.ErrLearningLoop))
		return false
	}
	select {
	case d.queue <- task:
		return true
	default:
		d.logger.Warn("Learning queue full, task dropped",
			zap.String("session_id", task.SessionID.String()),
			zap.Int("mappings", len(task.Mappings)),
			zap.Error(apperrors.ErrLearningLoop))
		return false
	}
}

// Close stops accepting tasks, finishes the queued ones and waits for the
// workers to exit.
func (d *LearningDispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
		d.wg.Wait()
		d.cancel()
	})
}

func (d *LearningDispatcher) work() {
	defer d.wg.Done()
	for task := range d.queue {
		if err := d.run(task); err != nil {
			d.logger.Error("Learning task failed",
				zap.String("session_id", task.SessionID.String()),
				zap.Error(fmt.Errorf("%w: %v", apperrors.ErrLearningLoop, err)))
		}
	}
}

func (d *LearningDispatcher) run(task LearningTask) error {
	ctx, cancel := context.WithTimeout(d.ctx, d.taskTimeout)
	defer cancel()

	// UpsertIncrement is not idempotent: only failures that guarantee the
	// increment was not applied are retried.
	rc := *d.retryConfig
	rc.Retryable = retry.IsRetryableBeforeWrite

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallelism)
	for _, m := range task.Mappings {
		sig := mapping.Signature(task.SchemaName, m.SourceField)
		target := m.TargetField
		g.Go(func() error {
			return retry.DoIfRetryable(gctx, &rc, func() error {
				return d.patterns.UpsertIncrement(gctx, sig, target)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	d.logger.Debug("Learned patterns recorded",
		zap.String("session_id", task.SessionID.String()),
		zap.Int("mappings", len(task.Mappings)))
	return nil
}
