package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/repositories"
)

// DefaultRetentionDays is how long terminal sessions are kept by default.
const DefaultRetentionDays = 30

// RetentionService removes terminal import sessions and their context logs.
type RetentionService interface {
	// Prune deletes terminal sessions last updated more than retentionDays ago.
	Prune(ctx context.Context, retentionDays int) (int64, error)

	// RunScheduler starts a background goroutine that prunes on the given interval.
	// It runs immediately on startup, then repeats every interval.
	// Cancel the context to stop the scheduler.
	RunScheduler(ctx context.Context, interval time.Duration, retentionDays int)
}

type retentionService struct {
	sessionRepo repositories.ImportSessionRepository
	logger      *zap.Logger
	now         func() time.Time
}

func NewRetentionService(sessionRepo repositories.ImportSessionRepository, logger *zap.Logger) RetentionService {
	return &retentionService{
		sessionRepo: sessionRepo,
		logger:      logger.Named("retention-service"),
		now:         time.Now,
	}
}

var _ RetentionService = (*retentionService)(nil)

func (s *retentionService) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)

	deleted, err := s.sessionRepo.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune import sessions: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("Retention cleanup completed",
			zap.Int("retention_days", retentionDays),
			zap.Int64("sessions_deleted", deleted))
	}
	return deleted, nil
}

// RunScheduler starts a background loop that prunes old sessions.
func (s *retentionService) RunScheduler(ctx context.Context, interval time.Duration, retentionDays int) {
	go func() {
		s.logger.Info("Retention scheduler started",
			zap.Duration("interval", interval),
			zap.Int("retention_days", retentionDays))

		s.pruneOnce(ctx, retentionDays)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Retention scheduler stopped")
				return
			case <-ticker.C:
				s.pruneOnce(ctx, retentionDays)
			}
		}
	}()
}

func (s *retentionService) pruneOnce(ctx context.Context, retentionDays int) {
	if _, err := s.Prune(ctx, retentionDays); err != nil {
		s.logger.Error("Retention scheduler: prune failed", zap.Error(err))
	}
}
