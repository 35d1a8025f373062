package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRetentionService_PruneUsesCutoff(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	repo := newMockSessionRepo()
	var gotCutoff time.Time
	repo.deleteTerminalBeforeFunc = func(ctx context.Context, cutoff time.Time) (int64, error) {
		gotCutoff = cutoff
		return 4, nil
	}

	svc := NewRetentionService(repo, zap.NewNop()).(*retentionService)
	svc.now = func() time.Time { return now }

	deleted, err := svc.Prune(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
	assert.Equal(t, now.AddDate(0, 0, -7), gotCutoff)

	_, err = svc.Prune(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -DefaultRetentionDays), gotCutoff)
}

func TestRetentionService_PruneError(t *testing.T) {
	repo := newMockSessionRepo()
	repo.deleteTerminalBeforeFunc = func(ctx context.Context, cutoff time.Time) (int64, error) {
		return 0, errors.New("connection reset")
	}

	_, err := NewRetentionService(repo, zap.NewNop()).Prune(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRetentionService_SchedulerRunsImmediately(t *testing.T) {
	repo := newMockSessionRepo()
	ran := make(chan struct{}, 1)
	repo.deleteTerminalBeforeFunc = func(ctx context.Context, cutoff time.Time) (int64, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return 0, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	NewRetentionService(repo, zap.NewNop()).RunScheduler(ctx, time.Hour, 1)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not prune on startup")
	}
}
