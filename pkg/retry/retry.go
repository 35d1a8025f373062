// Package retry retries transient storage failures with exponential backoff.
// It covers the commit sinks and the learned-pattern store, whose drivers
// report transient conditions in different shapes.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0, fraction of the delay randomized either way
	MaxSameErrorType int     // after N consecutive failures of one class, give up early (0 disables)

	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
	// Retryable, if set, replaces IsRetryable as the classifier.
	Retryable func(error) bool
}

// DefaultConfig returns the defaults used for sink commits and pattern upserts:
// 3 retries starting at 100ms, doubling, capped at 5s, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 3,
	}
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// RetryableError is implemented by errors that declare their own retryability,
// such as apperrors.SessionError and the LLM client errors.
type RetryableError interface {
	error
	IsRetryable() bool
}

// SQLSTATE classes and codes worth another attempt.
var (
	retryablePgClasses = []string{"08", "53", "57P0"}
	retryablePgCodes   = map[string]bool{
		"40001": true, // serialization_failure
		"40P01": true, // deadlock_detected
		"55P03": true, // lock_not_available
	}
)

// SQL Server error numbers worth another attempt.
var retryableMSSQLNumbers = map[int32]bool{
	1205:  true, // deadlock victim
	1222:  true, // lock request timeout
	40197: true, // service error processing request
	40501: true, // service busy
	40613: true, // database unavailable
	49918: true,
	49919: true,
	49920: true,
	10928: true, // resource limit
	10929: true,
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"deadlock",
	"network is unreachable",
	"429",
	"502",
	"503",
	"504",
	"rate limit",
	"service unavailable",
	"too many requests",
}

// IsRetryable reports whether err is transient. Checks run in order: declared
// retryability anywhere in the chain, context errors, Postgres SQLSTATE, SQL
// Server error numbers, network timeouts, then message patterns.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var declared RetryableError
	if errors.As(err, &declared) {
		return declared.IsRetryable()
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isRetryablePgCode(pgErr.Code)
	}

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return retryableMSSQLNumbers[msErr.Number]
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Failures after which a write is known not to have been applied.
var (
	preWritePgCodes = map[string]bool{
		"08001": true, // sqlclient_unable_to_establish_sqlconnection
		"08004": true, // sqlserver_rejected_establishment_of_sqlconnection
		"40001": true, // serialization_failure, rolled back
		"40P01": true, // deadlock_detected, rolled back
		"53300": true, // too_many_connections
		"55P03": true, // lock_not_available
		"57P03": true, // cannot_connect_now
	}
	preWriteMSSQLNumbers = map[int32]bool{
		1205:  true,
		1222:  true,
		40501: true,
		10928: true,
		10929: true,
	}
	preWritePatterns = []string{
		"connection refused",
		"too many connections",
		"no such host",
	}
)

// IsRetryableBeforeWrite is the classifier for writes that are not
// idempotent. It accepts only failures where the statement was never sent or
// the server rolled it back. Timeouts and dropped connections leave the
// outcome unknown and are not retried.
func IsRetryableBeforeWrite(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return preWritePgCodes[pgErr.Code]
	}
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return preWriteMSSQLNumbers[msErr.Number]
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, p := range preWritePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func isRetryablePgCode(code string) bool {
	if retryablePgCodes[code] {
		return true
	}
	for _, class := range retryablePgClasses {
		if strings.HasPrefix(code, class) {
			return true
		}
	}
	return false
}

// classifyErrorType buckets an error so repeated failures of one kind can be
// detected.
func classifyErrorType(err error) string {
	if err == nil {
		return "nil"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return "pg:" + pgErr.Code
	}
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return fmt.Sprintf("mssql:%d", msErr.Number)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"):
		return "connection"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return "timeout"
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"), strings.Contains(msg, "429"):
		return "rate_limit"
	case strings.Contains(msg, "deadlock"):
		return "deadlock"
	}
	for _, code := range []string{"502", "503", "504"} {
		if strings.Contains(msg, code) {
			return code
		}
	}
	return "unknown"
}

// DoIfRetryable runs fn until it succeeds, returns a permanent error, or the
// attempts run out. After MaxSameErrorType consecutive failures of one class
// the last error is returned wrapped as a repeated failure. Context
// cancellation during a wait returns ctx.Err().
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	retryable := IsRetryable
	if cfg.Retryable != nil {
		retryable = cfg.Retryable
	}

	var lastErr error
	delay := cfg.InitialDelay
	sameErrorCount := 0
	var lastErrorType string

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}

		errType := classifyErrorType(err)
		if errType == lastErrorType {
			sameErrorCount++
			if cfg.MaxSameErrorType > 0 && sameErrorCount >= cfg.MaxSameErrorType {
				return fmt.Errorf("repeated error (%d times, type=%s): %w", sameErrorCount, errType, err)
			}
		} else {
			sameErrorCount = 1
			lastErrorType = errType
		}

		if attempt == cfg.MaxRetries {
			break
		}
		wait := applyJitter(delay, cfg.JitterFactor)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, wait)
		}
		select {
		case <-time.After(wait):
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}
