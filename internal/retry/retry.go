// Package retry holds the single retry policy for transient database failures.
package retry

import (
	"context"
	"database/sql/driver"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/apperr"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/config"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"
)

// PostgreSQL SQLSTATE codes treated as transient.
var transientSQLStates = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
	"57014": {}, // query_canceled (lock or statement timeout)
}

// Policy retries an operation while it fails with transient errors.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultPolicy is used when no configuration is supplied.
var DefaultPolicy = Policy{Attempts: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}

// FromConfig builds a policy from configuration.
func FromConfig(cfg config.RetryConfig) Policy {
	p := Policy{Attempts: cfg.Attempts, BaseDelay: cfg.BaseDelay, MaxDelay: cfg.MaxDelay}
	if p.Attempts <= 0 {
		p.Attempts = DefaultPolicy.Attempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy.MaxDelay
	}
	return p
}

// Do runs fn until it succeeds, fails permanently or attempts run out.
// Exhausted transient failures are returned as apperr transient errors.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if errCtx := ctx.Err(); errCtx != nil {
			if lastErr != nil {
				return apperr.Transient(lastErr)
			}
			return errCtx
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		delay := p.backoff(attempt)
		log.WithError(lastErr).Debugf("retry: transient failure, attempt %d/%d, retrying in %s", attempt, attempts, delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return apperr.Transient(lastErr)
		case <-timer.C:
		}
	}

	if apperr.KindOf(lastErr) == apperr.KindTransient {
		return lastErr
	}
	return apperr.Transient(lastErr)
}

// backoff returns the exponential delay with jitter for the given attempt.
func (p Policy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		return 0
	}
	delay := base << (attempt - 1)
	if p.MaxDelay > 0 && (delay > p.MaxDelay || delay <= 0) {
		delay = p.MaxDelay
	}
	jitter := time.Duration(rand.Int64N(int64(delay)/2 + 1))
	return delay/2 + jitter
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if apperr.KindOf(err) == apperr.KindTransient {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := transientSQLStates[pgErr.Code]
		return ok
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}
