package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// RetryPolicy bounds how often a conflicting transaction body is re-run.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 200 * time.Millisecond}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// delay returns the pause before attempt n+1 (n starts at 1).
func (p RetryPolicy) delay(n int) time.Duration {
	d := p.BaseDelay << uint(n-1)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return d
}

// isConflict recognises our own CAS failures plus postgres serialization
// failures (40001) and deadlocks (40P01).
func isConflict(err error) bool {
	if errors.Is(err, ErrConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func runWithRetry(ctx context.Context, policy RetryPolicy, attempt func() error) error {
	policy = policy.normalized()

	var lastErr error
	for n := 1; n <= policy.MaxAttempts; n++ {
		err := attempt()
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return err
		}
		lastErr = err

		if n == policy.MaxAttempts {
			break
		}
		zap.L().Debug("transaction conflict, retrying",
			zap.Int("attempt", n),
			zap.Error(err),
		)

		timer := time.NewTimer(policy.delay(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ErrStoreUnavailable, ctx.Err().Error())
		case <-timer.C:
		}
	}

	zap.L().Warn("transaction gave up after repeated conflicts",
		zap.Int("attempts", policy.MaxAttempts),
		zap.Error(lastErr),
	)
	return errors.Wrapf(ErrStoreUnavailable, "%d conflicting attempts", policy.MaxAttempts)
}
