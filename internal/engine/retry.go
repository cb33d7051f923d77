package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/models"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/sources"
)

// RetryPolicy wraps a single adapter call with bounded retries and
// exponential backoff. Only transient and rate-limited failures are worth
// repeating; blocked and malformed responses come back immediately.
type RetryPolicy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	PerAttemptTimeout time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRetryPolicy(maxAttempts int, baseDelay, perAttemptTimeout time.Duration) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryPolicy{
		MaxAttempts:       maxAttempts,
		BaseDelay:         baseDelay,
		PerAttemptTimeout: perAttemptTimeout,
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Fetch runs one page fetch under the policy. The returned error, if any,
// is the last attempt's classified error, or a context error when the
// overall deadline cut the sequence short.
func (p *RetryPolicy) Fetch(ctx context.Context, ad sources.Adapter, q *models.Query, pageToken string) (*sources.Page, error) {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.PerAttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.PerAttemptTimeout)
		}

		page, err := ad.Fetch(attemptCtx, q, pageToken)
		cancel()
		if err == nil {
			return page, nil
		}
		// The whole query may have expired while the attempt ran.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		switch sources.Kind(err) {
		case sources.KindBlocked, sources.KindMalformed:
			return nil, err
		}

		if attempt == p.MaxAttempts {
			break
		}
		wait := p.backoff(attempt, sources.RetryAfter(err))
		if !sleepWithin(ctx, wait) {
			if cerr := ctx.Err(); cerr != nil {
				return nil, cerr
			}
			// The deadline would land mid-backoff; give up now instead
			// of sleeping past it.
			return nil, context.DeadlineExceeded
		}
	}
	return nil, fmt.Errorf("exhausted %d attempts: %w", p.MaxAttempts, lastErr)
}

// backoff is base*2^(attempt-1) plus jitter in [0, base); a rate-limited
// source's declared minimum wins when longer.
func (p *RetryPolicy) backoff(attempt int, retryAfter time.Duration) time.Duration {
	d := p.BaseDelay << uint(attempt-1)
	if p.BaseDelay > 0 {
		p.mu.Lock()
		d += time.Duration(p.rng.Int63n(int64(p.BaseDelay)))
		p.mu.Unlock()
	}
	if retryAfter > d {
		d = retryAfter
	}
	return d
}

// sleepWithin waits for d unless ctx expires first; it refuses to start a
// wait that would outlive the deadline.
func sleepWithin(ctx context.Context, d time.Duration) bool {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < d {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
