package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/sources"
)

func TestRetryTransientThenSuccess(t *testing.T) {
	ad := &scriptAdapter{name: "flaky", fn: func(call int, _ string) (*sources.Page, error) {
		if call <= 2 {
			return nil, sources.Transient(errors.New("connection reset"))
		}
		return &sources.Page{Records: []sources.RawListing{rawListing("flaky", "1", "USD 100.000")}}, nil
	}}

	p := NewRetryPolicy(3, time.Millisecond, time.Second)
	page, err := p.Fetch(context.Background(), ad, testQuery(t), "")
	require.NoError(t, err)
	assert.Len(t, page.Records, 1)
	assert.Equal(t, 3, ad.callCount())
}

func TestRetryBlockedNotRetried(t *testing.T) {
	ad := &scriptAdapter{name: "walled", fn: func(int, string) (*sources.Page, error) {
		return nil, sources.Blocked(errors.New("captcha"))
	}}

	p := NewRetryPolicy(3, time.Millisecond, time.Second)
	_, err := p.Fetch(context.Background(), ad, testQuery(t), "")
	require.Error(t, err)
	assert.Equal(t, sources.KindBlocked, sources.Kind(err))
	assert.Equal(t, 1, ad.callCount(), "blocked must not be retried")
}

func TestRetryMalformedNotRetried(t *testing.T) {
	ad := &scriptAdapter{name: "weird", fn: func(int, string) (*sources.Page, error) {
		return nil, sources.Malformed(errors.New("unexpected shape"))
	}}

	p := NewRetryPolicy(3, time.Millisecond, time.Second)
	_, err := p.Fetch(context.Background(), ad, testQuery(t), "")
	require.Error(t, err)
	assert.Equal(t, sources.KindMalformed, sources.Kind(err))
	assert.Equal(t, 1, ad.callCount())
}

func TestRetryExhaustion(t *testing.T) {
	ad := &scriptAdapter{name: "down", fn: func(int, string) (*sources.Page, error) {
		return nil, sources.Transient(errors.New("503"))
	}}

	p := NewRetryPolicy(3, time.Millisecond, time.Second)
	_, err := p.Fetch(context.Background(), ad, testQuery(t), "")
	require.Error(t, err)
	assert.Equal(t, 3, ad.callCount())
}

func TestRetryRespectsRetryAfter(t *testing.T) {
	ad := &scriptAdapter{name: "throttled", fn: func(call int, _ string) (*sources.Page, error) {
		if call == 1 {
			return nil, sources.RateLimited(60*time.Millisecond, errors.New("429"))
		}
		return &sources.Page{}, nil
	}}

	p := NewRetryPolicy(3, time.Millisecond, time.Second)
	start := time.Now()
	_, err := p.Fetch(context.Background(), ad, testQuery(t), "")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond,
		"source-declared minimum delay must be honored")
}

func TestRetryDeadlineCutsBackoff(t *testing.T) {
	ad := &scriptAdapter{name: "slowfail", fn: func(int, string) (*sources.Page, error) {
		return nil, sources.Transient(errors.New("flap"))
	}}

	// Backoff far longer than the deadline: the controller must bail out
	// instead of sleeping past it.
	p := NewRetryPolicy(5, 10*time.Second, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Fetch(ctx, ad, testQuery(t), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second, "must return near the deadline, not after the backoff")
	assert.Equal(t, 1, ad.callCount())
}
