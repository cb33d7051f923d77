package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/models"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/sources"
)

// trackingAdapter records the peak number of concurrent in-flight fetches
// across every adapter sharing the same counters.
type trackingAdapter struct {
	name    string
	hold    time.Duration
	current *atomic.Int64
	peak    *atomic.Int64
}

func (tr *trackingAdapter) Name() string { return tr.name }

func (tr *trackingAdapter) Fetch(ctx context.Context, _ *models.Query, _ string) (*sources.Page, error) {
	cur := tr.current.Add(1)
	defer tr.current.Add(-1)
	for {
		p := tr.peak.Load()
		if cur <= p || tr.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	time.Sleep(tr.hold)
	return &sources.Page{}, nil
}

func TestSchedulerGlobalBudget(t *testing.T) {
	cfg := fastConfig()
	cfg.GlobalConcurrency = 2
	cfg.PerSourceConcurrency = 2
	sched := NewScheduler(cfg, NewRetryPolicy(1, time.Millisecond, time.Second), testMetrics(), testLogger())

	var peak, current atomic.Int64
	var wg sync.WaitGroup
	q := testQuery(t)
	for i := 0; i < 6; i++ {
		ad := &trackingAdapter{
			name:    string(rune('a' + i)),
			hold:    30 * time.Millisecond,
			current: &current,
			peak:    &peak,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.FetchSource(context.Background(), ad, q)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(2), "global concurrency budget exceeded")
}

func TestSchedulerSequentialPagination(t *testing.T) {
	var mu sync.Mutex
	var tokens []string
	ad := &scriptAdapter{name: "paged", fn: func(call int, token string) (*sources.Page, error) {
		mu.Lock()
		tokens = append(tokens, token)
		mu.Unlock()
		if call >= 3 {
			return &sources.Page{}, nil
		}
		return &sources.Page{NextPageToken: map[int]string{1: "p2", 2: "p3"}[call]}, nil
	}}

	cfg := fastConfig()
	sched := NewScheduler(cfg, NewRetryPolicy(1, time.Millisecond, time.Second), testMetrics(), testLogger())
	res := sched.FetchSource(context.Background(), ad, testQuery(t))

	require.Equal(t, StatusOK, res.Outcome.Status)
	assert.Equal(t, []string{"", "p2", "p3"}, tokens, "pages must be fetched in order")
}

func TestSchedulerKeepsEarlierPagesOnLateFailure(t *testing.T) {
	ad := &scriptAdapter{name: "fading", fn: func(call int, _ string) (*sources.Page, error) {
		if call == 1 {
			return &sources.Page{
				Records:       []sources.RawListing{rawListing("fading", "1", "USD 100.000")},
				NextPageToken: "p2",
			}, nil
		}
		return nil, sources.Blocked(assertErr("wall"))
	}}

	cfg := fastConfig()
	sched := NewScheduler(cfg, NewRetryPolicy(1, time.Millisecond, time.Second), testMetrics(), testLogger())
	res := sched.FetchSource(context.Background(), ad, testQuery(t))

	assert.Equal(t, StatusPartial, res.Outcome.Status)
	assert.Equal(t, 1, res.Outcome.ListingsReturned)
	assert.Len(t, res.Records, 1, "records from completed pages survive a late failure")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
