package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/models"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/obs"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/sources"
)

// Scheduler bounds how many fetches run at once, globally and per source.
// Both budgets are process-wide: concurrent queries share them, which is
// the point — the hosts we talk to do not care which query a request
// belongs to.
type Scheduler struct {
	global    *semaphore.Weighted
	perWeight int64

	mu        sync.Mutex
	perSource map[string]*semaphore.Weighted

	policy  *RetryPolicy
	pageCap int
	metrics *obs.Metrics
	log     *slog.Logger
}

func NewScheduler(cfg Config, policy *RetryPolicy, m *obs.Metrics, log *slog.Logger) *Scheduler {
	return &Scheduler{
		global:    semaphore.NewWeighted(cfg.GlobalConcurrency),
		perWeight: cfg.PerSourceConcurrency,
		perSource: make(map[string]*semaphore.Weighted),
		policy:    policy,
		pageCap:   cfg.PageCap,
		metrics:   m,
		log:       log,
	}
}

func (s *Scheduler) sourceSem(name string) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.perSource[name]
	if !ok {
		sem = semaphore.NewWeighted(s.perWeight)
		s.perSource[name] = sem
	}
	return sem
}

// SourceResult is everything one source contributed to one query.
type SourceResult struct {
	Records []sources.RawListing
	Outcome SourceOutcome
}

// FetchSource walks a source's pages in order until the page cap, a missing
// next token, or the deadline. Pages are sequential within the source;
// the semaphores only arbitrate across sources and queries.
func (s *Scheduler) FetchSource(ctx context.Context, ad sources.Adapter, q *models.Query) SourceResult {
	res := SourceResult{Outcome: SourceOutcome{SourceID: ad.Name(), Status: StatusOK}}
	sem := s.sourceSem(ad.Name())

	pageToken := ""
	for pageNum := 0; pageNum < s.pageCap; pageNum++ {
		page, err := s.fetchOnePage(ctx, sem, ad, q, pageToken)
		if err != nil {
			s.metrics.IncSourceFailure(ad.Name())
			res.Outcome = s.failureOutcome(res, ad.Name(), err)
			return res
		}
		res.Records = append(res.Records, page.Records...)
		res.Outcome.ListingsReturned = len(res.Records)
		if page.NextPageToken == "" {
			return res
		}
		pageToken = page.NextPageToken
	}
	return res
}

func (s *Scheduler) fetchOnePage(ctx context.Context, sem *semaphore.Weighted, ad sources.Adapter, q *models.Query, pageToken string) (*sources.Page, error) {
	// Global slot first, then the source's own; both queue FIFO.
	if err := s.global.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.global.Release(1)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer sem.Release(1)

	start := time.Now()
	page, err := s.policy.Fetch(ctx, ad, q, pageToken)
	s.metrics.ObserveSourceLatency(ad.Name(), time.Since(start).Seconds())
	return page, err
}

// failureOutcome maps a terminal fetch error onto the outcome taxonomy.
// Records from pages that did complete are kept; a late failure degrades
// the source to partial rather than erasing its contribution.
func (s *Scheduler) failureOutcome(res SourceResult, name string, err error) SourceOutcome {
	out := res.Outcome
	out.Error = sources.Kind(err).String()

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		out.Status = StatusTimedOut
		out.Error = "timed_out"
	case len(res.Records) > 0:
		out.Status = StatusPartial
	case sources.Kind(err) == sources.KindMalformed:
		// Parsed but unusable; zero records, not a hard failure.
		out.Status = StatusPartial
	default:
		out.Status = StatusFailed
	}

	s.log.Warn("source degraded",
		"source", name,
		"status", string(out.Status),
		"pages_kept", out.ListingsReturned,
		"err", err)
	return out
}
