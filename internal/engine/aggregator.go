package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/models"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/obs"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/sources"
)

// AggregatorService is the engine's sole entry point as callers see it.
type AggregatorService interface {
	Search(ctx context.Context, q *models.Query) (Result, error)
}

// Aggregator fans a query out to every targeted source, collects whatever
// each source managed under the deadline, then normalizes, deduplicates
// and ranks. One source failing never fails the query; the worst case is
// a result with empty clusters and a full outcome map.
type Aggregator struct {
	adapters  []sources.Adapter
	scheduler *Scheduler
	norm      *Normalizer
	matcher   *Matcher
	deadline  time.Duration
	metrics   *obs.Metrics
	log       *slog.Logger
}

func NewAggregator(adapters []sources.Adapter, sched *Scheduler, norm *Normalizer, matcher *Matcher, deadline time.Duration, m *obs.Metrics, log *slog.Logger) *Aggregator {
	return &Aggregator{
		adapters:  adapters,
		scheduler: sched,
		norm:      norm,
		matcher:   matcher,
		deadline:  deadline,
		metrics:   m,
		log:       log,
	}
}

func (a *Aggregator) Search(ctx context.Context, q *models.Query) (Result, error) {
	if q == nil {
		return Result{}, errors.New("nil query")
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, a.deadline)
	defer cancel()

	// Dispatching: one scheduler task per targeted source.
	targets := a.resolveSources(q)
	resCh := make(chan SourceResult, len(targets))
	var wg sync.WaitGroup
	for _, ad := range targets {
		wg.Add(1)
		go func(ad sources.Adapter) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					a.log.Error("adapter panic recovered", "source", ad.Name(), "panic", r)
					a.metrics.IncSourceFailure(ad.Name())
					resCh <- SourceResult{Outcome: SourceOutcome{
						SourceID: ad.Name(), Status: StatusFailed, Error: "panic",
					}}
				}
			}()
			resCh <- a.scheduler.FetchSource(ctx, ad, q)
		}(ad)
	}
	go func() {
		wg.Wait()
		close(resCh)
	}()

	// Collecting: outcomes arrive in completion order. Every task reaches
	// a terminal state on its own (the deadline is inside ctx), so
	// draining the channel is bounded.
	outcomes := make(map[string]SourceOutcome, len(targets))
	var raws []sources.RawListing
	for sr := range resCh {
		outcomes[sr.Outcome.SourceID] = sr.Outcome
		raws = append(raws, sr.Records...)
	}

	// Finalizing: normalize with per-source drop accounting, then cluster.
	listings := a.normalizeAll(raws, outcomes)
	clusters := a.matcher.Cluster(listings)

	res := Result{
		Clusters: clusters,
		Sources:  outcomes,
		Query:    q,
	}
	res.Stats.SourcesTotal = len(targets)
	for _, o := range outcomes {
		if o.Status == StatusOK || o.Status == StatusPartial {
			res.Stats.SourcesSucceeded++
		} else {
			res.Stats.SourcesFailed++
		}
	}
	res.Stats.Cache = "miss"
	res.Stats.DurationMs = time.Since(start).Milliseconds()

	a.metrics.ObserveClusterCount(len(clusters))
	if !res.Usable() {
		a.log.Warn("no usable sources", "location", q.Location, "sources", len(targets))
	}
	return res, nil
}

// resolveSources maps the query's source set onto registered adapters;
// an empty set means all of them. Unknown names are ignored here — the
// outcome map only ever contains sources we could actually target.
func (a *Aggregator) resolveSources(q *models.Query) []sources.Adapter {
	if len(q.Sources) == 0 {
		return a.adapters
	}
	want := make(map[string]struct{}, len(q.Sources))
	for _, s := range q.Sources {
		want[s] = struct{}{}
	}
	var out []sources.Adapter
	for _, ad := range a.adapters {
		if _, ok := want[ad.Name()]; ok {
			out = append(out, ad)
		}
	}
	return out
}

// normalizeAll runs the pure normalizer over every collected record and
// charges drops back to the source that produced them. A dropped record
// reduces the source's effective count without degrading its status.
func (a *Aggregator) normalizeAll(raws []sources.RawListing, outcomes map[string]SourceOutcome) []Listing {
	listings := make([]Listing, 0, len(raws))
	dropped := make(map[string]int)
	for _, r := range raws {
		l, err := a.norm.Normalize(r)
		if err != nil {
			dropped[r.SourceID]++
			a.metrics.IncNormalizationDrop(r.SourceID)
			a.log.Debug("record dropped", "source", r.SourceID, "err", err)
			continue
		}
		listings = append(listings, l)
	}
	for src, n := range dropped {
		o, ok := outcomes[src]
		if !ok {
			continue
		}
		o.Dropped = n
		o.ListingsReturned -= n
		if o.ListingsReturned < 0 {
			o.ListingsReturned = 0
		}
		outcomes[src] = o
	}
	return listings
}

// SourceNames lists the registered adapters in registration order.
func (a *Aggregator) SourceNames() []string {
	names := make([]string, 0, len(a.adapters))
	for _, ad := range a.adapters {
		names = append(names, ad.Name())
	}
	sort.Strings(names)
	return names
}
