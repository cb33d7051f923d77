package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/models"
)

// ListingStore is the optional persistence collaborator. Nil disables it;
// write failures degrade to nothing worse than a log line.
type ListingStore interface {
	SaveListings(ctx context.Context, listings []Listing) error
}

// Service wraps the aggregator with the result cache and the optional
// store. This is what the HTTP layer talks to.
type Service struct {
	agg            AggregatorService
	cache          CacheService
	store          ListingStore
	computeTimeout time.Duration
	log            *slog.Logger
}

func NewService(agg AggregatorService, cache CacheService, store ListingStore, computeTimeout time.Duration, log *slog.Logger) *Service {
	return &Service{agg: agg, cache: cache, store: store, computeTimeout: computeTimeout, log: log}
}

func (s *Service) Search(ctx context.Context, q *models.Query) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, s.computeTimeout)
	defer cancel()

	res, err := s.cache.GetOrCompute(cctx, q.CacheKey(), func(ctx context.Context) (Result, error) {
		r, err := s.agg.Search(ctx, q)
		if err == nil {
			s.persist(r)
		}
		return r, err
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// persist writes the fresh listings out of band. The store is a cache
// warmer, not a dependency; a failed write costs nothing but freshness.
func (s *Service) persist(r Result) {
	if s.store == nil {
		return
	}
	var listings []Listing
	for _, c := range r.Clusters {
		listings = append(listings, c.Members...)
	}
	if len(listings) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.SaveListings(ctx, listings); err != nil {
			s.log.Warn("listing store write failed", "err", err)
		}
	}()
}
