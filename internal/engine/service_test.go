package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/engine"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/models"
)

type mockAggregator struct {
	mu         sync.Mutex
	counter    int
	searchFunc func(ctx context.Context, q *models.Query) (engine.Result, error)
}

func (m *mockAggregator) Search(ctx context.Context, q *models.Query) (engine.Result, error) {
	m.mu.Lock()
	m.counter++
	m.mu.Unlock()
	if m.searchFunc != nil {
		return m.searchFunc(ctx, q)
	}
	return engine.Result{}, nil
}

type passthroughCache struct{}

func (passthroughCache) GetOrCompute(ctx context.Context, key string, fn func(ctx context.Context) (engine.Result, error)) (engine.Result, error) {
	return fn(ctx)
}

type captureStore struct {
	saved chan []engine.Listing
}

func (c *captureStore) SaveListings(ctx context.Context, listings []engine.Listing) error {
	c.saved <- listings
	return nil
}

func testQuery(t *testing.T) *models.Query {
	t.Helper()
	q, err := models.NewQuery("mar-del-plata", "apartment", "", "", "USD", "", "", "", "")
	require.NoError(t, err)
	require.NoError(t, q.Validate())
	return q
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServicePersistsFreshResults(t *testing.T) {
	store := &captureStore{saved: make(chan []engine.Listing, 1)}
	listing := engine.Listing{SourceID: "zonaprop", SourceListingID: "1", PriceAmount: 100000, PriceCurrency: "USD", URL: "https://x"}
	agg := &mockAggregator{searchFunc: func(ctx context.Context, q *models.Query) (engine.Result, error) {
		return engine.Result{Clusters: []engine.Cluster{{Members: []engine.Listing{listing}, Representative: listing, Confidence: 1}}}, nil
	}}

	svc := engine.NewService(agg, passthroughCache{}, store, time.Second, discardLogger())
	_, err := svc.Search(context.Background(), testQuery(t))
	require.NoError(t, err)

	select {
	case saved := <-store.saved:
		require.Len(t, saved, 1)
		assert.Equal(t, "zonaprop", saved[0].SourceID)
	case <-time.After(time.Second):
		t.Fatal("store write never happened")
	}
}

func TestServiceAggregatorError(t *testing.T) {
	agg := &mockAggregator{searchFunc: func(ctx context.Context, q *models.Query) (engine.Result, error) {
		return engine.Result{}, errors.New("aggregator failed")
	}}
	svc := engine.NewService(agg, passthroughCache{}, nil, time.Second, discardLogger())

	_, err := svc.Search(context.Background(), testQuery(t))
	require.EqualError(t, err, "aggregator failed")
}

func TestServiceWorksWithoutStore(t *testing.T) {
	agg := &mockAggregator{}
	svc := engine.NewService(agg, passthroughCache{}, nil, time.Second, discardLogger())
	_, err := svc.Search(context.Background(), testQuery(t))
	require.NoError(t, err)
}
