package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/models"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/obs"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/sources"
)

func testMetrics() *obs.Metrics {
	return obs.NewMetrics(prometheus.NewRegistry())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testQuery(t *testing.T) *models.Query {
	t.Helper()
	q, err := models.NewQuery("mar-del-plata", "apartment", "", "250000", "USD", "", "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Validate(); err != nil {
		t.Fatal(err)
	}
	return q
}

// scriptAdapter replays a scripted response per call, counting attempts.
type scriptAdapter struct {
	name string
	fn   func(call int, pageToken string) (*sources.Page, error)

	mu    sync.Mutex
	calls int
}

func (s *scriptAdapter) Name() string { return s.name }

func (s *scriptAdapter) Fetch(ctx context.Context, q *models.Query, pageToken string) (*sources.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	return s.fn(call, pageToken)
}

func (s *scriptAdapter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func rawListing(source, id, price string) sources.RawListing {
	return sources.RawListing{
		SourceID:        source,
		SourceListingID: id,
		Title:           "Departamento 3 amb frente al mar",
		RawPrice:        price,
		RawSize:         "78 m²",
		RawBedrooms:     "2",
		LocationText:    "Mar del Plata",
		URL:             "https://" + source + ".example/" + id,
		FetchedAt:       time.Now(),
	}
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseBackoff = 5 * time.Millisecond
	cfg.PerAttemptTimeout = 500 * time.Millisecond
	cfg.QueryDeadline = 2 * time.Second
	cfg.FXRates = map[string]float64{"USD": 1, "ARS": 0.001, "EUR": 1.08}
	return cfg
}

func ptrF(v float64) *float64 { return &v }
func ptrI(v int) *int         { return &v }
