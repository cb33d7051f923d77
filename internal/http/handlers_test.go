package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/engine"
	ht "github.com/JulianIrigoyen/imho-real-estate-agent/internal/http"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/models"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/obs"
)

type mockService struct {
	searchFunc func(ctx context.Context, q *models.Query) (engine.Result, error)
	gotQuery   *models.Query
}

func (m *mockService) Search(ctx context.Context, q *models.Query) (engine.Result, error) {
	m.gotQuery = q
	if m.searchFunc != nil {
		return m.searchFunc(ctx, q)
	}
	return engine.Result{}, nil
}

type mockRateLimiter struct{ allow bool }

func (m *mockRateLimiter) Allow(string) bool { return m.allow }

func newTestHandler(svc *mockService, allow bool) *ht.Handler {
	m := obs.NewMetrics(prometheus.NewRegistry())
	return ht.NewHandler(svc, nil, &mockRateLimiter{allow: allow}, m)
}

func doSearch(h *ht.Handler, target string) *http.Response {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "1.2.3.4:1234"
	w := httptest.NewRecorder()
	h.Search(w, req)
	return w.Result()
}

func TestSearchHandlerOK(t *testing.T) {
	listing := engine.Listing{SourceID: "zonaprop", SourceListingID: "1", PriceAmount: 185000, PriceCurrency: "USD", URL: "https://x"}
	svc := &mockService{searchFunc: func(ctx context.Context, q *models.Query) (engine.Result, error) {
		res := engine.Result{
			Clusters: []engine.Cluster{{Members: []engine.Listing{listing}, Representative: listing, Confidence: 1}},
			Sources:  map[string]engine.SourceOutcome{"zonaprop": {SourceID: "zonaprop", Status: engine.StatusOK, ListingsReturned: 1}},
		}
		res.Stats.SourcesTotal = 1
		res.Stats.SourcesSucceeded = 1
		return res, nil
	}}

	resp := doSearch(newTestHandler(svc, true), "/search?location=mar+del+plata&type=apartment&max_price=250000&currency=USD")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Usable   bool                            `json:"usable"`
		Sources  map[string]engine.SourceOutcome `json:"sources"`
		Clusters []engine.Cluster                `json:"clusters"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Usable)
	assert.Len(t, body.Clusters, 1)
	assert.Equal(t, engine.StatusOK, body.Sources["zonaprop"].Status)

	require.NotNil(t, svc.gotQuery)
	assert.Equal(t, "mar del plata", svc.gotQuery.Location)
	assert.Equal(t, models.PropertyApartment, svc.gotQuery.PropertyType)
}

func TestSearchHandlerValidation(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing location", "/search"},
		{"bad price", "/search?location=mdq&min_price=abc"},
		{"min over max", "/search?location=mdq&min_price=200&max_price=100"},
		{"bad type", "/search?location=mdq&type=villa"},
		{"bad bedrooms", "/search?location=mdq&bedrooms=two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doSearch(newTestHandler(&mockService{}, true), tt.query)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestSearchHandlerRateLimited(t *testing.T) {
	resp := doSearch(newTestHandler(&mockService{}, false), "/search?location=mar+del+plata")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestSearchHandlerServiceError(t *testing.T) {
	svc := &mockService{searchFunc: func(context.Context, *models.Query) (engine.Result, error) {
		return engine.Result{}, errors.New("engine exploded")
	}}
	resp := doSearch(newTestHandler(svc, true), "/search?location=mar+del+plata")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestListingsWithoutStore(t *testing.T) {
	h := newTestHandler(&mockService{}, true)
	req := httptest.NewRequest(http.MethodGet, "/listings", nil)
	w := httptest.NewRecorder()
	h.Listings(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Result().StatusCode)
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(&mockService{}, true)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.Healthz(w, req)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
}
