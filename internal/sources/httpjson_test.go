package sources_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/models"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/sources"
)

func testQuery(t *testing.T) *models.Query {
	t.Helper()
	q, err := models.NewQuery("mar del plata", "apartment", "", "", "USD", "", "", "", "")
	require.NoError(t, err)
	require.NoError(t, q.Validate())
	return q
}

func adapterFor(srv *httptest.Server) *sources.APIAdapter {
	return sources.NewAPIAdapter("test", srv.Client(), func(q *models.Query, pageToken string) string {
		return srv.URL + "/search?location=" + url.QueryEscape(q.Location) + "&page=" + pageToken
	})
}

func TestAPIAdapterDecodesListings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"listings": [{
				"id": "42",
				"title": "Depto 2 amb La Perla",
				"price": "USD 185.000",
				"size": "78 m²",
				"bedrooms": "2",
				"location": "Mar del Plata",
				"url": "https://example.com/42"
			}],
			"next": "p2"
		}`))
	}))
	defer srv.Close()

	page, err := adapterFor(srv).Fetch(context.Background(), testQuery(t), "")
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "42", page.Records[0].SourceListingID)
	assert.Equal(t, "test", page.Records[0].SourceID)
	assert.Equal(t, "USD 185.000", page.Records[0].RawPrice)
	assert.Equal(t, "p2", page.NextPageToken)
	assert.WithinDuration(t, time.Now(), page.Records[0].FetchedAt, time.Minute)
}

func TestAPIAdapterClassifiesFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		headers    map[string]string
		body       string
		wantKind   sources.ErrorKind
		retryAfter time.Duration
	}{
		{"throttled", http.StatusTooManyRequests, map[string]string{"Retry-After": "7"}, "", sources.KindRateLimited, 7 * time.Second},
		{"anti-bot wall", http.StatusForbidden, nil, "", sources.KindBlocked, 0},
		{"server error", http.StatusInternalServerError, nil, "", sources.KindTransient, 0},
		{"weird status", http.StatusTeapot, nil, "", sources.KindMalformed, 0},
		{"broken body", http.StatusOK, nil, "<html>not json</html>", sources.KindMalformed, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := adapterFor(srv).Fetch(context.Background(), testQuery(t), "")
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, sources.Kind(err))
			assert.Equal(t, tt.retryAfter, sources.RetryAfter(err))
		})
	}
}

func TestAPIAdapterNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	ad := sources.NewAPIAdapter("dead", nil, func(q *models.Query, _ string) string { return srv.URL })
	_, err := ad.Fetch(context.Background(), testQuery(t), "")
	require.Error(t, err)
	assert.Equal(t, sources.KindTransient, sources.Kind(err))
}
