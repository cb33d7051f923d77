package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/models"
)

// BuildURL translates the normalized query into one platform's URL grammar.
type BuildURL func(q *models.Query, pageToken string) string

// apiPage is the wire shape shared by the JSON search endpoints we consume.
type apiPage struct {
	Listings []apiListing `json:"listings"`
	Next     string       `json:"next"`
}

type apiListing struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Price        string   `json:"price"`
	Size         string   `json:"size"`
	Bedrooms     string   `json:"bedrooms"`
	Bathrooms    string   `json:"bathrooms"`
	Location     string   `json:"location"`
	Neighborhood string   `json:"neighborhood"`
	PropertyType string   `json:"property_type"`
	URL          string   `json:"url"`
	ImageURL     string   `json:"image_url"`
	Latitude     *float64 `json:"lat"`
	Longitude    *float64 `json:"lon"`
}

// APIAdapter fetches listings from a platform's JSON search endpoint. The
// URL builder carries all per-platform knowledge; response handling and
// error classification are shared.
type APIAdapter struct {
	name     string
	client   *http.Client
	buildURL BuildURL
}

func NewAPIAdapter(name string, client *http.Client, buildURL BuildURL) *APIAdapter {
	if client == nil {
		client = &http.Client{}
	}
	return &APIAdapter{name: name, client: client, buildURL: buildURL}
}

func (a *APIAdapter) Name() string { return a.name }

func (a *APIAdapter) Fetch(ctx context.Context, q *models.Query, pageToken string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.buildURL(q, pageToken), nil)
	if err != nil {
		return nil, Malformed(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, Transient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, RateLimited(retryAfterHeader(resp), fmt.Errorf("%s: status 429", a.name))
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnavailableForLegalReasons:
		return nil, Blocked(fmt.Errorf("%s: status %d", a.name, resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, Transient(fmt.Errorf("%s: status %d", a.name, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, Malformed(fmt.Errorf("%s: unexpected status %d", a.name, resp.StatusCode))
	}

	var body apiPage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, Malformed(fmt.Errorf("%s: decode: %w", a.name, err))
	}

	now := time.Now()
	page := &Page{NextPageToken: body.Next}
	for _, l := range body.Listings {
		page.Records = append(page.Records, RawListing{
			SourceID:        a.name,
			SourceListingID: l.ID,
			Title:           l.Title,
			RawPrice:        l.Price,
			RawSize:         l.Size,
			RawBedrooms:     l.Bedrooms,
			RawBathrooms:    l.Bathrooms,
			LocationText:    l.Location,
			Neighborhood:    l.Neighborhood,
			PropertyType:    l.PropertyType,
			URL:             l.URL,
			ImageURL:        l.ImageURL,
			Latitude:        l.Latitude,
			Longitude:       l.Longitude,
			FetchedAt:       now,
		})
	}
	return page, nil
}

func retryAfterHeader(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
