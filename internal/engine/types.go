package engine

import (
	"time"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/models"
)

// Listing is the canonical cross-source schema every raw record is mapped
// into. Optional fields are pointers; absent is not the same as zero.
type Listing struct {
	SourceID         string              `json:"source_id"`
	SourceListingID  string              `json:"source_listing_id"`
	Title            string              `json:"title"`
	PriceAmount      float64             `json:"price_amount"`
	PriceCurrency    string              `json:"price_currency"`
	LocationText     string              `json:"location"`
	Neighborhood     string              `json:"neighborhood,omitempty"`
	SizeSquareMeters *float64            `json:"size_m2,omitempty"`
	Bedrooms         *int                `json:"bedrooms,omitempty"`
	Bathrooms        *int                `json:"bathrooms,omitempty"`
	PropertyType     models.PropertyType `json:"property_type,omitempty"`
	URL              string              `json:"url"`
	ImageURL         string              `json:"image_url,omitempty"`
	Latitude         *float64            `json:"lat,omitempty"`
	Longitude        *float64            `json:"lon,omitempty"`
	FetchedAt        time.Time           `json:"fetched_at"`
}

// completeness counts how many optional fields a listing actually carries.
// Used for representative selection and ranking ties.
func (l Listing) completeness() int {
	n := 0
	if l.Title != "" {
		n++
	}
	if l.Neighborhood != "" {
		n++
	}
	if l.SizeSquareMeters != nil {
		n++
	}
	if l.Bedrooms != nil {
		n++
	}
	if l.Bathrooms != nil {
		n++
	}
	if l.PropertyType != "" && l.PropertyType != models.PropertyAny {
		n++
	}
	if l.ImageURL != "" {
		n++
	}
	if l.Latitude != nil && l.Longitude != nil {
		n++
	}
	return n
}

// Cluster groups listings believed to describe one physical property.
type Cluster struct {
	Members        []Listing `json:"members"`
	Representative Listing   `json:"representative"`
	Confidence     float64   `json:"confidence"`
}

// SourceStatus is the terminal state of one source within one query.
type SourceStatus string

const (
	StatusOK       SourceStatus = "ok"
	StatusPartial  SourceStatus = "partial"
	StatusFailed   SourceStatus = "failed"
	StatusTimedOut SourceStatus = "timed_out"
)

// SourceOutcome reports how one source fared, exactly one per targeted
// source per query.
type SourceOutcome struct {
	SourceID         string       `json:"source_id"`
	Status           SourceStatus `json:"status"`
	ListingsReturned int          `json:"listings_returned"`
	Dropped          int          `json:"dropped,omitempty"` // records lost to normalization
	Error            string       `json:"error,omitempty"`   // taxonomy code, not prose
}

// Result is the terminal output of one aggregation. Immutable once
// returned.
type Result struct {
	Stats struct {
		SourcesTotal     int    `json:"sources_total"`
		SourcesSucceeded int    `json:"sources_succeeded"`
		SourcesFailed    int    `json:"sources_failed"`
		Cache            string `json:"cache"`
		DurationMs       int64  `json:"duration_ms"`
	} `json:"stats"`
	Clusters []Cluster                `json:"clusters"`
	Sources  map[string]SourceOutcome `json:"sources"`
	Query    *models.Query            `json:"-"`
}

// Usable reports whether at least one source produced data. When false the
// caller is looking at total failure rather than an empty market.
func (r Result) Usable() bool {
	for _, o := range r.Sources {
		if o.ListingsReturned > 0 || o.Status == StatusOK {
			return true
		}
	}
	return false
}

// Config is the engine's full tuning surface. Everything the similarity
// and scheduling behavior depends on lives here rather than in constants.
type Config struct {
	GlobalConcurrency    int64
	PerSourceConcurrency int64
	MaxAttempts          int
	BaseBackoff          time.Duration
	PerAttemptTimeout    time.Duration
	QueryDeadline        time.Duration
	PageCap              int

	// Matching knobs.
	SimilarityThreshold float64
	PriceTolerance      float64 // relative, e.g. 0.05
	SizeTolerance       float64 // relative, e.g. 0.10
	// FXRates converts each currency into the base currency used for
	// cross-source price comparison and ranking; e.g. {"USD":1, "ARS":0.001}.
	FXRates      map[string]float64
	BaseCurrency string
}

// DefaultConfig returns conservative defaults; deployments override via the
// config package.
func DefaultConfig() Config {
	return Config{
		GlobalConcurrency:    6,
		PerSourceConcurrency: 2,
		MaxAttempts:          3,
		BaseBackoff:          200 * time.Millisecond,
		PerAttemptTimeout:    5 * time.Second,
		QueryDeadline:        15 * time.Second,
		PageCap:              5,
		SimilarityThreshold:  0.6,
		PriceTolerance:       0.05,
		SizeTolerance:        0.10,
		FXRates:              map[string]float64{"USD": 1},
		BaseCurrency:         "USD",
	}
}
