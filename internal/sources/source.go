package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/models"
)

// RawListing is a record exactly as one platform handed it to us. Price,
// size and room counts stay free text until the normalizer gets them;
// platforms disagree on currencies, units and formatting and the adapter is
// not the place to settle that.
type RawListing struct {
	SourceID        string
	SourceListingID string
	Title           string
	RawPrice        string
	RawSize         string
	RawBedrooms     string
	RawBathrooms    string
	LocationText    string
	Neighborhood    string
	PropertyType    string
	URL             string
	ImageURL        string
	Latitude        *float64
	Longitude       *float64
	FetchedAt       time.Time
}

// Page is one batch of results from an adapter. An empty NextPageToken
// means the source has no more pages for this query.
type Page struct {
	Records       []RawListing
	NextPageToken string
}

// Adapter is the per-platform contract. Implementations own their URL
// grammar and extraction logic; the engine only sees this surface.
//
// Fetch must respect ctx and must be safe to repeat for the same
// query/page: the retry controller treats every attempt as independent.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, q *models.Query, pageToken string) (*Page, error)
}

// ErrorKind classifies adapter failures; the retry controller keys its
// policy off this.
type ErrorKind int

const (
	// KindTransient covers network errors, timeouts and 5xx responses.
	KindTransient ErrorKind = iota
	// KindRateLimited means the source signaled throttling.
	KindRateLimited
	// KindBlocked means an anti-bot or consent wall; retrying within the
	// same query is pointless.
	KindBlocked
	// KindMalformed means the response arrived but did not have the
	// expected shape.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindBlocked:
		return "blocked"
	case KindMalformed:
		return "malformed"
	default:
		return "transient"
	}
}

// FetchError is the typed failure every adapter returns.
type FetchError struct {
	ErrKind ErrorKind
	// RetryAfter is a source-declared minimum delay before the next
	// attempt. Only meaningful for KindRateLimited; zero when unknown.
	RetryAfter time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.ErrKind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func Transient(err error) *FetchError {
	return &FetchError{ErrKind: KindTransient, Err: err}
}

func RateLimited(retryAfter time.Duration, err error) *FetchError {
	return &FetchError{ErrKind: KindRateLimited, RetryAfter: retryAfter, Err: err}
}

func Blocked(err error) *FetchError {
	return &FetchError{ErrKind: KindBlocked, Err: err}
}

func Malformed(err error) *FetchError {
	return &FetchError{ErrKind: KindMalformed, Err: err}
}

// Kind extracts the classification from any error an adapter returned.
// Unclassified errors count as transient, the only safe default.
func Kind(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.ErrKind
	}
	return KindTransient
}

// RetryAfter reports the source-declared minimum delay, if any.
func RetryAfter(err error) time.Duration {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.RetryAfter
	}
	return 0
}
