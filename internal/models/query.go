package models

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/validator"
)

// PropertyType narrows a search to one kind of dwelling.
type PropertyType string

const (
	PropertyAny       PropertyType = "any"
	PropertyHouse     PropertyType = "house"
	PropertyApartment PropertyType = "apartment"
	PropertyPH        PropertyType = "ph"
)

// Range is a closed numeric interval. Zero Max means unbounded above.
type Range struct {
	Min float64
	Max float64
}

// Query is a platform-agnostic listing search. Built once, validated at
// construction, then treated as read-only by everything downstream.
type Query struct {
	Location     string
	PropertyType PropertyType
	PriceRange   *Range
	Currency     string // ISO code the price range is declared in
	SizeRange    *Range // square meters
	MinBedrooms  int    // 0 = unspecified
	Sources      []string
}

// NewQuery builds a Query from raw string parameters as they arrive on the
// wire. Numeric parse failures are rejected here; semantic checks live in
// Validate.
func NewQuery(location, propertyType, minPrice, maxPrice, currency, minSize, maxSize, bedrooms, sources string) (*Query, error) {
	if location == "" {
		return nil, fmt.Errorf("missing required param: location")
	}

	q := &Query{
		Location:     location,
		PropertyType: PropertyAny,
		Currency:     strings.ToUpper(strings.TrimSpace(currency)),
	}
	if propertyType != "" {
		q.PropertyType = PropertyType(strings.ToLower(strings.TrimSpace(propertyType)))
	}
	if q.Currency == "" {
		q.Currency = "USD"
	}

	var err error
	if q.PriceRange, err = parseRange(minPrice, maxPrice, "price"); err != nil {
		return nil, err
	}
	if q.SizeRange, err = parseRange(minSize, maxSize, "size"); err != nil {
		return nil, err
	}
	if bedrooms != "" {
		n, err := strconv.Atoi(bedrooms)
		if err != nil {
			return nil, fmt.Errorf("invalid bedrooms")
		}
		q.MinBedrooms = n
	}
	if sources != "" && sources != "all" {
		for _, s := range strings.Split(sources, ",") {
			if s = strings.TrimSpace(strings.ToLower(s)); s != "" {
				q.Sources = append(q.Sources, s)
			}
		}
	}
	return q, nil
}

func parseRange(minStr, maxStr, what string) (*Range, error) {
	if minStr == "" && maxStr == "" {
		return nil, nil
	}
	r := &Range{}
	var err error
	if minStr != "" {
		if r.Min, err = strconv.ParseFloat(minStr, 64); err != nil {
			return nil, fmt.Errorf("invalid min_%s", what)
		}
	}
	if maxStr != "" {
		if r.Max, err = strconv.ParseFloat(maxStr, 64); err != nil {
			return nil, fmt.Errorf("invalid max_%s", what)
		}
	}
	return r, nil
}

// Validate checks semantic constraints and canonicalizes free-text fields.
func (q *Query) Validate() error {
	var errs []string

	loc, err := validator.ValidateLocation(q.Location)
	if err != nil {
		errs = append(errs, err.Error())
	} else {
		q.Location = loc // normalized
	}

	switch q.PropertyType {
	case PropertyAny, PropertyHouse, PropertyApartment, PropertyPH:
	default:
		errs = append(errs, "invalid property type")
	}

	if err := validator.ValidateRange(rangeVals(q.PriceRange)); err != nil {
		errs = append(errs, "price: "+err.Error())
	}
	if err := validator.ValidateRange(rangeVals(q.SizeRange)); err != nil {
		errs = append(errs, "size: "+err.Error())
	}
	if q.MinBedrooms < 0 || q.MinBedrooms > 20 {
		errs = append(errs, "invalid or excessive bedrooms")
	}
	if len(q.Currency) != 3 {
		errs = append(errs, "currency must be a 3-letter ISO code")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, ", "))
	}
	return nil
}

func rangeVals(r *Range) (float64, float64, bool) {
	if r == nil {
		return 0, 0, false
	}
	return r.Min, r.Max, true
}

// CacheKey is a canonical representation of the query used for result
// caching and store lookups. Source order does not affect the key.
func (q *Query) CacheKey() string {
	srcs := append([]string(nil), q.Sources...)
	sort.Strings(srcs)

	var b strings.Builder
	b.WriteString(q.Location)
	b.WriteByte('|')
	b.WriteString(string(q.PropertyType))
	b.WriteByte('|')
	writeRange(&b, q.PriceRange)
	b.WriteString(q.Currency)
	b.WriteByte('|')
	writeRange(&b, q.SizeRange)
	fmt.Fprintf(&b, "%d|%s", q.MinBedrooms, strings.Join(srcs, ","))
	return b.String()
}

func writeRange(b *strings.Builder, r *Range) {
	if r == nil {
		b.WriteString("-|")
		return
	}
	fmt.Fprintf(b, "%g-%g|", r.Min, r.Max)
}
