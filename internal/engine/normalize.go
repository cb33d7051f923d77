package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/models"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/sources"
)

var (
	// numberRegexp captures a numeric value with either separator style.
	numberRegexp = regexp.MustCompile(`\d[\d.,]*`)
	// sizeRegexp captures "<number> <unit>" for the units the platforms use.
	sizeRegexp = regexp.MustCompile(`(?i)([\d.,]+)\s*(m²|m2|sqm|sq\.?\s*m\b|sq\.?\s*ft|ft²|ft2)`)
	// countRegexp captures the first integer in a room-count field.
	countRegexp = regexp.MustCompile(`\d+`)
)

const sqftPerSquareMeter = 10.7639

// NormalizationError marks a record the normalizer could not salvage. It
// is a soft, per-record condition; callers count it against the source and
// move on.
type NormalizationError struct {
	SourceID string
	Reason   string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: %s", e.SourceID, e.Reason)
}

// Normalizer maps raw platform records into the canonical schema. It is a
// pure per-record function; the only state is configuration.
type Normalizer struct {
	// defaultCurrency resolves a bare "$" sign, which on the platforms we
	// aggregate means local pesos, not dollars.
	defaultCurrency string
}

func NewNormalizer(defaultCurrency string) *Normalizer {
	if defaultCurrency == "" {
		defaultCurrency = "ARS"
	}
	return &Normalizer{defaultCurrency: defaultCurrency}
}

// Normalize converts one raw record. Records missing identity fields or a
// parseable price are rejected with a NormalizationError.
func (n *Normalizer) Normalize(r sources.RawListing) (Listing, error) {
	if r.SourceID == "" || r.SourceListingID == "" || strings.TrimSpace(r.URL) == "" {
		return Listing{}, &NormalizationError{SourceID: r.SourceID, Reason: "missing identity fields"}
	}

	amount, currency, ok := n.parsePrice(r.RawPrice)
	if !ok {
		return Listing{}, &NormalizationError{SourceID: r.SourceID, Reason: "unparseable price " + strconv.Quote(r.RawPrice)}
	}

	l := Listing{
		SourceID:         r.SourceID,
		SourceListingID:  strings.TrimSpace(r.SourceListingID),
		Title:            collapseSpace(r.Title),
		PriceAmount:      amount,
		PriceCurrency:    currency,
		LocationText:     canonicalLocation(r.LocationText),
		Neighborhood:     canonicalLocation(r.Neighborhood),
		SizeSquareMeters: parseSize(r.RawSize),
		Bedrooms:         parseCount(r.RawBedrooms),
		Bathrooms:        parseCount(r.RawBathrooms),
		URL:              strings.TrimSpace(r.URL),
		ImageURL:         strings.TrimSpace(r.ImageURL),
		Latitude:         r.Latitude,
		Longitude:        r.Longitude,
		FetchedAt:        r.FetchedAt,
	}

	switch strings.ToLower(strings.TrimSpace(r.PropertyType)) {
	case "house", "casa":
		l.PropertyType = models.PropertyHouse
	case "apartment", "departamento", "depto", "flat":
		l.PropertyType = models.PropertyApartment
	case "ph":
		l.PropertyType = models.PropertyPH
	}
	return l, nil
}

// parsePrice extracts (amount, ISO currency) from free text. Handles the
// separator conventions the platforms mix: "USD 250.000", "U$S 98.000",
// "$ 180.000.000", "€120,000", "250,000 USD", "1200.50".
func (n *Normalizer) parsePrice(raw string) (float64, string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, "", false
	}

	currency := n.detectCurrency(s)
	match := numberRegexp.FindString(s)
	if match == "" {
		return 0, "", false
	}

	amount, err := strconv.ParseFloat(normalizeSeparators(match), 64)
	if err != nil || amount <= 0 {
		return 0, "", false
	}
	return amount, currency, true
}

func (n *Normalizer) detectCurrency(s string) string {
	u := strings.ToUpper(s)
	switch {
	case strings.Contains(u, "U$S"), strings.Contains(u, "US$"), strings.Contains(u, "USD"):
		return "USD"
	case strings.Contains(u, "EUR"), strings.Contains(u, "€"):
		return "EUR"
	case strings.Contains(u, "ARS"):
		return "ARS"
	case strings.Contains(u, "$"):
		return n.defaultCurrency
	default:
		return n.defaultCurrency
	}
}

// normalizeSeparators rewrites a localized number into strconv form. With
// both separators present, whichever comes last is the decimal point. A
// single separator followed by exactly three digits is a thousands mark —
// "250.000" is a quarter million, not 250.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
	case lastDot >= 0:
		return stripThousands(s, '.')
	case lastComma >= 0:
		return stripThousands(s, ',')
	default:
		return s
	}
}

func stripThousands(s string, sep byte) string {
	sepStr := string(rune(sep))
	idx := strings.LastIndexByte(s, sep)
	frac := s[idx+1:]
	if len(frac) == 3 || strings.Count(s, sepStr) > 1 {
		return strings.ReplaceAll(s, sepStr, "")
	}
	if sep == ',' {
		return strings.ReplaceAll(s, ",", ".")
	}
	return s
}

// parseSize converts a free-text surface area to square meters, or nil
// when the field is absent or unreadable.
func parseSize(raw string) *float64 {
	m := sizeRegexp.FindStringSubmatch(raw)
	if m == nil {
		// Bare number: the platforms that omit units report m².
		bare := numberRegexp.FindString(raw)
		if bare == "" {
			return nil
		}
		return parseSizeValue(bare, false)
	}
	unit := strings.ToLower(m[2])
	isFeet := strings.Contains(unit, "ft")
	return parseSizeValue(m[1], isFeet)
}

func parseSizeValue(num string, feet bool) *float64 {
	v, err := strconv.ParseFloat(normalizeSeparators(num), 64)
	if err != nil || v <= 0 {
		return nil
	}
	if feet {
		v /= sqftPerSquareMeter
	}
	return &v
}

// parseCount pulls the first integer out of a room-count field; anything
// unreadable is absent, never zero.
func parseCount(raw string) *int {
	m := countRegexp.FindString(raw)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// canonicalLocation lowercases, strips punctuation, and collapses
// whitespace so that "Mar del Plata," and "mar-del-plata" key the same.
func canonicalLocation(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == ',':
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
