package sources

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/models"
)

// SimAdapter stands in for a real platform during development and load
// testing: variable latency, injectable failures, two pages of fixture
// listings per query.
type SimAdapter struct {
	name       string
	avgLatency float64
	failRate   float64
	rng        *rand.Rand
}

func NewSimAdapter(name string, avgLatency, failRate float64, seedOffset int64) *SimAdapter {
	seed := time.Now().UnixNano() + seedOffset
	return &SimAdapter{name: name, avgLatency: avgLatency, failRate: failRate, rng: rand.New(rand.NewSource(seed))}
}

func (s *SimAdapter) Name() string { return s.name }

func (s *SimAdapter) Fetch(ctx context.Context, q *models.Query, pageToken string) (*Page, error) {
	select {
	case <-time.After(SampleLatencyFromRng(s.rng, s.avgLatency)):
	case <-ctx.Done():
		return nil, Transient(ctx.Err())
	}
	if ShouldFailFromRng(s.rng, s.failRate) {
		return nil, Transient(errors.New("source error (simulated)"))
	}

	pageNum := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, Malformed(fmt.Errorf("bad page token %q", pageToken))
		}
		pageNum = n
	}

	page := &Page{Records: s.fixturePage(q, pageNum)}
	if pageNum == 0 {
		page.NextPageToken = "1"
	}
	return page, nil
}

// fixturePage fabricates listings in the loose shapes the real platforms
// use: ARS prices with dot thousands separators, USD prices, sizes in m².
func (s *SimAdapter) fixturePage(q *models.Query, pageNum int) []RawListing {
	now := time.Now()
	base := pageNum*3 + 1
	recs := make([]RawListing, 0, 3)
	for i := 0; i < 3; i++ {
		n := base + i
		var price string
		if n%2 == 0 {
			price = fmt.Sprintf("USD %d.000", 120+s.rng.Intn(80))
		} else {
			price = fmt.Sprintf("$ %d.000.000", 90+s.rng.Intn(60))
		}
		recs = append(recs, RawListing{
			SourceID:        s.name,
			SourceListingID: fmt.Sprintf("%s-%d", s.name, n),
			Title:           fmt.Sprintf("Departamento %d amb en %s", 2+n%3, q.Location),
			RawPrice:        price,
			RawSize:         fmt.Sprintf("%d m²", 45+s.rng.Intn(60)),
			RawBedrooms:     strconv.Itoa(1 + n%3),
			LocationText:    q.Location,
			PropertyType:    "apartment",
			URL:             fmt.Sprintf("https://%s.example/props/%d", s.name, n),
			FetchedAt:       now,
		})
	}
	return recs
}

func SampleLatencyFromRng(rng *rand.Rand, avg float64) time.Duration {
	ms := float64(50) + rng.ExpFloat64()*avg*200.0
	return time.Duration(ms) * time.Millisecond
}

func ShouldFailFromRng(rng *rand.Rand, rate float64) bool {
	return rng.Float64() < rate
}
