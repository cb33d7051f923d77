package engine

import (
	"math"
	"sort"
	"strings"
)

// Matcher clusters normalized listings that likely describe the same
// physical property. All thresholds and FX rates come from Config; nothing
// about "how similar is similar enough" is baked in.
type Matcher struct {
	threshold      float64
	priceTolerance float64
	sizeTolerance  float64
	rates          map[string]float64
}

func NewMatcher(cfg Config) *Matcher {
	return &Matcher{
		threshold:      cfg.SimilarityThreshold,
		priceTolerance: cfg.PriceTolerance,
		sizeTolerance:  cfg.SizeTolerance,
		rates:          cfg.FXRates,
	}
}

// Cluster partitions the input into clusters: disjoint, exhaustive, and
// independent of input order. The input is copied and sorted by identity
// before any comparison so that shuffled inputs produce the same partition.
func (m *Matcher) Cluster(listings []Listing) []Cluster {
	ls := append([]Listing(nil), listings...)
	sort.Slice(ls, func(i, j int) bool {
		if ls[i].SourceID != ls[j].SourceID {
			return ls[i].SourceID < ls[j].SourceID
		}
		return ls[i].SourceListingID < ls[j].SourceListingID
	})

	uf := newUnionFind(len(ls))
	edgeScores := make(map[int][]float64) // root index → scores of merge edges

	// Coarse location buckets bound the pairwise work.
	buckets := make(map[string][]int)
	for i, l := range ls {
		buckets[locationKey(l)] = append(buckets[locationKey(l)], i)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		idxs := buckets[k]
		for a := 0; a < len(idxs); a++ {
			for b := a + 1; b < len(idxs); b++ {
				i, j := idxs[a], idxs[b]
				if score := m.similarity(ls[i], ls[j]); score >= m.threshold {
					ri, rj := uf.find(i), uf.find(j)
					if ri == rj {
						continue
					}
					merged := append(edgeScores[ri], edgeScores[rj]...)
					merged = append(merged, score)
					uf.union(ri, rj)
					root := uf.find(ri)
					delete(edgeScores, ri)
					delete(edgeScores, rj)
					edgeScores[root] = merged
				}
			}
		}
	}

	groups := make(map[int][]Listing)
	for i := range ls {
		root := uf.find(i)
		groups[root] = append(groups[root], ls[i])
	}

	clusters := make([]Cluster, 0, len(groups))
	roots := make([]int, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	sort.Ints(roots)
	for _, root := range roots {
		members := groups[root]
		clusters = append(clusters, Cluster{
			Members:        members,
			Representative: representative(members),
			Confidence:     meanOrOne(edgeScores[root]),
		})
	}

	m.rank(clusters)
	return clusters
}

// similarity scores a pair in [0,1]. Components that cannot be compared
// (a side missing the field) are excluded and the remaining weights
// renormalized, so a sparse pair is judged on what it does carry.
func (m *Matcher) similarity(a, b Listing) float64 {
	var achieved, applicable float64

	// Price proximity, in the base currency. Weight 0.35.
	pa, okA := m.baseAmount(a)
	pb, okB := m.baseAmount(b)
	if okA && okB {
		applicable += 0.35
		achieved += 0.35 * proximity(pa, pb, m.priceTolerance)
	}

	// Size proximity. Weight 0.25.
	if a.SizeSquareMeters != nil && b.SizeSquareMeters != nil {
		applicable += 0.25
		achieved += 0.25 * proximity(*a.SizeSquareMeters, *b.SizeSquareMeters, m.sizeTolerance)
	}

	// Bedroom count, exact match only. Weight 0.15.
	if a.Bedrooms != nil && b.Bedrooms != nil {
		applicable += 0.15
		if *a.Bedrooms == *b.Bedrooms {
			achieved += 0.15
		}
	}

	// Title + location token overlap. Weight 0.25.
	applicable += 0.25
	achieved += 0.25 * tokenJaccard(a.Title+" "+a.LocationText, b.Title+" "+b.LocationText)

	if applicable == 0 {
		return 0
	}
	return achieved / applicable
}

func (m *Matcher) baseAmount(l Listing) (float64, bool) {
	rate, ok := m.rates[l.PriceCurrency]
	if !ok || l.PriceAmount <= 0 {
		return 0, false
	}
	return l.PriceAmount * rate, true
}

// proximity is 1 when the relative difference is within tol, then decays
// linearly to 0 at twice the tolerance.
func proximity(a, b, tol float64) float64 {
	if tol <= 0 {
		if a == b {
			return 1
		}
		return 0
	}
	rel := math.Abs(a-b) / math.Max(a, b)
	switch {
	case rel <= tol:
		return 1
	case rel >= 2*tol:
		return 0
	default:
		return (2*tol - rel) / tol
	}
}

func tokenJaccard(a, b string) float64 {
	as := tokenSet(a)
	bs := tokenSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	inter := 0
	for t := range as {
		if _, ok := bs[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(as)+len(bs)-inter)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(canonicalLocation(s)) {
		if len(t) > 1 {
			set[t] = struct{}{}
		}
	}
	return set
}

// locationKey is the coarse bucket: neighborhood when known, otherwise the
// canonical location text.
func locationKey(l Listing) string {
	if l.Neighborhood != "" {
		return l.Neighborhood
	}
	return l.LocationText
}

// representative picks the member with the most complete field set; ties
// fall to the most recently fetched, then to identity order so the choice
// is stable.
func representative(members []Listing) Listing {
	best := members[0]
	for _, c := range members[1:] {
		switch {
		case c.completeness() > best.completeness():
			best = c
		case c.completeness() == best.completeness():
			if c.FetchedAt.After(best.FetchedAt) {
				best = c
			}
		}
	}
	return best
}

// rank orders clusters by ascending representative price in the base
// currency; ties break by descending completeness.
func (m *Matcher) rank(clusters []Cluster) {
	sort.SliceStable(clusters, func(i, j int) bool {
		pi, okI := m.baseAmount(clusters[i].Representative)
		pj, okJ := m.baseAmount(clusters[j].Representative)
		if okI != okJ {
			return okI // priced clusters before unpriceable ones
		}
		if okI && pi != pj {
			return pi < pj
		}
		return clusters[i].Representative.completeness() > clusters[j].Representative.completeness()
	})
}

func meanOrOne(scores []float64) float64 {
	if len(scores) == 0 {
		return 1
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// unionFind with path halving and union by size.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}
