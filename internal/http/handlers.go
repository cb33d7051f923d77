package http

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/engine"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/models"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/obs"
)

// SearchService is what the handler needs from the engine side.
type SearchService interface {
	Search(ctx context.Context, q *models.Query) (engine.Result, error)
}

// RecentLister is the optional read path over the listing store.
type RecentLister interface {
	Recent(ctx context.Context, location string, limit int) ([]engine.Listing, error)
}

type Handler struct {
	svc         SearchService
	recent      RecentLister // nil when no store is configured
	ratelimiter engine.RateLimiter
	metrics     *obs.Metrics
}

func NewHandler(svc SearchService, recent RecentLister, rl engine.RateLimiter, m *obs.Metrics) *Handler {
	return &Handler{svc: svc, recent: recent, ratelimiter: rl, metrics: m}
}

func (h *Handler) ipFromRequest(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func requestID(r *http.Request) string {
	// chi's middleware.RequestID sets X-Request-Id header
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		return rid
	}
	return uuid.New().String()
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.metrics.IncRequests()
	reqID := requestID(r)

	q := r.URL.Query()
	query, err := models.NewQuery(
		q.Get("location"),
		q.Get("type"),
		q.Get("min_price"),
		q.Get("max_price"),
		q.Get("currency"),
		q.Get("min_size"),
		q.Get("max_size"),
		q.Get("bedrooms"),
		q.Get("sources"),
	)
	if err != nil {
		BadRequest(w, err.Error(), map[string]string{"request_id": reqID})
		return
	}
	if err := query.Validate(); err != nil {
		BadRequest(w, err.Error(), map[string]string{"request_id": reqID})
		return
	}

	ip := h.ipFromRequest(r)
	if !h.ratelimiter.Allow(ip) {
		h.metrics.IncRateLimitDrops()
		TooManyRequests(w, "rate limit exceeded", map[string]string{"request_id": reqID})
		return
	}

	res, err := h.svc.Search(ctx, query)
	if err != nil {
		InternalError(w, err.Error(), map[string]string{"request_id": reqID})
		return
	}

	out := map[string]any{
		"search": map[string]any{
			"location": query.Location,
			"type":     query.PropertyType,
			"currency": query.Currency,
		},
		"stats":    res.Stats,
		"sources":  res.Sources,
		"clusters": res.Clusters,
		"usable":   res.Usable(),
	}
	WriteJSON(w, http.StatusOK, out)
}

// Listings serves recent normalized listings from the store. 503 when
// persistence is not configured; the live /search path never depends on it.
func (h *Handler) Listings(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r)
	if h.recent == nil {
		ServiceUnavailable(w, "listing store not configured", map[string]string{"request_id": reqID})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	listings, err := h.recent.Recent(r.Context(), r.URL.Query().Get("location"), limit)
	if err != nil {
		InternalError(w, err.Error(), map[string]string{"request_id": reqID})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"listings": listings, "count": len(listings)})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
