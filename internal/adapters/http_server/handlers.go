package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"barefoot_sync/internal/domain"
)

// Queries is the read side (app.QueryService).
type Queries interface {
	GetProperty(ctx context.Context, id int64) (domain.PropertyView, error)
	SearchProperties(ctx context.Context, q domain.PropertyQuery) (domain.PropertyPage, error)
}

// SyncActions are the caller-facing sync operations (app.SyncService).
type SyncActions interface {
	TriggerSync(ctx context.Context) domain.SyncResult
	TestConnection(ctx context.Context) domain.ConnectionStatus
	CleanupOrphans(ctx context.Context) domain.CleanupResult
	PropertyOperations(ctx context.Context) ([]string, error)
}

type Handlers struct {
	Q          Queries
	Sync       SyncActions
	AdminToken string
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Group(func(r chi.Router) {
		r.Use(Timeout(s.readTimeout))
		r.Get("/v1/properties", h.searchProperties)
		r.Get("/v1/properties/{id}", h.getProperty)
	})

	if h.Sync == nil {
		return
	}
	s.mux.Route("/v1/admin", func(r chi.Router) {
		r.Use(AdminToken(h.AdminToken))
		r.Post("/sync", h.triggerSync)
		r.Post("/cleanup", h.cleanup)
		r.Get("/connection", h.testConnection)
		r.Get("/operations", h.operations)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

func (h *Handlers) getProperty(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}
	resp, err := h.Q.GetProperty(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "property not found")
		return
	case err != nil:
		log.Error().Err(err).Int64("id", id).Msg("get property failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	writeCached(w, r, resp)
}

func (h *Handlers) searchProperties(w http.ResponseWriter, r *http.Request) {
	q, detail := parseQuery(r)
	if detail != "" {
		writeProblem(w, http.StatusBadRequest, "Invalid query", detail)
		return
	}
	out, err := h.Q.SearchProperties(r.Context(), q)
	switch {
	case errors.Is(err, domain.ErrInvalidCursor):
		writeProblem(w, http.StatusBadRequest, "Invalid query", "cursor is invalid")
		return
	case err != nil:
		log.Error().Err(err).Msg("search properties failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	writeCached(w, r, out)
}

// parseQuery returns a non-empty detail when a parameter is malformed.
func parseQuery(r *http.Request) (domain.PropertyQuery, string) {
	v := r.URL.Query()
	q := domain.PropertyQuery{Limit: 20}

	opt := func(k string) *string {
		if s := strings.TrimSpace(v.Get(k)); s != "" {
			return &s
		}
		return nil
	}
	q.Q = opt("q")
	q.PropertyType = opt("type")
	q.Location = opt("location")
	q.Amenity = opt("amenity")
	q.Cursor = opt("cursor")

	if s := opt("limit"); s != nil {
		l, err := strconv.Atoi(*s)
		if err != nil || l <= 0 || l > 100 {
			return q, "limit must be an integer between 1 and 100"
		}
		q.Limit = l
	}
	for _, p := range []struct {
		key string
		dst **float64
	}{{"min_price", &q.MinPrice}, {"max_price", &q.MaxPrice}} {
		if s := opt(p.key); s != nil {
			f, err := strconv.ParseFloat(*s, 64)
			if err != nil || f < 0 {
				return q, p.key + " must be a non-negative number"
			}
			*p.dst = &f
		}
	}
	if s := opt("min_occupancy"); s != nil {
		n, err := strconv.Atoi(*s)
		if err != nil || n < 0 {
			return q, "min_occupancy must be a non-negative integer"
		}
		q.MinOccupancy = &n
	}
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
		return q, "min_price must not exceed max_price"
	}
	return q, ""
}

// ---- admin ----

func (h *Handlers) triggerSync(w http.ResponseWriter, r *http.Request) {
	// a dropped admin connection does not abort a run halfway
	res := h.Sync.TriggerSync(context.WithoutCancel(r.Context()))
	switch res.State {
	case domain.StateCompleted:
		writeJSON(w, http.StatusOK, res)
	case domain.StateRejected:
		writeJSON(w, http.StatusConflict, res)
	default:
		writeJSON(w, http.StatusBadGateway, res)
	}
}

func (h *Handlers) cleanup(w http.ResponseWriter, r *http.Request) {
	res := h.Sync.CleanupOrphans(context.WithoutCancel(r.Context()))
	switch {
	case res.Success:
		writeJSON(w, http.StatusOK, res)
	case res.Message == domain.ErrRunInProgress.Error():
		writeJSON(w, http.StatusConflict, res)
	default:
		writeJSON(w, http.StatusBadGateway, res)
	}
}

func (h *Handlers) testConnection(w http.ResponseWriter, r *http.Request) {
	st := h.Sync.TestConnection(r.Context())
	status := http.StatusOK
	if !st.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, st)
}

func (h *Handlers) operations(w http.ResponseWriter, r *http.Request) {
	ops, err := h.Sync.PropertyOperations(r.Context())
	if err != nil {
		writeProblem(w, http.StatusBadGateway, "Barefoot unavailable", err.Error())
		return
	}
	if ops == nil {
		ops = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": ops})
}
