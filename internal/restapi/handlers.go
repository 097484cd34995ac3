package restapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/signalforge/fsmrt/internal/query"
)

// Server holds the dependencies needed by the REST handlers.
type Server struct {
	store Store
}

// NewServer creates a new Server with the provided Query API.
func NewServer(store Store) *Server {
	return &Server{store: store}
}

// handleHealthz responds to GET /healthz. No authentication required.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleGet responds to GET /api/v1/entities/{class}/{id}.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	class := chi.URLParam(r, "class")
	id := chi.URLParam(r, "id")

	value, ok, err := s.store.Get(r.Context(), class, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read entity")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "entity not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(value)
}

// handleListOrFilter responds to GET /api/v1/entities/{class}.
//
// Supported query parameters:
//
//	name, value – exact property filter (both required together, optional)
//
// With no parameters it lists every entity of class; with name+value it
// filters by that property.
func (s *Server) handleListOrFilter(w http.ResponseWriter, r *http.Request) {
	class := chi.URLParam(r, "class")
	q := r.URL.Query()

	name, value := q.Get("name"), q.Get("value")
	if name == "" && value == "" {
		entities, err := s.store.ListAll(r.Context(), class)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list entities")
			return
		}
		writeEntities(w, entities)
		return
	}
	if name == "" || value == "" {
		writeError(w, http.StatusBadRequest, "'name' and 'value' must be supplied together")
		return
	}

	entities, err := s.store.GetByProperty(r.Context(), class, name, value)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query entities")
		return
	}
	writeEntities(w, entities)
}

// handleByPropertyRange responds to GET /api/v1/entities/{class}/by-property.
//
// Supported query parameters:
//
//	name, value               – exact property filter (required)
//	range_name                – the numeric property to range over (required)
//	range_start, range_end    – inclusive-by-default numeric bounds (required)
//	range_start_exclusive     – presence makes range_start exclusive
//	range_end_exclusive       – presence makes range_end exclusive
//	limit                     – page size (default 100, max 1000)
//	last_id                   – exclusive pagination cursor
func (s *Server) handleByPropertyRange(w http.ResponseWriter, r *http.Request) {
	class := chi.URLParam(r, "class")
	q := r.URL.Query()

	name, value := q.Get("name"), q.Get("value")
	rangeName := q.Get("range_name")
	if name == "" || value == "" || rangeName == "" {
		writeError(w, http.StatusBadRequest, "'name', 'value', and 'range_name' are required")
		return
	}

	rangeStart, err := strconv.ParseFloat(q.Get("range_start"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "'range_start' must be a number")
		return
	}
	rangeEnd, err := strconv.ParseFloat(q.Get("range_end"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "'range_end' must be a number")
		return
	}
	if rangeEnd < rangeStart {
		writeError(w, http.StatusBadRequest, "'range_end' must not be less than 'range_start'")
		return
	}

	limit := 100
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "'limit' must be a positive integer")
			return
		}
		if limit > 1000 {
			limit = 1000
		}
	}

	startInclusive := q.Get("range_start_exclusive") == ""
	endInclusive := q.Get("range_end_exclusive") == ""
	lastID := q.Get("last_id")

	entities, err := s.store.GetByPropertyWithRange(
		r.Context(), class, name, value, rangeName,
		rangeStart, startInclusive, rangeEnd, endInclusive,
		limit, lastID,
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query entities")
		return
	}
	writeEntities(w, entities)
}

func writeEntities(w http.ResponseWriter, entities []query.Entity) {
	if entities == nil {
		entities = []query.Entity{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(entities)
}
