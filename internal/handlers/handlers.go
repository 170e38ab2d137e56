// Package handlers exposes the HTTP surface: opportunity snapshots, manual
// refresh, and SGP pricing in both aggregate and streamed form.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tmash55/unjuiced/internal/sgp"
	"github.com/tmash55/unjuiced/internal/stream"
	"github.com/tmash55/unjuiced/pkg/models"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	session    *stream.Session
	aggregator *sgp.Aggregator
}

// NewHandler creates a new handler
func NewHandler(session *stream.Session, aggregator *sgp.Aggregator) *Handler {
	return &Handler{session: session, aggregator: aggregator}
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "unjuiced",
	})
}

// Opportunities returns the session's current snapshot with its transient
// annotations.
func (h *Handler) Opportunities(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.session.Snapshot())
}

// RefreshOpportunities triggers a manual refresh and returns the resulting
// snapshot.
func (h *Handler) RefreshOpportunities(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Refresh(r.Context()); err != nil && !errors.Is(err, context.Canceled) {
		// The previous snapshot is still valid; report it with the error.
		respondJSON(w, http.StatusBadGateway, h.session.Snapshot())
		return
	}
	respondJSON(w, http.StatusOK, h.session.Snapshot())
}

// SgpOdds prices a parlay across books and returns the complete per-book map.
func (h *Handler) SgpOdds(w http.ResponseWriter, r *http.Request) {
	var req models.AggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if len(req.Legs) == 0 {
		respondError(w, http.StatusBadRequest, "at least one leg is required")
		return
	}

	resp, err := h.aggregator.Aggregate(r.Context(), req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// SgpStream prices a parlay and streams per-book quotes as they complete.
// When every hash group is already cached the whole response is served as one
// JSON body instead of a stream.
func (h *Handler) SgpStream(w http.ResponseWriter, r *http.Request) {
	var req models.AggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if len(req.Legs) == 0 {
		respondError(w, http.StatusBadRequest, "at least one leg is required")
		return
	}

	if cached, ok := h.aggregator.CachedResponse(r.Context(), req); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, err := h.aggregator.AggregateStream(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for event := range events {
		data, err := json.Marshal(event.Data)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, data)
		flusher.Flush()
	}
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
