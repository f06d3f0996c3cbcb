package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Priya8975/hookrelay/internal/domain"
)

// EventReader reads the recorded event and handler-run history.
type EventReader interface {
	GetEvent(ctx context.Context, id string) (*domain.StoredEvent, error)
	ListEvents(ctx context.Context, eventType string, limit int) ([]domain.StoredEvent, error)
	ListRuns(ctx context.Context, eventID string) ([]domain.HandlerRun, error)
}

type EventHandler struct {
	store EventReader
}

func NewEventHandler(s EventReader) *EventHandler {
	return &EventHandler{store: s}
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("event_type")
	limitStr := r.URL.Query().Get("limit")

	limit := 50
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.store.ListEvents(r.Context(), eventType, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	respondJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	event, err := h.store.GetEvent(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}

	respondJSON(w, http.StatusOK, event)
}

func (h *EventHandler) Runs(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRuns(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list handler runs")
		return
	}

	respondJSON(w, http.StatusOK, runs)
}
