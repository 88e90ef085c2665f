package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/storymint/mint-pipeline/internal/domain"
)

// OutboxReader exposes the outbox audit trail to operators.
type OutboxReader interface {
	GetOutboxEvent(ctx context.Context, id string) (*domain.OutboxEvent, error)
	ListOutboxEvents(ctx context.Context, status string, limit int) ([]domain.OutboxEvent, error)
}

type OutboxHandler struct {
	store OutboxReader
}

func NewOutboxHandler(s OutboxReader) *OutboxHandler {
	return &OutboxHandler{store: s}
}

type outboxListResponse struct {
	Success bool                 `json:"success"`
	Events  []domain.OutboxEvent `json:"events"`
}

func (h *OutboxHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limitStr := r.URL.Query().Get("limit")

	limit := 50
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.store.ListOutboxEvents(r.Context(), status, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list outbox events")
		return
	}

	respondJSON(w, http.StatusOK, outboxListResponse{Success: true, Events: events})
}

type outboxEventResponse struct {
	Success bool                `json:"success"`
	Event   *domain.OutboxEvent `json:"event"`
}

func (h *OutboxHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	event, err := h.store.GetOutboxEvent(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get outbox event")
		return
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "outbox event not found")
		return
	}

	respondJSON(w, http.StatusOK, outboxEventResponse{Success: true, Event: event})
}
