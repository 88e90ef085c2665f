package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storymint/mint-pipeline/internal/domain"
)

// StoryStore is the producer side of the mint pipeline: it checks the
// story exists and appends the MintRequested event.
type StoryStore interface {
	GetStory(ctx context.Context, id string) (*domain.Story, error)
	Enqueue(ctx context.Context, eventType string, payload []byte) (*domain.OutboxEvent, error)
}

type StoryHandler struct {
	store StoryStore
}

func NewStoryHandler(s StoryStore) *StoryHandler {
	return &StoryHandler{store: s}
}

type mintRequest struct {
	AuthorWallet string `json:"author_wallet"`
	MetadataURI  string `json:"metadata_uri"`
}

type mintResponse struct {
	Success bool   `json:"success"`
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

// RequestMint enqueues a MintRequested event for the story. The mint
// itself happens asynchronously in the dispatcher; the returned event
// id lets callers watch progress through the outbox endpoints.
func (h *StoryHandler) RequestMint(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "id")

	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !domain.ValidWallet(req.AuthorWallet) {
		respondError(w, http.StatusBadRequest, "invalid author wallet")
		return
	}
	if req.MetadataURI == "" {
		respondError(w, http.StatusBadRequest, "metadata_uri is required")
		return
	}

	story, err := h.store.GetStory(r.Context(), storyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load story")
		return
	}
	if story == nil {
		respondError(w, http.StatusNotFound, "story not found")
		return
	}
	if story.Status == domain.StoryMinted {
		respondError(w, http.StatusBadRequest, "story is already minted")
		return
	}

	payload, err := json.Marshal(domain.MintRequestedPayload{
		StoryID:      storyID,
		AuthorWallet: req.AuthorWallet,
		MetadataURI:  req.MetadataURI,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode payload")
		return
	}

	event, err := h.store.Enqueue(r.Context(), domain.EventMintRequested, payload)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to enqueue mint request")
		return
	}

	respondJSON(w, http.StatusAccepted, mintResponse{
		Success: true,
		EventID: event.ID,
		Status:  event.Status,
	})
}

type storyResponse struct {
	Success bool          `json:"success"`
	Story   *domain.Story `json:"story"`
}

// GetStory returns the mint-relevant slice of a story.
func (h *StoryHandler) GetStory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	story, err := h.store.GetStory(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load story")
		return
	}
	if story == nil {
		respondError(w, http.StatusNotFound, "story not found")
		return
	}

	respondJSON(w, http.StatusOK, storyResponse{Success: true, Story: story})
}
