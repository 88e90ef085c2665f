package domain

import (
	"encoding/json"
	"time"
)

// Outbox event statuses.
const (
	OutboxPending    = "pending"
	OutboxProcessing = "processing"
	OutboxCompleted  = "completed"
	OutboxFailed     = "failed"
)

// Event types routed by the dispatcher.
const (
	EventMintRequested = "MintRequested"
)

// OutboxEvent is a durable domain event awaiting processing. Events are
// never deleted; they transition pending → processing → completed, or
// back to pending on a retryable failure until attempts reach the
// retry limit.
type OutboxEvent struct {
	ID          string          `json:"id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   *string         `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// MintRequestedPayload is the payload carried by a MintRequested event.
type MintRequestedPayload struct {
	StoryID      string `json:"story_id"`
	AuthorWallet string `json:"author_wallet"`
	MetadataURI  string `json:"metadata_uri"`
}
