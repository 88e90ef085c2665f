package domain

import "time"

// Mint intent statuses. Forward-only: pending → submitted → confirmed.
// IntentFailed is terminal and only reachable from submitted, when the
// mint transaction reverted on-chain.
const (
	IntentPending   = "pending"
	IntentSubmitted = "submitted"
	IntentConfirmed = "confirmed"
	IntentFailed    = "failed"
)

// Story statuses relevant to the mint pipeline.
const (
	StoryMinted = "minted"
)

// MintIntent tracks a single mint saga. Its id is a pure function of
// the story id, so re-processing the same MintRequested event always
// resolves to the same row.
type MintIntent struct {
	IntentID     string     `json:"intent_id"`
	StoryID      string     `json:"story_id"`
	AuthorWallet string     `json:"author_wallet"`
	TxHash       *string    `json:"tx_hash,omitempty"`
	TokenID      *string    `json:"token_id,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// MintIntentID derives the deterministic intent id for a story.
func MintIntentID(storyID string) string {
	return "mint_" + storyID
}

// Story is the slice of the story record this pipeline owns: the mint
// outcome. Everything else about a story belongs to other services.
type Story struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	NFTTokenID *string `json:"nft_token_id,omitempty"`
	NFTTxHash  *string `json:"nft_tx_hash,omitempty"`
}
