package domain

import "time"

// Royalty transaction statuses. Rows are created pending and flipped
// exactly once to completed or failed; both are terminal.
const (
	TxnPending   = "pending"
	TxnCompleted = "completed"
	TxnFailed    = "failed"
)

// MaxRoyaltyPercentage caps configurable royalties.
const MaxRoyaltyPercentage = 50.0

// RoyaltyConfig is the royalty policy for a single asset, referenced
// by exactly one of NFTID or StoryID.
type RoyaltyConfig struct {
	ID                string    `json:"id"`
	NFTID             *string   `json:"nft_id,omitempty"`
	StoryID           *string   `json:"story_id,omitempty"`
	CreatorWallet     string    `json:"creator_wallet"`
	RoyaltyPercentage float64   `json:"royalty_percentage"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// RoyaltyTransaction records one secondary sale. RoyaltyAmount and
// RoyaltyPercentage are snapshotted at record time, not live
// references into the config.
type RoyaltyTransaction struct {
	ID                string    `json:"id"`
	NFTID             string    `json:"nft_id"`
	SalePrice         float64   `json:"sale_price"`
	RoyaltyAmount     float64   `json:"royalty_amount"`
	RoyaltyPercentage float64   `json:"royalty_percentage"`
	SellerWallet      string    `json:"seller_wallet"`
	BuyerWallet       string    `json:"buyer_wallet"`
	CreatorWallet     string    `json:"creator_wallet"`
	TxHash            *string   `json:"tx_hash,omitempty"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

// CreatorEarnings is the per-creator running aggregate. It is only
// ever mutated through a single atomic increment, never
// read-modify-written.
type CreatorEarnings struct {
	CreatorWallet string    `json:"creator_wallet"`
	TotalEarned   float64   `json:"total_earned"`
	PendingPayout float64   `json:"pending_payout"`
	PaidOut       float64   `json:"paid_out"`
	TotalSales    int       `json:"total_sales"`
	LastUpdated   time.Time `json:"last_updated"`
}
