package chain

import "context"

// Transaction states as observed on-chain.
const (
	TxPending   = "pending"
	TxConfirmed = "confirmed"
	TxReverted  = "reverted"
)

// TxStatus is the result of a status poll. TokenID is only set once
// the transaction is confirmed and the mint log has been decoded.
type TxStatus struct {
	State   string
	TokenID string
}

// Client is the blockchain contract the mint saga drives. SubmitMint
// broadcasts the mint transaction and returns its hash; CheckTxStatus
// polls for the transaction's fate.
type Client interface {
	SubmitMint(ctx context.Context, wallet, metadataURI string) (string, error)
	CheckTxStatus(ctx context.Context, txHash string) (*TxStatus, error)
}
