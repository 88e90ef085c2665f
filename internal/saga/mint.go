package saga

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/storymint/mint-pipeline/internal/chain"
	"github.com/storymint/mint-pipeline/internal/domain"
)

// Store is the durable state the saga needs: the intent row that makes
// it idempotent and the story projection it completes into.
type Store interface {
	EnsureMintIntent(ctx context.Context, storyID, authorWallet string) (*domain.MintIntent, error)
	MarkIntentSubmitted(ctx context.Context, intentID, txHash string) error
	MarkIntentConfirmed(ctx context.Context, intentID, tokenID string) error
	MarkIntentFailed(ctx context.Context, intentID string) error
	MarkStoryMinted(ctx context.Context, storyID, tokenID, txHash string) error
}

// MintSaga drives a story to a minted NFT through the chain client,
// persisting progress after every step. Re-running it for the same
// story is always safe: the deterministic intent id and its
// forward-only status make each step a no-op once satisfied.
type MintSaga struct {
	store  Store
	chain  chain.Client
	logger *slog.Logger
}

func NewMintSaga(store Store, chainClient chain.Client, logger *slog.Logger) *MintSaga {
	return &MintSaga{store: store, chain: chainClient, logger: logger}
}

// Handle processes one MintRequested event. Errors of transient kind
// send the event back to the outbox for a later retry; fatal-kind
// errors (a reverted transaction, an undecodable payload) end the
// event immediately.
func (s *MintSaga) Handle(ctx context.Context, payload json.RawMessage) error {
	var req domain.MintRequestedPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return domain.Fatalf(err, "decoding MintRequested payload")
	}
	if req.StoryID == "" || req.AuthorWallet == "" {
		return domain.Fatalf(nil, "MintRequested payload missing story_id or author_wallet")
	}

	intent, err := s.store.EnsureMintIntent(ctx, req.StoryID, req.AuthorWallet)
	if err != nil {
		return domain.Transientf(err, "loading mint intent")
	}

	switch intent.Status {
	case domain.IntentConfirmed:
		// A previous run confirmed the mint but may have crashed
		// before the story projection write. Redo just that write.
		return s.finalize(ctx, intent)
	case domain.IntentFailed:
		return domain.Fatalf(nil, "mint intent %s previously failed (reverted transaction)", intent.IntentID)
	}

	txHash := intent.TxHash
	if intent.Status == domain.IntentPending {
		hash, err := s.chain.SubmitMint(ctx, intent.AuthorWallet, req.MetadataURI)
		if err != nil {
			return err
		}
		// Persist the hash before anything else: a crash past this
		// point must not resubmit on retry.
		if err := s.store.MarkIntentSubmitted(ctx, intent.IntentID, hash); err != nil {
			return domain.Transientf(err, "persisting submitted intent")
		}
		s.logger.Info("mint transaction submitted",
			"intent_id", intent.IntentID,
			"story_id", intent.StoryID,
			"tx_hash", hash,
		)
		txHash = &hash
	}

	status, err := s.chain.CheckTxStatus(ctx, *txHash)
	if err != nil {
		return err
	}

	switch status.State {
	case chain.TxConfirmed:
		if err := s.store.MarkIntentConfirmed(ctx, intent.IntentID, status.TokenID); err != nil {
			return domain.Transientf(err, "persisting confirmed intent")
		}
		intent.Status = domain.IntentConfirmed
		intent.TokenID = &status.TokenID
		intent.TxHash = txHash
		return s.finalize(ctx, intent)

	case chain.TxReverted:
		if err := s.store.MarkIntentFailed(ctx, intent.IntentID); err != nil {
			return domain.Transientf(err, "persisting failed intent")
		}
		s.logger.Error("mint transaction reverted",
			"intent_id", intent.IntentID,
			"story_id", intent.StoryID,
			"tx_hash", *txHash,
		)
		return domain.Fatalf(nil, "mint transaction %s reverted on-chain", *txHash)

	default:
		return domain.Transientf(nil, "mint transaction %s still %s on-chain", *txHash, status.State)
	}
}

// finalize writes the mint outcome into the story projection, the
// side effect that makes the saga observably complete.
func (s *MintSaga) finalize(ctx context.Context, intent *domain.MintIntent) error {
	if intent.TokenID == nil || intent.TxHash == nil {
		return domain.Fatalf(nil, "confirmed intent %s missing token id or tx hash", intent.IntentID)
	}
	if err := s.store.MarkStoryMinted(ctx, intent.StoryID, *intent.TokenID, *intent.TxHash); err != nil {
		return domain.Transientf(err, "updating story projection")
	}
	s.logger.Info("story minted",
		"intent_id", intent.IntentID,
		"story_id", intent.StoryID,
		"token_id", *intent.TokenID,
		"tx_hash", *intent.TxHash,
	)
	return nil
}
