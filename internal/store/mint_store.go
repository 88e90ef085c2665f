package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/storymint/mint-pipeline/internal/domain"
)

const intentColumns = "intent_id, story_id, author_wallet, tx_hash, token_id, status, created_at, updated_at"

// EnsureMintIntent inserts the intent for a story if it does not
// exist yet and returns the current row either way. The deterministic
// intent id makes this the saga's idempotency key: replays of the same
// MintRequested event always land on the same row.
func (s *PostgresStore) EnsureMintIntent(ctx context.Context, storyID, authorWallet string) (*domain.MintIntent, error) {
	pool, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	intentID := domain.MintIntentID(storyID)
	var intent domain.MintIntent
	err = pool.QueryRow(ctx, `
		INSERT INTO mint_intents (intent_id, story_id, author_wallet)
		VALUES ($1, $2, $3)
		ON CONFLICT (intent_id) DO UPDATE SET intent_id = EXCLUDED.intent_id
		RETURNING `+intentColumns+`
	`, intentID, storyID, authorWallet).Scan(
		&intent.IntentID, &intent.StoryID, &intent.AuthorWallet,
		&intent.TxHash, &intent.TokenID, &intent.Status,
		&intent.CreatedAt, &intent.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ensuring mint intent: %w", err)
	}
	return &intent, nil
}

// GetMintIntent returns the intent for a story, or nil if absent.
func (s *PostgresStore) GetMintIntent(ctx context.Context, storyID string) (*domain.MintIntent, error) {
	pool, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	var intent domain.MintIntent
	err = pool.QueryRow(ctx, `
		SELECT `+intentColumns+` FROM mint_intents WHERE intent_id = $1
	`, domain.MintIntentID(storyID)).Scan(
		&intent.IntentID, &intent.StoryID, &intent.AuthorWallet,
		&intent.TxHash, &intent.TokenID, &intent.Status,
		&intent.CreatedAt, &intent.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying mint intent: %w", err)
	}
	return &intent, nil
}

// MarkIntentSubmitted records the transaction hash and advances the
// intent to submitted. The status guard keeps the transition
// forward-only even under a concurrent replay; losing that race is
// logged, since the loser's txHash diverges from the stored one.
func (s *PostgresStore) MarkIntentSubmitted(ctx context.Context, intentID, txHash string) error {
	pool, err := s.db(ctx)
	if err != nil {
		return err
	}

	tag, err := pool.Exec(ctx, `
		UPDATE mint_intents
		SET tx_hash = $2, status = 'submitted', updated_at = NOW()
		WHERE intent_id = $1 AND status = 'pending'
	`, intentID, txHash)
	if err != nil {
		return fmt.Errorf("marking intent submitted: %w", err)
	}
	s.warnIfUnapplied(tag, "intent no longer pending, submitted tx_hash not recorded",
		"intent_id", intentID, "tx_hash", txHash)
	return nil
}

// MarkIntentConfirmed records the minted token id and advances the
// intent to confirmed.
func (s *PostgresStore) MarkIntentConfirmed(ctx context.Context, intentID, tokenID string) error {
	pool, err := s.db(ctx)
	if err != nil {
		return err
	}

	tag, err := pool.Exec(ctx, `
		UPDATE mint_intents
		SET token_id = $2, status = 'confirmed', updated_at = NOW()
		WHERE intent_id = $1 AND status = 'submitted'
	`, intentID, tokenID)
	if err != nil {
		return fmt.Errorf("marking intent confirmed: %w", err)
	}
	s.warnIfUnapplied(tag, "intent not in submitted status, confirmation not recorded",
		"intent_id", intentID, "token_id", tokenID)
	return nil
}

// MarkIntentFailed terminally fails an intent whose transaction
// reverted on-chain. Only reachable from submitted.
func (s *PostgresStore) MarkIntentFailed(ctx context.Context, intentID string) error {
	pool, err := s.db(ctx)
	if err != nil {
		return err
	}

	tag, err := pool.Exec(ctx, `
		UPDATE mint_intents
		SET status = 'failed', updated_at = NOW()
		WHERE intent_id = $1 AND status = 'submitted'
	`, intentID)
	if err != nil {
		return fmt.Errorf("marking intent failed: %w", err)
	}
	s.warnIfUnapplied(tag, "intent not in submitted status, failure not recorded",
		"intent_id", intentID)
	return nil
}

// MarkStoryMinted updates the story projection with the mint outcome.
// This is the write that makes a completed saga observable to the rest
// of the system.
func (s *PostgresStore) MarkStoryMinted(ctx context.Context, storyID, tokenID, txHash string) error {
	pool, err := s.db(ctx)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		UPDATE stories
		SET status = 'minted', nft_token_id = $2, nft_tx_hash = $3
		WHERE id = $1 AND status <> 'minted'
	`, storyID, tokenID, txHash)
	if err != nil {
		return fmt.Errorf("marking story minted: %w", err)
	}
	return nil
}

// GetStory returns the story projection, or nil if absent.
func (s *PostgresStore) GetStory(ctx context.Context, id string) (*domain.Story, error) {
	pool, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	var story domain.Story
	err = pool.QueryRow(ctx, `
		SELECT id, status, nft_token_id, nft_tx_hash FROM stories WHERE id = $1
	`, id).Scan(&story.ID, &story.Status, &story.NFTTokenID, &story.NFTTxHash)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying story: %w", err)
	}
	return &story, nil
}
