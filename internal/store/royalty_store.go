package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/storymint/mint-pipeline/internal/domain"
)

const configColumns = "id, nft_id, story_id, creator_wallet, royalty_percentage, is_active, created_at, updated_at"
const txnColumns = "id, nft_id, sale_price, royalty_amount, royalty_percentage, seller_wallet, buyer_wallet, creator_wallet, tx_hash, status, created_at"

// UpsertRoyaltyConfigByNFT configures or reconfigures the royalty
// policy for an NFT. Keyed on nft_id, so repeated calls update rather
// than duplicate.
func (s *PostgresStore) UpsertRoyaltyConfigByNFT(ctx context.Context, nftID, creatorWallet string, percentage float64) (*domain.RoyaltyConfig, error) {
	pool, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	var cfg domain.RoyaltyConfig
	err = pool.QueryRow(ctx, `
		INSERT INTO royalty_configs (nft_id, creator_wallet, royalty_percentage, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (nft_id) WHERE nft_id IS NOT NULL DO UPDATE
		SET creator_wallet = EXCLUDED.creator_wallet,
		    royalty_percentage = EXCLUDED.royalty_percentage,
		    is_active = TRUE,
		    updated_at = NOW()
		RETURNING `+configColumns+`
	`, nftID, creatorWallet, percentage).Scan(
		&cfg.ID, &cfg.NFTID, &cfg.StoryID, &cfg.CreatorWallet,
		&cfg.RoyaltyPercentage, &cfg.IsActive, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting royalty config: %w", err)
	}
	return &cfg, nil
}

// UpsertRoyaltyConfigByStory is the story-keyed variant of
// UpsertRoyaltyConfigByNFT.
func (s *PostgresStore) UpsertRoyaltyConfigByStory(ctx context.Context, storyID, creatorWallet string, percentage float64) (*domain.RoyaltyConfig, error) {
	pool, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	var cfg domain.RoyaltyConfig
	err = pool.QueryRow(ctx, `
		INSERT INTO royalty_configs (story_id, creator_wallet, royalty_percentage, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (story_id) WHERE story_id IS NOT NULL DO UPDATE
		SET creator_wallet = EXCLUDED.creator_wallet,
		    royalty_percentage = EXCLUDED.royalty_percentage,
		    is_active = TRUE,
		    updated_at = NOW()
		RETURNING `+configColumns+`
	`, storyID, creatorWallet, percentage).Scan(
		&cfg.ID, &cfg.NFTID, &cfg.StoryID, &cfg.CreatorWallet,
		&cfg.RoyaltyPercentage, &cfg.IsActive, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting royalty config: %w", err)
	}
	return &cfg, nil
}

// GetActiveConfigByNFT returns the active royalty config for an NFT,
// or nil if none exists.
func (s *PostgresStore) GetActiveConfigByNFT(ctx context.Context, nftID string) (*domain.RoyaltyConfig, error) {
	pool, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	var cfg domain.RoyaltyConfig
	err = pool.QueryRow(ctx, `
		SELECT `+configColumns+` FROM royalty_configs
		WHERE nft_id = $1 AND is_active = TRUE
	`, nftID).Scan(
		&cfg.ID, &cfg.NFTID, &cfg.StoryID, &cfg.CreatorWallet,
		&cfg.RoyaltyPercentage, &cfg.IsActive, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying royalty config: %w", err)
	}
	return &cfg, nil
}

// GetActiveConfigByStory returns the active royalty config for a
// story, or nil if none exists.
func (s *PostgresStore) GetActiveConfigByStory(ctx context.Context, storyID string) (*domain.RoyaltyConfig, error) {
	pool, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	var cfg domain.RoyaltyConfig
	err = pool.QueryRow(ctx, `
		SELECT `+configColumns+` FROM royalty_configs
		WHERE story_id = $1 AND is_active = TRUE
	`, storyID).Scan(
		&cfg.ID, &cfg.NFTID, &cfg.StoryID, &cfg.CreatorWallet,
		&cfg.RoyaltyPercentage, &cfg.IsActive, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying royalty config: %w", err)
	}
	return &cfg, nil
}

// ListConfigsByCreator returns all configs for a creator wallet,
// newest first.
func (s *PostgresStore) ListConfigsByCreator(ctx context.Context, creatorWallet string) ([]domain.RoyaltyConfig, error) {
	pool, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `
		SELECT `+configColumns+` FROM royalty_configs
		WHERE creator_wallet = $1
		ORDER BY created_at DESC
	`, creatorWallet)
	if err != nil {
		return nil, fmt.Errorf("querying royalty configs: %w", err)
	}
	defer rows.Close()

	var configs []domain.RoyaltyConfig
	for rows.Next() {
		var cfg domain.RoyaltyConfig
		err := rows.Scan(
			&cfg.ID, &cfg.NFTID, &cfg.StoryID, &cfg.CreatorWallet,
			&cfg.RoyaltyPercentage, &cfg.IsActive, &cfg.CreatedAt, &cfg.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning royalty config: %w", err)
		}
		configs = append(configs, cfg)
	}

	if configs == nil {
		configs = []domain.RoyaltyConfig{}
	}

	return configs, nil
}

// RoyaltyTransactionRecord holds data for inserting a pending
// transaction row.
type RoyaltyTransactionRecord struct {
	NFTID             string
	SalePrice         float64
	RoyaltyAmount     float64
	RoyaltyPercentage float64
	SellerWallet      string
	BuyerWallet       string
	CreatorWallet     string
	TxHash            *string
}

// InsertRoyaltyTransaction writes an immutable pending transaction
// row and returns it. The id is generated here rather than by the
// database so it can be logged even when the insert itself fails.
func (s *PostgresStore) InsertRoyaltyTransaction(ctx context.Context, rec RoyaltyTransactionRecord) (*domain.RoyaltyTransaction, error) {
	pool, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()

	var txn domain.RoyaltyTransaction
	err = pool.QueryRow(ctx, `
		INSERT INTO royalty_transactions
			(id, nft_id, sale_price, royalty_amount, royalty_percentage, seller_wallet, buyer_wallet, creator_wallet, tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+txnColumns+`
	`, id, rec.NFTID, rec.SalePrice, rec.RoyaltyAmount, rec.RoyaltyPercentage,
		rec.SellerWallet, rec.BuyerWallet, rec.CreatorWallet, rec.TxHash,
	).Scan(
		&txn.ID, &txn.NFTID, &txn.SalePrice, &txn.RoyaltyAmount, &txn.RoyaltyPercentage,
		&txn.SellerWallet, &txn.BuyerWallet, &txn.CreatorWallet, &txn.TxHash,
		&txn.Status, &txn.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting royalty transaction: %w", err)
	}
	return &txn, nil
}

// SetTransactionStatus flips a pending transaction to completed or
// failed. Rows already terminal are left untouched.
func (s *PostgresStore) SetTransactionStatus(ctx context.Context, id, status string) error {
	pool, err := s.db(ctx)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		UPDATE royalty_transactions SET status = $2
		WHERE id = $1 AND status = 'pending'
	`, id, status)
	if err != nil {
		return fmt.Errorf("updating transaction status: %w", err)
	}
	return nil
}

// IncrementCreatorEarnings applies one sale to the creator's running
// aggregate in a single atomic statement, creating the row if absent.
// Never read-modify-write this aggregate: concurrent sales for the
// same creator must not lose updates.
func (s *PostgresStore) IncrementCreatorEarnings(ctx context.Context, creatorWallet string, amount float64) error {
	pool, err := s.db(ctx)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO creator_earnings (creator_wallet, total_earned, pending_payout, paid_out, total_sales, last_updated)
		VALUES ($1, $2, $2, 0, 1, NOW())
		ON CONFLICT (creator_wallet) DO UPDATE
		SET total_earned = creator_earnings.total_earned + EXCLUDED.total_earned,
		    pending_payout = creator_earnings.pending_payout + EXCLUDED.pending_payout,
		    total_sales = creator_earnings.total_sales + 1,
		    last_updated = NOW()
	`, creatorWallet, amount)
	if err != nil {
		return fmt.Errorf("incrementing creator earnings: %w", err)
	}
	return nil
}

// GetCreatorEarnings returns the aggregate for a creator, or nil if
// the creator has never earned.
func (s *PostgresStore) GetCreatorEarnings(ctx context.Context, creatorWallet string) (*domain.CreatorEarnings, error) {
	pool, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	var e domain.CreatorEarnings
	err = pool.QueryRow(ctx, `
		SELECT creator_wallet, total_earned, pending_payout, paid_out, total_sales, last_updated
		FROM creator_earnings WHERE creator_wallet = $1
	`, creatorWallet).Scan(
		&e.CreatorWallet, &e.TotalEarned, &e.PendingPayout,
		&e.PaidOut, &e.TotalSales, &e.LastUpdated,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying creator earnings: %w", err)
	}
	return &e, nil
}

// ListCreatorTransactions returns a creator's transactions newest
// first, paginated.
func (s *PostgresStore) ListCreatorTransactions(ctx context.Context, creatorWallet string, page, limit int) ([]domain.RoyaltyTransaction, error) {
	pool, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	offset := (page - 1) * limit
	rows, err := pool.Query(ctx, `
		SELECT `+txnColumns+` FROM royalty_transactions
		WHERE creator_wallet = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, creatorWallet, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying royalty transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.RoyaltyTransaction
	for rows.Next() {
		var txn domain.RoyaltyTransaction
		err := rows.Scan(
			&txn.ID, &txn.NFTID, &txn.SalePrice, &txn.RoyaltyAmount, &txn.RoyaltyPercentage,
			&txn.SellerWallet, &txn.BuyerWallet, &txn.CreatorWallet, &txn.TxHash,
			&txn.Status, &txn.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning royalty transaction: %w", err)
		}
		txns = append(txns, txn)
	}

	if txns == nil {
		txns = []domain.RoyaltyTransaction{}
	}

	return txns, nil
}

// FailStaleTransactions terminally fails pending transactions older
// than the cutoff and returns their ids. Used by the reconciliation
// sweep: a row stuck in pending past the threshold means the process
// died between the insert and the aggregate increment.
func (s *PostgresStore) FailStaleTransactions(ctx context.Context, olderThan time.Time) ([]string, error) {
	pool, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `
		UPDATE royalty_transactions
		SET status = 'failed'
		WHERE status = 'pending' AND created_at < $1
		RETURNING id
	`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failing stale transactions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning stale transaction id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
