package ledger

import (
	"context"
	"log/slog"

	"github.com/storymint/mint-pipeline/internal/domain"
	"github.com/storymint/mint-pipeline/internal/store"
)

// Store is the durable side of the ledger.
type Store interface {
	UpsertRoyaltyConfigByNFT(ctx context.Context, nftID, creatorWallet string, percentage float64) (*domain.RoyaltyConfig, error)
	UpsertRoyaltyConfigByStory(ctx context.Context, storyID, creatorWallet string, percentage float64) (*domain.RoyaltyConfig, error)
	GetActiveConfigByNFT(ctx context.Context, nftID string) (*domain.RoyaltyConfig, error)
	GetActiveConfigByStory(ctx context.Context, storyID string) (*domain.RoyaltyConfig, error)
	ListConfigsByCreator(ctx context.Context, creatorWallet string) ([]domain.RoyaltyConfig, error)
	InsertRoyaltyTransaction(ctx context.Context, rec store.RoyaltyTransactionRecord) (*domain.RoyaltyTransaction, error)
	SetTransactionStatus(ctx context.Context, id, status string) error
	IncrementCreatorEarnings(ctx context.Context, creatorWallet string, amount float64) error
	GetCreatorEarnings(ctx context.Context, creatorWallet string) (*domain.CreatorEarnings, error)
	ListCreatorTransactions(ctx context.Context, creatorWallet string, page, limit int) ([]domain.RoyaltyTransaction, error)
}

// Service implements the royalty ledger: per-sale transaction records
// and the per-creator running aggregate, updated exactly once per
// confirmed sale.
type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(s Store, logger *slog.Logger) *Service {
	return &Service{store: s, logger: logger}
}

// ConfigureParams selects exactly one of NFTID / StoryID.
type ConfigureParams struct {
	NFTID             string
	StoryID           string
	CreatorWallet     string
	RoyaltyPercentage float64
}

// ConfigureRoyalty validates and upserts a royalty policy, keyed on
// the single asset reference so repeated calls reconfigure rather
// than duplicate.
func (s *Service) ConfigureRoyalty(ctx context.Context, p ConfigureParams) (*domain.RoyaltyConfig, error) {
	if (p.NFTID == "") == (p.StoryID == "") {
		return nil, domain.Validationf("exactly one of nft_id or story_id is required")
	}
	if !domain.ValidWallet(p.CreatorWallet) {
		return nil, domain.Validationf("invalid creator wallet %q", p.CreatorWallet)
	}
	if p.RoyaltyPercentage < 0 || p.RoyaltyPercentage > domain.MaxRoyaltyPercentage {
		return nil, domain.Validationf("royalty percentage %g out of range [0, %g]", p.RoyaltyPercentage, domain.MaxRoyaltyPercentage)
	}

	var (
		cfg *domain.RoyaltyConfig
		err error
	)
	if p.NFTID != "" {
		cfg, err = s.store.UpsertRoyaltyConfigByNFT(ctx, p.NFTID, p.CreatorWallet, p.RoyaltyPercentage)
	} else {
		cfg, err = s.store.UpsertRoyaltyConfigByStory(ctx, p.StoryID, p.CreatorWallet, p.RoyaltyPercentage)
	}
	if err != nil {
		return nil, domain.Transientf(err, "storing royalty config")
	}
	return cfg, nil
}

// RecordParams describes a confirmed secondary sale.
type RecordParams struct {
	NFTID        string
	SalePrice    float64
	SellerWallet string
	BuyerWallet  string
	TxHash       *string
}

// RecordRoyaltyTransaction records one sale. The sequencing is
// deliberate: (1) insert the transaction as pending, (2) atomically
// increment the creator aggregate, (3) flip the transaction to
// completed. A crash between (1) and (2) leaves a visible pending row
// for the reconciler instead of silently losing the sale; a failure
// in (2) flips the row to failed with the aggregate untouched.
func (s *Service) RecordRoyaltyTransaction(ctx context.Context, p RecordParams) (*domain.RoyaltyTransaction, error) {
	if p.NFTID == "" {
		return nil, domain.Validationf("nft_id is required")
	}
	if p.SalePrice <= 0 {
		return nil, domain.Validationf("sale price must be positive, got %g", p.SalePrice)
	}
	if !domain.ValidWallet(p.SellerWallet) {
		return nil, domain.Validationf("invalid seller wallet %q", p.SellerWallet)
	}
	if !domain.ValidWallet(p.BuyerWallet) {
		return nil, domain.Validationf("invalid buyer wallet %q", p.BuyerWallet)
	}

	cfg, err := s.store.GetActiveConfigByNFT(ctx, p.NFTID)
	if err != nil {
		return nil, domain.Transientf(err, "looking up royalty config")
	}
	if cfg == nil {
		return nil, domain.NotFoundf("no active royalty configuration for nft %q", p.NFTID)
	}

	amount := p.SalePrice * cfg.RoyaltyPercentage / 100

	txn, err := s.store.InsertRoyaltyTransaction(ctx, store.RoyaltyTransactionRecord{
		NFTID:             p.NFTID,
		SalePrice:         p.SalePrice,
		RoyaltyAmount:     amount,
		RoyaltyPercentage: cfg.RoyaltyPercentage,
		SellerWallet:      p.SellerWallet,
		BuyerWallet:       p.BuyerWallet,
		CreatorWallet:     cfg.CreatorWallet,
		TxHash:            p.TxHash,
	})
	if err != nil {
		return nil, domain.Transientf(err, "recording royalty transaction")
	}

	if err := s.store.IncrementCreatorEarnings(ctx, cfg.CreatorWallet, amount); err != nil {
		// The increment is a single atomic statement: if it errored,
		// the aggregate is untouched. Leave the failed row as
		// evidence and surface the original error.
		if failErr := s.store.SetTransactionStatus(ctx, txn.ID, domain.TxnFailed); failErr != nil {
			s.logger.Error("failed to mark royalty transaction failed",
				"transaction_id", txn.ID,
				"error", failErr,
			)
		}
		return nil, domain.Transientf(err, "updating creator earnings")
	}

	if err := s.store.SetTransactionStatus(ctx, txn.ID, domain.TxnCompleted); err != nil {
		// The ledger update already landed; re-raising here would
		// invite a duplicate record call. The row stays pending and
		// the reconciler surfaces it to an operator.
		s.logger.Error("failed to complete royalty transaction",
			"transaction_id", txn.ID,
			"error", err,
		)
		return txn, nil
	}
	txn.Status = domain.TxnCompleted

	s.logger.Info("royalty recorded",
		"transaction_id", txn.ID,
		"nft_id", p.NFTID,
		"creator_wallet", cfg.CreatorWallet,
		"royalty_amount", amount,
	)

	return txn, nil
}

// GetCreatorEarnings returns the creator's aggregate, or a zero-value
// record if the creator has never earned. Never nil.
func (s *Service) GetCreatorEarnings(ctx context.Context, wallet string) (*domain.CreatorEarnings, error) {
	if !domain.ValidWallet(wallet) {
		return nil, domain.Validationf("invalid creator wallet %q", wallet)
	}
	earnings, err := s.store.GetCreatorEarnings(ctx, wallet)
	if err != nil {
		return nil, domain.Transientf(err, "looking up creator earnings")
	}
	if earnings == nil {
		return &domain.CreatorEarnings{CreatorWallet: wallet}, nil
	}
	return earnings, nil
}

// ClampPage normalizes pagination: page is clamped to ≥ 1, limit
// defaults to 20 and is capped at 100. The service applies it so
// callers cannot bypass the cap; handlers reuse it to echo the
// effective values in responses.
func ClampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

// GetCreatorTransactions returns a creator's transactions newest
// first.
func (s *Service) GetCreatorTransactions(ctx context.Context, wallet string, page, limit int) ([]domain.RoyaltyTransaction, error) {
	if !domain.ValidWallet(wallet) {
		return nil, domain.Validationf("invalid creator wallet %q", wallet)
	}
	page, limit = ClampPage(page, limit)
	txns, err := s.store.ListCreatorTransactions(ctx, wallet, page, limit)
	if err != nil {
		return nil, domain.Transientf(err, "listing creator transactions")
	}
	return txns, nil
}

// ConfigQuery filters GetRoyaltyConfig. Asset references yield a
// single config; a creator wallet alone yields all of the creator's
// configs.
type ConfigQuery struct {
	NFTID         string
	StoryID       string
	CreatorWallet string
}

// GetRoyaltyConfig looks up royalty configs.
func (s *Service) GetRoyaltyConfig(ctx context.Context, q ConfigQuery) ([]domain.RoyaltyConfig, error) {
	switch {
	case q.NFTID != "":
		cfg, err := s.store.GetActiveConfigByNFT(ctx, q.NFTID)
		if err != nil {
			return nil, domain.Transientf(err, "looking up royalty config")
		}
		if cfg == nil {
			return nil, domain.NotFoundf("no active royalty configuration for nft %q", q.NFTID)
		}
		return []domain.RoyaltyConfig{*cfg}, nil

	case q.StoryID != "":
		cfg, err := s.store.GetActiveConfigByStory(ctx, q.StoryID)
		if err != nil {
			return nil, domain.Transientf(err, "looking up royalty config")
		}
		if cfg == nil {
			return nil, domain.NotFoundf("no active royalty configuration for story %q", q.StoryID)
		}
		return []domain.RoyaltyConfig{*cfg}, nil

	case q.CreatorWallet != "":
		if !domain.ValidWallet(q.CreatorWallet) {
			return nil, domain.Validationf("invalid creator wallet %q", q.CreatorWallet)
		}
		configs, err := s.store.ListConfigsByCreator(ctx, q.CreatorWallet)
		if err != nil {
			return nil, domain.Transientf(err, "listing royalty configs")
		}
		return configs, nil

	default:
		return nil, domain.Validationf("one of nft_id, story_id or creator_wallet is required")
	}
}
