package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/storymint/mint-pipeline/internal/domain"
	"github.com/storymint/mint-pipeline/internal/ledger"
)

type RoyaltyHandler struct {
	ledger *ledger.Service
}

func NewRoyaltyHandler(l *ledger.Service) *RoyaltyHandler {
	return &RoyaltyHandler{ledger: l}
}

type configureRequest struct {
	NFTID             string  `json:"nft_id,omitempty"`
	StoryID           string  `json:"story_id,omitempty"`
	CreatorWallet     string  `json:"creator_wallet"`
	RoyaltyPercentage float64 `json:"royalty_percentage"`
}

type configureResponse struct {
	Success bool                  `json:"success"`
	Config  *domain.RoyaltyConfig `json:"config"`
}

func (h *RoyaltyHandler) Configure(w http.ResponseWriter, r *http.Request) {
	var req configureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := h.ledger.ConfigureRoyalty(r.Context(), ledger.ConfigureParams{
		NFTID:             req.NFTID,
		StoryID:           req.StoryID,
		CreatorWallet:     req.CreatorWallet,
		RoyaltyPercentage: req.RoyaltyPercentage,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, configureResponse{Success: true, Config: cfg})
}

type configListResponse struct {
	Success bool                   `json:"success"`
	Configs []domain.RoyaltyConfig `json:"configs"`
}

func (h *RoyaltyHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	configs, err := h.ledger.GetRoyaltyConfig(r.Context(), ledger.ConfigQuery{
		NFTID:         q.Get("nft_id"),
		StoryID:       q.Get("story_id"),
		CreatorWallet: q.Get("creator_wallet"),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, configListResponse{Success: true, Configs: configs})
}

type recordRequest struct {
	NFTID        string  `json:"nft_id"`
	SalePrice    float64 `json:"sale_price"`
	SellerWallet string  `json:"seller_wallet"`
	BuyerWallet  string  `json:"buyer_wallet"`
	TxHash       *string `json:"tx_hash,omitempty"`
}

type recordResponse struct {
	Success     bool                       `json:"success"`
	Transaction *domain.RoyaltyTransaction `json:"transaction"`
}

func (h *RoyaltyHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	txn, err := h.ledger.RecordRoyaltyTransaction(r.Context(), ledger.RecordParams{
		NFTID:        req.NFTID,
		SalePrice:    req.SalePrice,
		SellerWallet: req.SellerWallet,
		BuyerWallet:  req.BuyerWallet,
		TxHash:       req.TxHash,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, recordResponse{Success: true, Transaction: txn})
}

type earningsResponse struct {
	Success  bool                    `json:"success"`
	Earnings *domain.CreatorEarnings `json:"earnings"`
}

func (h *RoyaltyHandler) Earnings(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")

	earnings, err := h.ledger.GetCreatorEarnings(r.Context(), wallet)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, earningsResponse{Success: true, Earnings: earnings})
}

type transactionsResponse struct {
	Success      bool                        `json:"success"`
	Page         int                         `json:"page"`
	Limit        int                         `json:"limit"`
	Transactions []domain.RoyaltyTransaction `json:"transactions"`
}

func (h *RoyaltyHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, limit = ledger.ClampPage(page, limit)

	txns, err := h.ledger.GetCreatorTransactions(r.Context(), wallet, page, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, transactionsResponse{
		Success:      true,
		Page:         page,
		Limit:        limit,
		Transactions: txns,
	})
}
