package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hyades-labs/tokengate/internal/domain"
	"github.com/hyades-labs/tokengate/internal/sale"
)

// SaleService defines the methods the sale handler requires from the service
// layer.
type SaleService interface {
	CreateSale(ctx context.Context, caller string, p sale.CreateParams) (domain.Sale, error)
	Purchase(ctx context.Context, asset, buyer string, amount uint64) (domain.Receipt, error)
	GetSale(ctx context.Context, asset string) (domain.Sale, error)
	ListReceipts(ctx context.Context, asset string, opts domain.ListOpts) ([]domain.Receipt, error)
}

// SaleHandler serves sale-related HTTP endpoints.
type SaleHandler struct {
	sales  SaleService
	logger *slog.Logger
}

// NewSaleHandler creates a SaleHandler with the given service and logger.
func NewSaleHandler(sales SaleService, logger *slog.Logger) *SaleHandler {
	return &SaleHandler{
		sales:  sales,
		logger: logger,
	}
}

type createSaleRequest struct {
	Creator       string `json:"creator"`
	Asset         string `json:"asset"`
	SoftCap       uint64 `json:"soft_cap"`
	HardCap       uint64 `json:"hard_cap"`
	StartTime     int64  `json:"start_time"`
	EndTime       int64  `json:"end_time"`
	PricePerUnit  uint64 `json:"price_per_unit"`
	DepositAmount uint64 `json:"deposit_amount"`
}

// CreateSale validates and opens a new token sale.
// POST /api/sales
func (h *SaleHandler) CreateSale(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req createSaleRequest
	if err := decodeBody(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Creator == "" || req.Asset == "" {
		writeError(w, http.StatusBadRequest, "creator and asset are required")
		return
	}

	caller, err := callerIdentity(r, body, req.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signature: "+err.Error())
		return
	}

	created, err := h.sales.CreateSale(r.Context(), caller, sale.CreateParams{
		Creator:       normalizeAddr(req.Creator),
		Asset:         normalizeAddr(req.Asset),
		SoftCap:       req.SoftCap,
		HardCap:       req.HardCap,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		PricePerUnit:  req.PricePerUnit,
		DepositAmount: req.DepositAmount,
	})
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: create sale failed",
				slog.String("asset", req.Asset),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// GetSale returns a single sale by its governed asset.
// GET /api/sales/{asset}
func (h *SaleHandler) GetSale(w http.ResponseWriter, r *http.Request) {
	asset := pathParam(r, "asset")
	if asset == "" {
		writeError(w, http.StatusBadRequest, "missing asset")
		return
	}

	s, err := h.sales.GetSale(r.Context(), normalizeAddr(asset))
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: get sale failed",
				slog.String("asset", asset),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s)
}

type purchaseRequest struct {
	Buyer  string `json:"buyer"`
	Amount uint64 `json:"amount"`
}

// Purchase settles a buy order against an active sale.
// POST /api/sales/{asset}/purchase
func (h *SaleHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	asset := pathParam(r, "asset")
	if asset == "" {
		writeError(w, http.StatusBadRequest, "missing asset")
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req purchaseRequest
	if err := decodeBody(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Buyer == "" {
		writeError(w, http.StatusBadRequest, "buyer is required")
		return
	}

	buyer, err := callerIdentity(r, body, req.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signature: "+err.Error())
		return
	}

	receipt, err := h.sales.Purchase(r.Context(), normalizeAddr(asset), buyer, req.Amount)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: purchase failed",
				slog.String("asset", asset),
				slog.String("buyer", req.Buyer),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

type listReceiptsResponse struct {
	Receipts []domain.Receipt `json:"receipts"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// ListReceipts returns settled receipts for a sale with pagination.
// GET /api/sales/{asset}/receipts?limit=50&offset=0
func (h *SaleHandler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	asset := pathParam(r, "asset")
	if asset == "" {
		writeError(w, http.StatusBadRequest, "missing asset")
		return
	}

	opts := parseListOpts(r)
	receipts, err := h.sales.ListReceipts(r.Context(), normalizeAddr(asset), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list receipts failed",
			slog.String("asset", asset),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listReceiptsResponse{
		Receipts: receipts,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}
