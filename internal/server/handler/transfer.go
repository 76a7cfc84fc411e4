package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hyades-labs/tokengate/internal/domain"
)

// TransferService defines the methods the transfer handler requires from the
// service layer.
type TransferService interface {
	Transfer(ctx context.Context, req domain.TransferRequest) (domain.Decision, error)
}

// TransferHandler serves the governed-transfer endpoint.
type TransferHandler struct {
	transfers TransferService
	logger    *slog.Logger
}

// NewTransferHandler creates a TransferHandler with the given service and
// logger.
func NewTransferHandler(transfers TransferService, logger *slog.Logger) *TransferHandler {
	return &TransferHandler{
		transfers: transfers,
		logger:    logger,
	}
}

type transferRequest struct {
	Asset  string `json:"asset"`
	Wallet string `json:"wallet"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type transferResponse struct {
	Decision domain.Decision `json:"decision"`
	Executed bool            `json:"executed"`
}

// Transfer evaluates the asset's policy and, on pass, moves the amount from
// the sending wallet to the recipient. A denied evaluation returns the
// recorded decision with a 422 status and no movement.
// POST /api/transfers
func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req transferRequest
	if err := decodeBody(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Asset == "" || req.Wallet == "" || req.To == "" {
		writeError(w, http.StatusBadRequest, "asset, wallet, and to are required")
		return
	}

	// When a signature is supplied, the sending wallet must be the signer.
	wallet, err := callerIdentity(r, body, req.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signature: "+err.Error())
		return
	}

	decision, err := h.transfers.Transfer(r.Context(), domain.TransferRequest{
		Asset:  normalizeAddr(req.Asset),
		Wallet: wallet,
		To:     normalizeAddr(req.To),
		Amount: req.Amount,
	})
	if err != nil {
		if domain.IsPolicyViolation(err) {
			writeJSON(w, http.StatusUnprocessableEntity, transferResponse{
				Decision: decision,
				Executed: false,
			})
			return
		}
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: transfer failed",
				slog.String("asset", req.Asset),
				slog.String("wallet", req.Wallet),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, transferResponse{
		Decision: decision,
		Executed: true,
	})
}
