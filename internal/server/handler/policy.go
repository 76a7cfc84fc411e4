package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hyades-labs/tokengate/internal/domain"
	"github.com/hyades-labs/tokengate/internal/service"
)

// PolicyService defines the methods the policy handler requires from the
// service layer.
type PolicyService interface {
	InitializePolicy(ctx context.Context, p service.InitParams) (domain.Policy, error)
	UpdateFlags(ctx context.Context, caller, asset string, flags domain.PolicyFlags) (domain.Policy, error)
	Grant(ctx context.Context, caller, asset, wallet string) error
	Revoke(ctx context.Context, caller, asset, wallet string) error
	GetPolicy(ctx context.Context, asset string) (domain.Policy, error)
	ListWhitelist(ctx context.Context, asset string) ([]domain.AllowListEntry, error)
	Check(ctx context.Context, req domain.TransferRequest) (domain.Decision, error)
}

// PolicyHandler serves policy-related HTTP endpoints.
type PolicyHandler struct {
	policies PolicyService
	logger   *slog.Logger
}

// NewPolicyHandler creates a PolicyHandler with the given service and logger.
func NewPolicyHandler(policies PolicyService, logger *slog.Logger) *PolicyHandler {
	return &PolicyHandler{
		policies: policies,
		logger:   logger,
	}
}

type initPolicyRequest struct {
	Owner       string  `json:"owner"`
	Asset       string  `json:"asset"`
	GatingAsset string  `json:"gating_asset"`
	OpenMinute  *uint16 `json:"open_minute"`
	CloseMinute *uint16 `json:"close_minute"`
	MaxTransfer uint64  `json:"max_transfer"`
	MinTransfer uint64  `json:"min_transfer"`
}

// InitializePolicy registers a policy for a governed asset with every gate
// disabled.
// POST /api/policies
func (h *PolicyHandler) InitializePolicy(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req initPolicyRequest
	if err := decodeBody(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Owner == "" || req.Asset == "" {
		writeError(w, http.StatusBadRequest, "owner and asset are required")
		return
	}

	owner, err := callerIdentity(r, body, req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signature: "+err.Error())
		return
	}

	p, err := h.policies.InitializePolicy(r.Context(), service.InitParams{
		Owner:       owner,
		Asset:       normalizeAddr(req.Asset),
		GatingAsset: normalizeAddr(req.GatingAsset),
		OpenMinute:  req.OpenMinute,
		CloseMinute: req.CloseMinute,
		MaxTransfer: req.MaxTransfer,
		MinTransfer: req.MinTransfer,
	})
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: initialize policy failed",
				slog.String("asset", req.Asset),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// GetPolicy returns the policy for a governed asset.
// GET /api/policies/{asset}
func (h *PolicyHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	asset := pathParam(r, "asset")
	if asset == "" {
		writeError(w, http.StatusBadRequest, "missing asset")
		return
	}

	p, err := h.policies.GetPolicy(r.Context(), normalizeAddr(asset))
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: get policy failed",
				slog.String("asset", asset),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

type updateFlagsRequest struct {
	Caller       string `json:"caller"`
	Whitelist    bool   `json:"whitelist"`
	TradingTime  bool   `json:"trading_time"`
	MaxTransfer  bool   `json:"max_transfer"`
	HoldingGated bool   `json:"holding_gated"`
}

// UpdateFlags toggles the policy gates. Only the policy owner may call it.
// PUT /api/policies/{asset}
func (h *PolicyHandler) UpdateFlags(w http.ResponseWriter, r *http.Request) {
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

	var req updateFlagsRequest
	if err := decodeBody(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Caller == "" {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}

	caller, err := callerIdentity(r, body, req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signature: "+err.Error())
		return
	}

	p, err := h.policies.UpdateFlags(r.Context(), caller, normalizeAddr(asset), domain.PolicyFlags{
		Whitelist:    req.Whitelist,
		TradingTime:  req.TradingTime,
		MaxTransfer:  req.MaxTransfer,
		HoldingGated: req.HoldingGated,
	})
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: update flags failed",
				slog.String("asset", asset),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

type whitelistRequest struct {
	Caller string `json:"caller"`
}

// Grant adds a wallet to the asset's allow list.
// POST /api/policies/{asset}/whitelist/{wallet}
func (h *PolicyHandler) Grant(w http.ResponseWriter, r *http.Request) {
	h.mutateWhitelist(w, r, h.policies.Grant, http.StatusCreated)
}

// Revoke removes a wallet from the asset's allow list.
// DELETE /api/policies/{asset}/whitelist/{wallet}
func (h *PolicyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	h.mutateWhitelist(w, r, h.policies.Revoke, http.StatusOK)
}

func (h *PolicyHandler) mutateWhitelist(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, caller, asset, wallet string) error,
	okStatus int,
) {
	asset := pathParam(r, "asset")
	wallet := pathParam(r, "wallet")
	if asset == "" || wallet == "" {
		writeError(w, http.StatusBadRequest, "missing asset or wallet")
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req whitelistRequest
	if len(body) > 0 {
		if err := decodeBody(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	caller, err := callerIdentity(r, body, req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signature: "+err.Error())
		return
	}

	if err := op(r.Context(), caller, normalizeAddr(asset), normalizeAddr(wallet)); err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: whitelist mutation failed",
				slog.String("asset", asset),
				slog.String("wallet", wallet),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, okStatus, map[string]string{
		"asset":  normalizeAddr(asset),
		"wallet": normalizeAddr(wallet),
	})
}

type listWhitelistResponse struct {
	Wallets []domain.AllowListEntry `json:"wallets"`
}

// ListWhitelist returns the allow-list entries for an asset.
// GET /api/policies/{asset}/whitelist
func (h *PolicyHandler) ListWhitelist(w http.ResponseWriter, r *http.Request) {
	asset := pathParam(r, "asset")
	if asset == "" {
		writeError(w, http.StatusBadRequest, "missing asset")
		return
	}

	entries, err := h.policies.ListWhitelist(r.Context(), normalizeAddr(asset))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list whitelist failed",
			slog.String("asset", asset),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listWhitelistResponse{Wallets: entries})
}

type checkRequest struct {
	Wallet string `json:"wallet"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// Check runs a dry-run policy evaluation without moving anything.
// POST /api/policies/{asset}/check
func (h *PolicyHandler) Check(w http.ResponseWriter, r *http.Request) {
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

	var req checkRequest
	if err := decodeBody(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet is required")
		return
	}

	decision, err := h.policies.Check(r.Context(), domain.TransferRequest{
		Asset:  normalizeAddr(asset),
		Wallet: normalizeAddr(req.Wallet),
		To:     normalizeAddr(req.To),
		Amount: req.Amount,
	})
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: policy check failed",
				slog.String("asset", asset),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, decision)
}
