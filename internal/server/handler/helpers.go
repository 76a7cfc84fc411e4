// Package handler contains the HTTP handlers for the public API. Each
// handler declares the narrow service interface it needs so the package does
// not depend on concrete service implementations.
package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyades-labs/tokengate/internal/crypto"
	"github.com/hyades-labs/tokengate/internal/domain"
)

// maxBodySize caps request bodies at 64 KiB.
const maxBodySize = 64 << 10

// signatureHeader carries an optional personal-sign signature over the raw
// request body. When present, the recovered address overrides the
// body-declared caller so ownership checks bind to a key, not a JSON field.
const signatureHeader = "X-Signature"

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// readBody reads and returns the request body, capped at maxBodySize.
func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBodySize))
}

// decodeBody unmarshals raw JSON into v, rejecting unknown fields.
func decodeBody(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// callerIdentity resolves the caller for owner-gated mutations. If the
// request carries an X-Signature header, the address recovered from the
// signature over the raw body wins; otherwise the body-declared identity is
// trusted as-is (the API-key middleware is the outer gate in that case).
func callerIdentity(r *http.Request, body []byte, declared string) (string, error) {
	sig := r.Header.Get(signatureHeader)
	if sig == "" {
		return normalizeAddr(declared), nil
	}
	recovered, err := crypto.RecoverAddress(body, sig)
	if err != nil {
		return "", err
	}
	return recovered.Hex(), nil
}

// normalizeAddr canonicalises hex wallet and asset identifiers to their
// EIP-55 checksummed form. Identifiers that are not hex addresses pass
// through unchanged.
func normalizeAddr(s string) string {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s).Hex()
	}
	return s
}

// statusFor maps domain errors onto HTTP status codes. Validation failures
// are 400, missing records 404, duplicates 409, ownership failures 403,
// rate limits 429, and settlement or gate rejections 422. Anything
// unrecognised is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrInvalidCapRange),
		errors.Is(err, domain.ErrZeroCap),
		errors.Is(err, domain.ErrInvalidTimeWindow),
		errors.Is(err, domain.ErrTimeInPast),
		errors.Is(err, domain.ErrZeroAmount):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSaleNotActive),
		errors.Is(err, domain.ErrHardCapReached),
		errors.Is(err, domain.ErrOverflow),
		errors.Is(err, domain.ErrInsufficientInventory),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientBalance),
		domain.IsPolicyViolation(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError maps err through statusFor and writes it as a JSON error.
// Internal errors are masked; everything else surfaces its message.
func writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
