// Package httputil writes JSON responses and coded errors for handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "reconcile/pkg/domain-errors"
)

// maxBodyBytes bounds request bodies read by DecodeAndPrepare.
const maxBodyBytes = 1 << 20

// Validatable is implemented by request bodies that normalize and check themselves.
type Validatable interface {
	Validate() error
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status and a JSON envelope. Server-side failures
// carry only their code; client errors also carry their description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	description := ""
	if de, ok := dErrors.As(err); ok {
		code = de.Code
		description = de.Message
	}

	body := map[string]string{"error": string(code)}
	if code.IsClientError() && description != "" {
		body["error_description"] = description
	}
	WriteJSON(w, StatusFor(code), body)
}

// StatusFor maps a domain error code to an HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DecodeAndPrepare decodes a JSON body into T and validates it. On failure it
// writes a 400 and returns false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		if !errors.Is(err, io.EOF) {
			logger.WarnContext(ctx, "invalid request body",
				"request_id", requestID,
				"error", err,
			)
			WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return nil, false
		}
	}
	if err := PT(&req).Validate(); err != nil {
		logger.WarnContext(ctx, "request validation failed",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, err)
		return nil, false
	}
	return &req, true
}
