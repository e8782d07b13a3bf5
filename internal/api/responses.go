// Package api provides HTTP handlers and routing for the STAC catalog
// service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rkm/stac-catalog/internal/assets"
	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/search"
	"github.com/rkm/stac-catalog/internal/stac"
)

// STACError represents a STAC-compliant error response.
type STACError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	RequestID   string `json:"request_id,omitempty"`
}

// Standard STAC error codes.
const (
	ErrCodeNotFound           = "NotFound"
	ErrCodeInvalidParameter   = "InvalidParameterValue"
	ErrCodeInvalidCoordinates = "InvalidCoordinates"
	ErrCodeUnauthorized       = "Unauthorized"
	ErrCodeForbidden          = "Forbidden"
	ErrCodeRateLimited        = "RateLimitExceeded"
	ErrCodeTimeout            = "Timeout"
	ErrCodeServerError        = "ServerError"
	ErrCodeMethodNotAllowed   = "MethodNotAllowed"
)

// WriteJSON writes a JSON response with the given status code and value.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	return writeEncoded(w, status, stac.MediaTypeJSON, v)
}

// WriteGeoJSON writes a response with the application/geo+json media type.
func WriteGeoJSON(w http.ResponseWriter, status int, v any) error {
	return writeEncoded(w, status, stac.MediaTypeGeoJSON, v)
}

func writeEncoded(w http.ResponseWriter, status int, mediaType string, v any) error {
	w.Header().Set("Content-Type", mediaType)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response",
			slog.String("content_type", mediaType),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// WriteError writes a STAC-compliant error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeErrorBody(w, status, STACError{Code: code, Description: message})
}

func writeErrorBody(w http.ResponseWriter, status int, body STACError) {
	w.Header().Set("Content-Type", stac.MediaTypeJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode error response",
			slog.String("error", err.Error()),
		)
	}
}

// WriteNotFound writes a 404 Not Found error response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// WriteInvalidParameter writes a 400 Bad Request error for invalid parameters.
func WriteInvalidParameter(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, ErrCodeInvalidParameter, message)
}

// WriteUnauthorized writes a 401 response asking for a bearer token.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="stac"`)
	WriteError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// WriteInternalErrorWithRequestID writes a 500 response that carries the
// request id, so the failure can be found in the logs.
func WriteInternalErrorWithRequestID(w http.ResponseWriter, message, requestID string) {
	writeErrorBody(w, http.StatusInternalServerError, STACError{
		Code:        ErrCodeServerError,
		Description: message,
		RequestID:   requestID,
	})
}

// writeServiceError maps an error returned by the search, store or asset
// layers to its HTTP response.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var ve *search.ValidationError
	switch {
	case errors.As(err, &ve):
		if ve.Malformed {
			WriteError(w, http.StatusUnprocessableEntity, ErrCodeInvalidCoordinates, ve.Error())
			return
		}
		WriteInvalidParameter(w, ve.Error())
	case errors.Is(err, catalog.ErrItemNotFound):
		WriteNotFound(w, "item not found")
	case errors.Is(err, catalog.ErrCollectionNotFound):
		WriteNotFound(w, "collection not found")
	case errors.Is(err, assets.ErrNotFound):
		WriteNotFound(w, "asset not found")
	case errors.Is(err, assets.ErrAccessDenied):
		WriteError(w, http.StatusForbidden, ErrCodeForbidden, "access to asset denied")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request deadline exceeded",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("path", r.URL.Path),
		)
		WriteError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "request timed out")
	default:
		reqID := GetRequestID(r.Context())
		logger.Error("request failed",
			slog.String("request_id", reqID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteInternalErrorWithRequestID(w, "internal server error", reqID)
	}
}
