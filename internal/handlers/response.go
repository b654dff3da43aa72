package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"notebook-rag/internal/apperrors"
	"notebook-rag/internal/contextutil"
	"notebook-rag/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, code apperrors.Code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Code:  string(code),
	})
}

// decodeJSON decodes the request body into v and writes a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		contextutil.LoggerFromContext(r.Context()).WarnContext(r.Context(), "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, apperrors.CodeInvalidInput, "Invalid request body")
		return false
	}
	return true
}

// handleServiceError maps service errors to HTTP status codes. Only
// validation and lookup failures echo a message; everything else returns a
// fixed text per kind.
func handleServiceError(ctx context.Context, w http.ResponseWriter, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)

	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		logger.WarnContext(ctx, "validation failed", "error", err)
		writeError(w, http.StatusBadRequest, apperrors.CodeInvalidInput, fmt.Sprintf("Validation error: %s", validationErr.Error()))
		return
	}

	code := apperrors.CodeOf(err)
	switch code {
	case apperrors.CodeInvalidInput:
		logger.WarnContext(ctx, "invalid input", "error", err)
		writeError(w, http.StatusBadRequest, code, "Invalid input")
	case apperrors.CodeNotFound:
		logger.WarnContext(ctx, "resource not found", "error", err)
		var coded *apperrors.Error
		errors.As(err, &coded)
		writeError(w, http.StatusNotFound, code, coded.Message)
	case apperrors.CodeUnsupportedFormat:
		logger.WarnContext(ctx, "unsupported format", "error", err)
		writeError(w, http.StatusUnsupportedMediaType, code, err.Error())
	case apperrors.CodeEmbedding, apperrors.CodeLanguageModel:
		logger.ErrorContext(ctx, "external service error", "error", err)
		writeError(w, http.StatusBadGateway, code, "External service error")
	case apperrors.CodeIndexSearch, apperrors.CodeIndexWrite:
		logger.ErrorContext(ctx, "vector index error", "error", err)
		writeError(w, http.StatusServiceUnavailable, code, "Vector index unavailable")
	default:
		logger.ErrorContext(ctx, "service error", "error", err)
		writeError(w, http.StatusInternalServerError, code, defaultMsg)
	}
}
