package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"jobform/internal/service"
	"jobform/internal/storage"

	"go.uber.org/zap"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// WriteError writes a standardized error response
func WriteError(w http.ResponseWriter, code int, errCode, message string, log *zap.Logger) {
	writeErrorResponse(w, code, ErrorResponse{Error: errCode, Code: errCode, Message: message}, log)
}

func writeErrorResponse(w http.ResponseWriter, code int, resp ErrorResponse, log *zap.Logger) {
	if code >= http.StatusInternalServerError {
		log.Error("API error", zap.String("code", resp.Code), zap.String("message", resp.Message))
	} else {
		log.Debug("API error", zap.String("code", resp.Code), zap.String("message", resp.Message))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

// writeServiceError maps service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error, log *zap.Logger) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		writeErrorResponse(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Code:    "validation_failed",
			Message: ve.Error(),
			Fields:  ve.Questions,
		}, log)
	case errors.Is(err, service.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", err.Error(), log)
	case errors.Is(err, service.ErrAlreadySubmitted):
		WriteError(w, http.StatusConflict, "already_submitted", err.Error(), log)
	case errors.Is(err, storage.ErrFileTooLarge):
		WriteError(w, http.StatusRequestEntityTooLarge, "file_too_large", err.Error(), log)
	case errors.Is(err, service.ErrPolicy):
		WriteError(w, http.StatusUnsupportedMediaType, "policy_violation", err.Error(), log)
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), log)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// RequestLogger logs HTTP requests and responses
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			log.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("request_id", r.Header.Get("X-Request-Id")),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
