package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/files"
	"github.com/ebogdum/vizgate/internal/pathutil"
)

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// SendErrorResponse writes an ErrorResponse with the given status
func SendErrorResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Status: statusCode, Message: message}); err != nil {
		logger.Error("Failed to encode error response", zap.Error(err))
		return
	}

	logger.Debug("Error response sent",
		zap.Int("status_code", statusCode),
		zap.String("message", message))
}

// SendError maps a file helper error to a status and writes it
func SendError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, files.ErrNotFound):
		SendErrorResponse(w, logger, http.StatusNotFound, "file not found")
	case errors.Is(err, pathutil.ErrOutsideBase), errors.Is(err, pathutil.ErrInvalidPath):
		SendErrorResponse(w, logger, http.StatusBadRequest, "invalid path")
	default:
		logger.Error("Request failed", zap.Error(err))
		SendErrorResponse(w, logger, http.StatusInternalServerError, "internal error")
	}
}

// SendJSONResponse writes data as JSON with the given status
func SendJSONResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
		fmt.Fprint(w, `{"status":500,"message":"internal error"}`)
	}
}
