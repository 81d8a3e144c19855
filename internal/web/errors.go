package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged server-side with the request ID and returned to the
// client as a JSON body built from core.MapError, so the message a user sees
// always carries a support code.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/JonMunkholm/csvimport/internal/core"
	"github.com/JonMunkholm/csvimport/internal/files"
	"github.com/JonMunkholm/csvimport/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
// Error is the one-line form "Message (Code: XXX). Action".
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status of a service error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnknownOperation), errors.Is(err, core.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrRunNotStarted), errors.Is(err, core.ErrRunFinished):
		return http.StatusConflict
	case errors.Is(err, core.ErrBeforeImport):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrTooManyBatches):
		return http.StatusServiceUnavailable
	case errors.Is(err, files.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, files.ErrEmptyFile), errors.Is(err, core.ErrInvalidOffset):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its user-facing form. A statusCode of 0
// derives the status from the error.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if statusCode == 0 {
		statusCode = statusFor(err)
	}
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	logArgs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError || !core.IsUserFacing(err) {
		logger.Error("request error", logArgs...)
	} else {
		logger.Warn("request error", logArgs...)
	}

	writeJSONStatus(w, statusCode, ErrorResponse{
		Error:   core.FormatUserError(err),
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

var (
	pathPattern = regexp.MustCompile(`(/[\w.\-]+){2,}`)
	dsnPattern  = regexp.MustCompile(`\w+://[^\s]+`)
)

// sanitizeErrorMessage strips file paths and connection strings from
// messages that are echoed to clients.
func sanitizeErrorMessage(msg string) string {
	msg = dsnPattern.ReplaceAllString(msg, "[redacted]")
	return pathPattern.ReplaceAllString(msg, "[path]")
}

// writeError writes a plain JSON error for failures that have no service error.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSONStatus(w, status, map[string]string{"error": sanitizeErrorMessage(message)})
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent; nothing left to tell the client.
		slog.Error("json encode error", "error", err)
	}
}
