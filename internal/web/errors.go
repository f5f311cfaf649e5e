package web

// errors.go provides unified error responses for the API.
//
// Technical errors are logged with the request ID. Clients get the mapped
// user message from core.MapError as JSON, or plain text for page routes.
// Import results are not errors: they are written with writeJSONStatus, the
// status code picked by resultStatus from the result's error kind.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/ledgerimport/internal/core"
	"github.com/JonMunkholm/ledgerimport/internal/logging"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errNoFile      = errors.New("no file provided")
	errFileTooBig  = errors.New("file too large")
)

// ErrorResponse is the JSON body of an API error.
type ErrorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user-facing message.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if !wantsJSON(r) {
		http.Error(w, userMsg.Message+" ("+userMsg.Code+")", statusCode)
		return
	}

	writeJSONStatus(w, statusCode, ErrorResponse{
		Status:  core.StatusError,
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusForKind maps an import failure to an HTTP status.
func statusForKind(kind core.ErrorKind) int {
	switch kind {
	case core.KindJobNotFound, core.KindSessionNotFound:
		return http.StatusNotFound
	case core.KindInvalidState, core.KindDuplicateFile, core.KindDuplicateReceipts:
		return http.StatusConflict
	case core.KindUnsupportedFile:
		return http.StatusUnsupportedMediaType
	case core.KindSourceFileMissing:
		return http.StatusGone
	case core.KindCommitFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// resultStatus picks the HTTP status for an operation result.
func resultStatus(status string, ie *core.ImportError) int {
	switch {
	case status == core.StatusSuccess:
		return http.StatusOK
	case ie != nil:
		return statusForKind(ie.Kind)
	default:
		return http.StatusInternalServerError
	}
}

// wantsJSON reports whether the client should get a JSON error body.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// writeJSON encodes v with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON. Encoding errors are logged since the
// header is already sent.
func writeJSONStatus(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
