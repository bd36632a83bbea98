package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ruteri/redact-client/interfaces"
)

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	msgBadRequest      = "BAD REQUEST"
	msgUnauthorized    = "UNAUTHORIZED"
	msgForbidden       = "FORBIDDEN"
	msgTooLarge        = "REQUEST ENTITY TOO LARGE"
	msgResolution      = "DATA RESOLUTION FAILED"
	msgInternal        = "INTERNAL SERVER ERROR"
	msgBadGateway      = "BAD GATEWAY"
	msgUnavailable     = "SERVICE UNAVAILABLE"
	msgTypeMismatchPfx = "TYPE MISMATCH: STORED "
)

// statusFor maps an error to its status, public message and log level. The
// message never carries details of the stored data beyond a type name.
func statusFor(err error) (int, string, slog.Level) {
	var reqErr *RequestError
	var mismatch *interfaces.TypeMismatchError
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &reqErr):
		return reqErr.StatusCode, messageFor(reqErr.StatusCode), slog.LevelInfo
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, msgTooLarge, slog.LevelInfo
	case errors.Is(err, interfaces.ErrDenied):
		return http.StatusUnauthorized, msgUnauthorized, slog.LevelInfo
	case errors.As(err, &mismatch):
		return http.StatusConflict, msgTypeMismatchPfx + strings.ToUpper(string(mismatch.Stored)), slog.LevelInfo
	case errors.Is(err, interfaces.ErrCycleDetected), errors.Is(err, interfaces.ErrChainTooDeep):
		return http.StatusInternalServerError, msgResolution, slog.LevelWarn
	case errors.Is(err, interfaces.ErrInvalidPath),
		errors.Is(err, interfaces.ErrInvalidValue),
		errors.Is(err, interfaces.ErrInvalidDataType),
		errors.Is(err, interfaces.ErrUnsupportedMedia):
		return http.StatusBadRequest, msgBadRequest, slog.LevelInfo
	case errors.Is(err, interfaces.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, msgUnavailable, slog.LevelError
	default:
		return http.StatusInternalServerError, msgInternal, slog.LevelError
	}
}

func messageFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return msgBadRequest
	case http.StatusUnauthorized:
		return msgUnauthorized
	case http.StatusForbidden:
		return msgForbidden
	case http.StatusBadGateway:
		return msgBadGateway
	case http.StatusServiceUnavailable:
		return msgUnavailable
	default:
		return strings.ToUpper(http.StatusText(status))
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Code: status, Message: message})
}

// fail logs err and writes its JSON error reply.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, route string, err error) {
	status, message, level := statusFor(err)
	h.log.Log(r.Context(), level, "Request failed",
		slog.String("route", route),
		slog.Int("status", status),
		slog.Any("err", err))
	writeJSONError(w, status, message)
}
