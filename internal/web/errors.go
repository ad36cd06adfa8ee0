package web

// errors.go maps store and decoding errors onto catalog API responses.
//
// Every error body has the shape {"error":{"code":<status>,"message":<text>}}.
// Client errors echo the cause; server errors are logged with the request id
// and answered with a generic message.

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/cmingest/internal/logging"
	"github.com/JonMunkholm/cmingest/internal/store"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the HTTP status and a message.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest), errors.Is(err, store.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the matching error response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := logging.FromContext(r.Context()).With(
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err,
	)

	message := err.Error()
	if status >= 500 {
		log.Error("request error")
		message = "internal server error"
	} else {
		log.Debug("request rejected")
	}
	writeError(w, status, message)
}

// writeError writes the JSON error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: status, Message: message}})
}
