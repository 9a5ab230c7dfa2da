package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/inkauth"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail carries the stable code and the client-safe message.
type ErrorDetail struct {
	Code      inkauth.Code `json:"code"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
}

// WriteError renders err as the JSON error envelope. Only the public
// message is written; wrapped detail never reaches the client.
func WriteError(w http.ResponseWriter, err error) {
	if inkauth.ErrorCode(err) == inkauth.CodeRateLimited {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(err)))
	}
	WriteJSON(w, inkauth.HTTPStatus(err), ErrorBody{
		Error: ErrorDetail{
			Code:      inkauth.ErrorCode(err),
			Message:   inkauth.PublicMessage(err),
			Timestamp: time.Now().UTC(),
		},
	})
}

// retryAfterSeconds rounds the limiter's wait up to whole seconds. Errors
// without a wait fall back to a minute.
func retryAfterSeconds(err error) int {
	d, ok := inkauth.RetryAfter(err)
	if !ok {
		return 60
	}
	return int((d + time.Second - 1) / time.Second)
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
