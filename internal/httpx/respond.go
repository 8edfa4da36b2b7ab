package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
)

type errorBody struct {
	Message     string                `json:"message"`
	Transaction *payments.Transaction `json:"transaction,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, payments.ErrInvalidRequest),
		errors.Is(err, payments.ErrMalformedEvent),
		errors.Is(err, payments.ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, payments.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, payments.ErrInsufficientStock),
		errors.Is(err, payments.ErrAlreadyExists):
		return http.StatusConflict
	case payments.IsGatewayError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Internal failures never leak their message.
func writeError(w http.ResponseWriter, err error, tx *payments.Transaction) {
	code := statusFor(err)
	msg := err.Error()
	switch code {
	case http.StatusInternalServerError:
		msg = "internal error"
	case http.StatusBadGateway:
		msg = "payment provider unavailable"
	}
	writeJSON(w, code, errorBody{Message: msg, Transaction: tx})
}
