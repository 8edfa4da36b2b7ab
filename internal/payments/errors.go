package payments

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrMalformedEvent    = errors.New("malformed event")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrAlreadyExists     = errors.New("already exists")
)

// GatewayError covers every way a provider call can fail short of an answer:
// transport errors, timeouts, non-2xx replies and unparseable bodies. A
// business decline is never a GatewayError.
type GatewayError struct {
	Op         string
	StatusCode int
	Timeout    bool
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Timeout:
		return fmt.Sprintf("gateway %s: timeout: %s", e.Op, msg)
	case e.StatusCode != 0:
		return fmt.Sprintf("gateway %s: status %d: %s", e.Op, e.StatusCode, msg)
	default:
		return fmt.Sprintf("gateway %s: %s", e.Op, msg)
	}
}

func (e *GatewayError) Unwrap() error { return e.Err }

func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
