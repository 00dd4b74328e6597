package paymentgateway

import (
	"errors"
	"fmt"
)

// Error is the only error shape the client returns for failed calls.
// Transport failures carry 503.
type Error struct {
	StatusCode int
	Message    string
	Provider   string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Provider, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a gateway *Error from err.
func AsError(err error) (*Error, bool) {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr, true
	}
	return nil, false
}
