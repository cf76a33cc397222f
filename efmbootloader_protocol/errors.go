package efmbootloader_protocol

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrRetriesExhausted means an exchange ran out of its retry budget
	// before the device answered.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrBusy means SendCmd was called while another exchange was in flight.
	ErrBusy = errors.New("exchange in progress")
)

// ExchangeError wraps a failure of a single command exchange.
type ExchangeError struct {
	Cmd   Command
	State State
	Err   error
}

// Error implements error.
func (e *ExchangeError) Error() string {
	return fmt.Sprintf("command %s in state %s: %v", e.Cmd, e.State, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExchangeError) Unwrap() error { return e.Err }

// Cause is for github.com/pkg/errors.
func (e *ExchangeError) Cause() error { return e.Err }
