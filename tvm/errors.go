package tvm

import (
	"fmt"
	"strings"

	"github.com/ruteri/blobstore-resolver/interfaces"
)

// ExchangeError describes why the token vending machine did not yield an access key pair.
// It always matches interfaces.ErrExchange with errors.Is.
type ExchangeError struct {
	Username   string
	StatusCode int
	Attempts   int
	Message    string
	Cause      error
}

func (e *ExchangeError) Error() string {
	if e == nil {
		return interfaces.ErrExchange.Error()
	}
	base := interfaces.ErrExchange.Error()
	if strings.TrimSpace(e.Username) != "" {
		base += " for tvm user " + e.Username
	}
	if strings.TrimSpace(e.Message) != "" {
		base += ": " + strings.TrimSpace(e.Message)
	}
	if e.StatusCode > 0 {
		base += fmt.Sprintf(" (status=%d)", e.StatusCode)
	}
	if e.Attempts > 0 {
		base += fmt.Sprintf(" (attempts=%d)", e.Attempts)
	}
	if e.Cause != nil {
		base += ": " + e.Cause.Error()
	}
	return base
}

func (e *ExchangeError) Is(target error) bool {
	return target == interfaces.ErrExchange
}

func (e *ExchangeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// statusError marks a non-2xx response; it is retried.
type statusError struct {
	StatusCode int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("token vending machine returned HTTP %d", e.StatusCode)
}
