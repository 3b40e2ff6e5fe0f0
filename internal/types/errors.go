package types

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailure is returned when the broker rejects the login. It is fatal for a session.
	ErrAuthFailure = errors.New("authentication failed")
	// ErrNetwork covers transport failures and malformed or empty responses. The cycle is skipped.
	ErrNetwork = errors.New("network failure")
	// ErrInsufficientData is returned when the window is shorter than the indicator length.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrOrderRejected is returned when the broker refuses an order.
	ErrOrderRejected = errors.New("order rejected")
)

// OrderRejectedError carries the broker's rejection code and message.
type OrderRejectedError struct {
	Code    string
	Message string
}

func (e *OrderRejectedError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("order rejected: %s", e.Message)
	}
	return fmt.Sprintf("order rejected [%s]: %s", e.Code, e.Message)
}

func (e *OrderRejectedError) Unwrap() error { return ErrOrderRejected }
