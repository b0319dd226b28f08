package common

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel kinds carried by ScreenQueryError, matched with errors.Is.
var (
	ErrScreenNotFound   = errors.New("screen not found")
	ErrStockNotFound    = errors.New("stock not found")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// TransientFetchError is a retryable source failure: timeout, rate-limit rejection,
// network error or a 5xx response.
type TransientFetchError struct {
	Source string
	Symbol string
	Err    error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("%s: transient fetch error for %s: %v", e.Source, e.Symbol, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// PermanentFetchError means the symbol is skipped for this run: retries exhausted or
// the source reports the symbol as unknown.
type PermanentFetchError struct {
	Source   string
	Symbol   string
	Attempts int
	Err      error
}

func (e *PermanentFetchError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("%s: permanent fetch error for %s after %d attempts: %v", e.Source, e.Symbol, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: permanent fetch error for %s: %v", e.Source, e.Symbol, e.Err)
}

func (e *PermanentFetchError) Unwrap() error { return e.Err }

// DataIntegrityError reports a write or reconciliation outcome that left stored rows
// in their prior state. It is logged and surfaced in run diagnostics, never fatal.
type DataIntegrityError struct {
	Symbol string
	Date   time.Time
	Reason string
	Err    error
}

func (e *DataIntegrityError) Error() string {
	msg := fmt.Sprintf("data integrity: %s: %s", e.Symbol, e.Reason)
	if !e.Date.IsZero() {
		msg = fmt.Sprintf("data integrity: %s@%s: %s", e.Symbol, e.Date.Format(DateLayout), e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataIntegrityError) Unwrap() error { return e.Err }

// ScreenQueryError is a client-visible query error: unknown screen or bad sort/filter input.
type ScreenQueryError struct {
	Kind    error // ErrScreenNotFound, ErrStockNotFound or ErrInvalidParameter
	Message string
}

func (e *ScreenQueryError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *ScreenQueryError) Unwrap() error { return e.Kind }

// NewScreenNotFound builds the lookup error for an unknown screen id.
func NewScreenNotFound(id string) *ScreenQueryError {
	return &ScreenQueryError{Kind: ErrScreenNotFound, Message: fmt.Sprintf("no screen with id %q", id)}
}

// NewStockNotFound builds the lookup error for a symbol with no stored history.
func NewStockNotFound(symbol string) *ScreenQueryError {
	return &ScreenQueryError{Kind: ErrStockNotFound, Message: fmt.Sprintf("no data for symbol %q", symbol)}
}

// NewInvalidParameter builds the error for a rejected query parameter.
func NewInvalidParameter(format string, args ...any) *ScreenQueryError {
	return &ScreenQueryError{Kind: ErrInvalidParameter, Message: fmt.Sprintf(format, args...)}
}

// IsTransient reports whether err should be retried. Context deadlines count as transient;
// cancellation of the caller's context does not.
func IsTransient(err error) bool {
	var te *TransientFetchError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsPermanent reports whether err is a PermanentFetchError.
func IsPermanent(err error) bool {
	var pe *PermanentFetchError
	return errors.As(err, &pe)
}
