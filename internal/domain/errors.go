package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the orchestration core. Callers test them with
// errors.Is; the structured variants below carry provider detail and are
// unwrapped with errors.As.
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrRateUnavailable     = errors.New("exchange rate unavailable")
	ErrValidationFailed    = errors.New("validation failed")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrInvalidSequence     = errors.New("invalid operation sequence")
	ErrIllegalTransition   = errors.New("illegal state transition")
	ErrSignatureInvalid    = errors.New("webhook signature invalid")
	ErrUnknownTransaction  = errors.New("unknown transaction")
	ErrAlreadyExists       = errors.New("external reference already exists")
)

// ProviderRejectedError reflects a non-success decision by the external
// system. It is never retried.
type ProviderRejectedError struct {
	Provider Provider
	Code     string
	Message  string
}

func (e *ProviderRejectedError) Error() string {
	return fmt.Sprintf("%s rejected payment (%s): %s", e.Provider, e.Code, e.Message)
}

// InconsistentError is a data-integrity report: a duplicate PAID event
// whose amount or provider transaction id does not match the stored
// transaction. It is recorded for operator review, never surfaced to the
// webhook sender.
type InconsistentError struct {
	TransactionID string
	Field         string
	Stored        string
	Reported      string
}

func (e *InconsistentError) Error() string {
	return fmt.Sprintf("inconsistent %s for transaction %s: stored %q, reported %q",
		e.Field, e.TransactionID, e.Stored, e.Reported)
}
