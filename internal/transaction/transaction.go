// Package transaction owns the canonical Transaction record and its
// lifecycle. All status changes go through Apply; nothing mutates a
// Transaction's status directly.
package transaction

import "time"

// Status is the canonical lifecycle state of a Transaction.
type Status string

const (
	StatusCreated       Status = "CREATED"
	StatusPendingAction Status = "PENDING_ACTION"
	StatusAuthorized    Status = "AUTHORIZED"
	StatusSettling      Status = "SETTLING"
	StatusPaid          Status = "PAID"
	StatusFailed        Status = "FAILED"
	StatusExpired       Status = "EXPIRED"
	StatusCancelled     Status = "CANCELLED"
)

// IsTerminal reports whether no further transitions are permitted.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPaid, StatusFailed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Event names a lifecycle transition trigger.
type Event string

const (
	EventProviderAccepted  Event = "ProviderAccepted"
	EventCaptureConfirmed  Event = "CaptureConfirmed"
	EventStatusAuthorized  Event = "StatusAuthorized"
	EventStatusPaid        Event = "StatusPaid"
	EventStatusFailed      Event = "StatusFailed"
	EventStatusExpired     Event = "StatusExpired"
	EventUserCancelled     Event = "UserCancelled"
)

// HistoryEntry records one applied event. History is append-only.
type HistoryEntry struct {
	Event Event     `json:"event"`
	From  Status    `json:"from"`
	To    Status    `json:"to"`
	At    time.Time `json:"at"`
}

// Transaction is the canonical payment record, uniquely keyed by
// ExternalReference. ProviderTransactionID, once set, never changes.
type Transaction struct {
	ID                    string            `json:"id"`
	ExternalReference     string            `json:"externalReference"`
	Provider              string            `json:"provider"`
	ProviderTransactionID string            `json:"providerTransactionId,omitempty"`
	AmountMinorUnits      int64             `json:"amountMinorUnits"`
	Currency              string            `json:"currency"`
	Status                Status            `json:"status"`
	Metadata              map[string]string `json:"metadata,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
	UpdatedAt             time.Time         `json:"updatedAt"`
	History               []HistoryEntry    `json:"history"`
}

// New creates a Transaction in the initial CREATED state.
func New(id, externalReference, provider string, amountMinorUnits int64, currency string, metadata map[string]string, now time.Time) *Transaction {
	return &Transaction{
		ID:                id,
		ExternalReference: externalReference,
		Provider:          provider,
		AmountMinorUnits:  amountMinorUnits,
		Currency:          currency,
		Status:            StatusCreated,
		Metadata:          metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
