package transaction

import (
	"fmt"
	"time"

	"github.com/yourorg/payment-core/internal/domain"
)

// Change describes an event to fold into a Transaction. The provider
// transaction id is recorded on first acceptance and verified on
// duplicate PAID deliveries; AmountMinorUnits is only consulted for that
// verification.
type Change struct {
	Event                 Event
	RequiresAction        bool // for ProviderAccepted: buyer action still needed
	ProviderTransactionID string
	AmountMinorUnits      int64
	At                    time.Time
}

// Apply validates and applies a Change. It returns true when the
// transaction state changed.
//
// Events arriving for a terminal transaction are ignored (false, nil),
// except a duplicate PAID whose amount or provider transaction id does
// not match the stored record: that returns *domain.InconsistentError so
// the caller can escalate it as a data-integrity report.
func Apply(tx *Transaction, ch Change) (bool, error) {
	if ch.At.IsZero() {
		ch.At = time.Now().UTC()
	}

	if tx.Status.IsTerminal() {
		if ch.Event == EventStatusPaid && tx.Status == StatusPaid {
			if err := verifyDuplicatePaid(tx, ch); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	to, ok := target(tx.Status, ch)
	if !ok {
		return false, fmt.Errorf("transaction: event %s not allowed in state %s: %w",
			ch.Event, tx.Status, domain.ErrIllegalTransition)
	}

	if tx.ProviderTransactionID == "" && ch.ProviderTransactionID != "" {
		tx.ProviderTransactionID = ch.ProviderTransactionID
	}

	tx.History = append(tx.History, HistoryEntry{Event: ch.Event, From: tx.Status, To: to, At: ch.At})
	tx.Status = to
	tx.UpdatedAt = ch.At
	return true, nil
}

func target(from Status, ch Change) (Status, bool) {
	switch ch.Event {
	case EventProviderAccepted:
		if from != StatusCreated {
			return "", false
		}
		if ch.RequiresAction {
			return StatusPendingAction, true
		}
		return StatusSettling, true
	case EventCaptureConfirmed:
		if from == StatusPendingAction || from == StatusAuthorized {
			return StatusSettling, true
		}
	case EventStatusAuthorized:
		if from == StatusPendingAction {
			return StatusAuthorized, true
		}
	case EventStatusPaid:
		if from == StatusSettling || from == StatusPendingAction {
			return StatusPaid, true
		}
	case EventStatusFailed:
		// Any non-terminal state may fail; terminal states were already
		// filtered out by the caller.
		return StatusFailed, true
	case EventStatusExpired:
		if from == StatusPendingAction || from == StatusSettling {
			return StatusExpired, true
		}
	case EventUserCancelled:
		if from == StatusPendingAction {
			return StatusCancelled, true
		}
	}
	return "", false
}

func verifyDuplicatePaid(tx *Transaction, ch Change) error {
	if ch.ProviderTransactionID != "" && ch.ProviderTransactionID != tx.ProviderTransactionID {
		return &domain.InconsistentError{
			TransactionID: tx.ID,
			Field:         "providerTransactionId",
			Stored:        tx.ProviderTransactionID,
			Reported:      ch.ProviderTransactionID,
		}
	}
	if ch.AmountMinorUnits != 0 && ch.AmountMinorUnits != tx.AmountMinorUnits {
		return &domain.InconsistentError{
			TransactionID: tx.ID,
			Field:         "amount",
			Stored:        fmt.Sprintf("%d", tx.AmountMinorUnits),
			Reported:      fmt.Sprintf("%d", ch.AmountMinorUnits),
		}
	}
	return nil
}
