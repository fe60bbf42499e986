package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/yourorg/payment-core/internal/audit"
	"github.com/yourorg/payment-core/internal/domain"
	"github.com/yourorg/payment-core/internal/store"
	"github.com/yourorg/payment-core/internal/transaction"
)

// Dispatcher verifies, deduplicates and applies webhook deliveries.
//
// A delivery may race the initiate call that records the provider
// transaction id. The dispatcher retries the lookup a bounded number of
// times before giving the event up as unknown.
type Dispatcher struct {
	verifiers map[domain.Provider]Verifier
	repo      *transaction.Repository
	kv        store.KV
	auditLog  *audit.Log

	retryAttempts int
	retryDelay    time.Duration
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(verifiers map[domain.Provider]Verifier, repo *transaction.Repository, kv store.KV, auditLog *audit.Log, retryAttempts int, retryDelay time.Duration) *Dispatcher {
	if repo == nil {
		panic("repository cannot be nil")
	}
	if kv == nil {
		panic("store cannot be nil")
	}
	if auditLog == nil {
		panic("audit log cannot be nil")
	}
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &Dispatcher{
		verifiers:     verifiers,
		repo:          repo,
		kv:            kv,
		auditLog:      auditLog,
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
	}
}

func dedupKey(provider domain.Provider, eventID string) string {
	return "whkevt:" + string(provider) + ":" + eventID
}

// Handle processes one raw delivery. A nil return means the event was
// accepted (processed, a duplicate, or ignored as post-terminal noise)
// and the provider should not redeliver it.
func (d *Dispatcher) Handle(ctx context.Context, provider domain.Provider, header http.Header, body []byte) error {
	verifier, ok := d.verifiers[provider]
	if !ok {
		return fmt.Errorf("webhook: no verifier for %s: %w", provider, domain.ErrSignatureInvalid)
	}
	if err := verifier.Verify(header, body); err != nil {
		d.auditLog.Record(audit.Entry{
			Kind:     audit.KindWebhookRejected,
			Provider: string(provider),
			Detail:   err.Error(),
		})
		return err
	}

	event, err := Parse(provider, header, body)
	if err != nil {
		return err
	}

	inserted, err := d.kv.ConditionalInsert(ctx, dedupKey(provider, event.EventID), []byte(event.ProviderTransactionID))
	if err != nil {
		return fmt.Errorf("webhook: dedup %s/%s: %w", provider, event.EventID, err)
	}
	if !inserted {
		d.auditLog.Record(audit.Entry{
			Kind:     audit.KindDuplicateEvent,
			Provider: string(provider),
			EventID:  event.EventID,
			Detail:   "redelivery ignored",
		})
		return nil
	}

	if err := d.apply(ctx, event); err != nil {
		// Free the dedup slot so the provider's redelivery can retry.
		if delErr := d.kv.Delete(ctx, dedupKey(provider, event.EventID)); delErr != nil {
			log.Printf("webhook: release dedup %s/%s: %v", provider, event.EventID, delErr)
		}
		return err
	}
	return nil
}

func (d *Dispatcher) apply(ctx context.Context, event domain.WebhookEvent) error {
	tx, err := d.findTransaction(ctx, event)
	if err != nil {
		d.auditLog.Record(audit.Entry{
			Kind:     audit.KindUnknownReference,
			Provider: string(event.Provider),
			EventID:  event.EventID,
			Detail:   fmt.Sprintf("no transaction for provider ref %s", event.ProviderTransactionID),
		})
		return err
	}

	machineEvent, ok := eventForStatus(event.ReportedStatus)
	if !ok {
		// Interim statuses carry no transition.
		return nil
	}

	// Mutate holds the per-transaction lock, so a concurrent event for
	// the same transaction cannot overwrite this update.
	tx, changed, err := d.repo.Mutate(ctx, tx.ID, func(tx *transaction.Transaction) (bool, error) {
		return transaction.Apply(tx, transaction.Change{
			Event:                 machineEvent,
			ProviderTransactionID: event.ProviderTransactionID,
			AmountMinorUnits:      event.AmountMinorUnits,
		})
	})
	var inconsistent *domain.InconsistentError
	if errors.As(err, &inconsistent) {
		d.auditLog.Record(audit.Entry{
			Kind:          audit.KindInconsistent,
			Provider:      string(event.Provider),
			TransactionID: tx.ID,
			EventID:       event.EventID,
			Detail:        inconsistent.Error(),
		})
		return err
	}
	if err != nil {
		return err
	}
	if !changed {
		d.auditLog.Record(audit.Entry{
			Kind:          audit.KindTerminalIgnored,
			Provider:      string(event.Provider),
			TransactionID: tx.ID,
			EventID:       event.EventID,
			Detail:        fmt.Sprintf("event for terminal state %s ignored", tx.Status),
		})
		return nil
	}

	log.Printf("webhook: %s event %s moved transaction %s to %s", event.Provider, event.EventID, tx.ID, tx.Status)
	return nil
}

func (d *Dispatcher) findTransaction(ctx context.Context, event domain.WebhookEvent) (*transaction.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < d.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d.retryDelay):
			}
		}
		tx, err := d.repo.FindByProviderTransactionID(ctx, string(event.Provider), event.ProviderTransactionID)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, domain.ErrUnknownTransaction) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func eventForStatus(s domain.ReportedStatus) (transaction.Event, bool) {
	switch s {
	case domain.ReportedPaid:
		return transaction.EventStatusPaid, true
	case domain.ReportedAuthorized:
		return transaction.EventStatusAuthorized, true
	case domain.ReportedFailed:
		return transaction.EventStatusFailed, true
	case domain.ReportedExpired:
		return transaction.EventStatusExpired, true
	}
	return "", false
}
