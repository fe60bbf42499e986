// Package ledger guarantees at most one live orchestration attempt per
// external reference. Reservations are a single conditional insert
// against the backing store, never a read-then-write.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/yourorg/payment-core/internal/domain"
	"github.com/yourorg/payment-core/internal/store"
)

func refKey(externalReference string) string { return "payref:" + externalReference }

type entry struct {
	TransactionID string `json:"transactionId"`
	Committed     bool   `json:"committed"`
}

// Ledger maps external references to orchestration attempts.
type Ledger struct {
	kv store.KV
}

// NewLedger creates a Ledger over the given store.
func NewLedger(kv store.KV) *Ledger {
	if kv == nil {
		panic("store cannot be nil")
	}
	return &Ledger{kv: kv}
}

// Lease is a reservation for one external reference. Exactly one of
// Commit or Rollback must be called once the attempt resolves; Release is
// safe to defer and is a no-op after either.
type Lease struct {
	ledger            *Ledger
	externalReference string
	transactionID     string
	released          bool
}

// TransactionID returns the transaction the lease was reserved for.
func (l *Lease) TransactionID() string { return l.transactionID }

// Commit marks the reservation permanent. The external reference stays
// bound to its transaction forever after.
func (l *Lease) Commit(ctx context.Context) error {
	if l.released {
		return nil
	}
	l.released = true
	raw, err := json.Marshal(entry{TransactionID: l.transactionID, Committed: true})
	if err != nil {
		return fmt.Errorf("ledger: marshal commit for %s: %w", l.externalReference, err)
	}
	if err := l.ledger.kv.Put(ctx, refKey(l.externalReference), raw); err != nil {
		return fmt.Errorf("ledger: commit %s: %w", l.externalReference, err)
	}
	return nil
}

// Rollback frees the reference so a later attempt can reserve it again.
func (l *Lease) Rollback(ctx context.Context) error {
	if l.released {
		return nil
	}
	l.released = true
	if err := l.ledger.kv.Delete(ctx, refKey(l.externalReference)); err != nil {
		return fmt.Errorf("ledger: rollback %s: %w", l.externalReference, err)
	}
	return nil
}

// Release rolls the lease back if it was neither committed nor rolled
// back. Deferred by the orchestrator so a cancelled initiate call never
// leaves a permanently stuck reference.
func (l *Lease) Release() {
	if l.released {
		return
	}
	// Detached context: the request context may already be cancelled.
	if err := l.Rollback(context.Background()); err != nil {
		log.Printf("ledger: release rollback failed for %s: %v", l.externalReference, err)
	}
}

// Reserve binds externalReference to transactionID. When the reference is
// already reserved or committed, it returns the existing transaction id
// wrapped in domain.ErrAlreadyExists so the caller can return the
// existing Transaction instead of starting a second provider call.
func (l *Ledger) Reserve(ctx context.Context, externalReference, transactionID string) (*Lease, error) {
	raw, err := json.Marshal(entry{TransactionID: transactionID})
	if err != nil {
		return nil, fmt.Errorf("ledger: marshal reservation for %s: %w", externalReference, err)
	}
	inserted, err := l.kv.ConditionalInsert(ctx, refKey(externalReference), raw)
	if err != nil {
		return nil, fmt.Errorf("ledger: reserve %s: %w", externalReference, err)
	}
	if inserted {
		return &Lease{ledger: l, externalReference: externalReference, transactionID: transactionID}, nil
	}
	existing, err := l.Lookup(ctx, externalReference)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("ledger: reference %s held by transaction %s: %w",
		externalReference, existing, domain.ErrAlreadyExists)
}

// Lookup resolves an external reference to its transaction id.
func (l *Ledger) Lookup(ctx context.Context, externalReference string) (string, error) {
	raw, err := l.kv.Get(ctx, refKey(externalReference))
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("ledger: reference %s: %w", externalReference, domain.ErrUnknownTransaction)
	}
	if err != nil {
		return "", fmt.Errorf("ledger: lookup %s: %w", externalReference, err)
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return "", fmt.Errorf("ledger: unmarshal %s: %w", externalReference, err)
	}
	return e.TransactionID, nil
}
