package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/yourorg/payment-core/internal/domain"
	"github.com/yourorg/payment-core/internal/store"
)

// Repository persists Transactions through the store.KV contract. It
// maintains a secondary index from (provider, providerTransactionId) to
// the transaction id so webhook events can be correlated.
type Repository struct {
	kv store.KV

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRepository creates a Repository over the given store.
func NewRepository(kv store.KV) *Repository {
	if kv == nil {
		panic("store cannot be nil")
	}
	return &Repository{kv: kv, locks: make(map[string]*sync.Mutex)}
}

func txnKey(id string) string { return "txn:" + id }

func providerIndexKey(provider, providerTxnID string) string {
	return "txnpid:" + provider + ":" + providerTxnID
}

// Save writes the transaction record. When the provider transaction id is
// set, the provider index entry is written alongside it.
func (r *Repository) Save(ctx context.Context, tx *Transaction) error {
	raw, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("transaction: marshal %s: %w", tx.ID, err)
	}
	if err := r.kv.Put(ctx, txnKey(tx.ID), raw); err != nil {
		return fmt.Errorf("transaction: save %s: %w", tx.ID, err)
	}
	if tx.ProviderTransactionID != "" {
		key := providerIndexKey(tx.Provider, tx.ProviderTransactionID)
		if err := r.kv.Put(ctx, key, []byte(tx.ID)); err != nil {
			return fmt.Errorf("transaction: index %s: %w", tx.ID, err)
		}
	}
	return nil
}

// Mutate loads the transaction, applies fn and, when fn reports a
// change, saves the result. The whole read-modify-write runs under a
// per-transaction lock, so concurrent updates to the same transaction
// cannot lose history entries. The loaded transaction is returned even
// when fn fails, so callers can report its state.
func (r *Repository) Mutate(ctx context.Context, id string, fn func(*Transaction) (bool, error)) (*Transaction, bool, error) {
	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()

	tx, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	changed, err := fn(tx)
	if err != nil {
		return tx, false, err
	}
	if !changed {
		return tx, false, nil
	}
	if err := r.Save(ctx, tx); err != nil {
		return nil, false, err
	}
	return tx, true, nil
}

func (r *Repository) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

// FindByID loads a transaction by its system-assigned id.
func (r *Repository) FindByID(ctx context.Context, id string) (*Transaction, error) {
	raw, err := r.kv.Get(ctx, txnKey(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("transaction: id %s: %w", id, domain.ErrUnknownTransaction)
	}
	if err != nil {
		return nil, fmt.Errorf("transaction: load %s: %w", id, err)
	}
	var tx Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("transaction: unmarshal %s: %w", id, err)
	}
	return &tx, nil
}

// FindByProviderTransactionID resolves the provider index and loads the
// transaction.
func (r *Repository) FindByProviderTransactionID(ctx context.Context, provider, providerTxnID string) (*Transaction, error) {
	raw, err := r.kv.Get(ctx, providerIndexKey(provider, providerTxnID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("transaction: provider ref %s/%s: %w", provider, providerTxnID, domain.ErrUnknownTransaction)
	}
	if err != nil {
		return nil, fmt.Errorf("transaction: provider index %s/%s: %w", provider, providerTxnID, err)
	}
	return r.FindByID(ctx, string(raw))
}
