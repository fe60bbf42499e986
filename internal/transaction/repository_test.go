package transaction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-core/internal/domain"
	"github.com/yourorg/payment-core/internal/store"
)

func TestRepository_SaveAndFindByID(t *testing.T) {
	repo := NewRepository(store.NewMemoryStore())
	ctx := context.Background()

	tx := New("tx-1", "ord-1", "paystack", 5000, "NGN", map[string]string{"plan": "basic"}, time.Now().UTC())
	require.NoError(t, repo.Save(ctx, tx))

	got, err := repo.FindByID(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, tx.ExternalReference, got.ExternalReference)
	assert.Equal(t, tx.AmountMinorUnits, got.AmountMinorUnits)
	assert.Equal(t, StatusCreated, got.Status)
	assert.Equal(t, "basic", got.Metadata["plan"])
}

func TestRepository_FindByIDUnknown(t *testing.T) {
	repo := NewRepository(store.NewMemoryStore())
	_, err := repo.FindByID(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrUnknownTransaction)
}

func TestRepository_ProviderIndex(t *testing.T) {
	repo := NewRepository(store.NewMemoryStore())
	ctx := context.Background()

	tx := New("tx-2", "ord-2", "xendit", 100, "PHP", nil, time.Now().UTC())
	_, err := Apply(tx, Change{Event: EventProviderAccepted, RequiresAction: true, ProviderTransactionID: "inv-77"})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, tx))

	got, err := repo.FindByProviderTransactionID(ctx, "xendit", "inv-77")
	require.NoError(t, err)
	assert.Equal(t, "tx-2", got.ID)

	_, err = repo.FindByProviderTransactionID(ctx, "xendit", "inv-absent")
	assert.ErrorIs(t, err, domain.ErrUnknownTransaction)
}

func TestRepository_Mutate(t *testing.T) {
	repo := NewRepository(store.NewMemoryStore())
	ctx := context.Background()

	tx := New("tx-4", "ord-4", "xendit", 100, "PHP", nil, time.Now().UTC())
	require.NoError(t, repo.Save(ctx, tx))

	updated, changed, err := repo.Mutate(ctx, "tx-4", func(tx *Transaction) (bool, error) {
		return Apply(tx, Change{Event: EventProviderAccepted, ProviderTransactionID: "inv-4"})
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusSettling, updated.Status)

	got, err := repo.FindByProviderTransactionID(ctx, "xendit", "inv-4")
	require.NoError(t, err)
	assert.Equal(t, "tx-4", got.ID)

	_, _, err = repo.Mutate(ctx, "absent", func(*Transaction) (bool, error) { return true, nil })
	assert.ErrorIs(t, err, domain.ErrUnknownTransaction)
}

func TestRepository_MutateSerializesConcurrentUpdates(t *testing.T) {
	repo := NewRepository(store.NewMemoryStore())
	ctx := context.Background()

	tx := New("tx-5", "ord-5", "paystack", 100, "USD", nil, time.Now().UTC())
	require.NoError(t, repo.Save(ctx, tx))

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.Mutate(ctx, "tx-5", func(tx *Transaction) (bool, error) {
				tx.History = append(tx.History, HistoryEntry{Event: EventProviderAccepted, From: tx.Status, To: tx.Status, At: time.Now().UTC()})
				return true, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.FindByID(ctx, "tx-5")
	require.NoError(t, err)
	assert.Len(t, got.History, writers, "concurrent updates must not drop history entries")
}
