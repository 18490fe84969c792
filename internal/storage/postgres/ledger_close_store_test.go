package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xrpl-uplink/internal/domain"
	"xrpl-uplink/internal/storage"
)

func TestLedgerCloseStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewLedgerCloseStore(pool)
	ctx := context.Background()

	lc := &domain.LedgerClose{
		Endpoint:         "wss://a.example.net",
		LedgerIndex:      72000000,
		ValidatedLedgers: "71000000-72000000",
		ReserveBase:      10,
		ReserveInc:       2,
		TxnCount:         41,
		ObservedAt:       1704067200000,
	}
	require.NoError(t, store.Insert(ctx, lc))

	result, err := store.GetByRange(ctx, "wss://a.example.net", 72000000, 72000000)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, uint64(72000000), result[0].LedgerIndex)
	assert.Equal(t, "71000000-72000000", result[0].ValidatedLedgers)
	assert.Equal(t, 10.0, result[0].ReserveBase)
	assert.Equal(t, uint64(41), result[0].TxnCount)
}

func TestLedgerCloseStore_Duplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewLedgerCloseStore(pool)
	ctx := context.Background()

	lc := &domain.LedgerClose{Endpoint: "wss://a.example.net", LedgerIndex: 100, ObservedAt: 1000}
	require.NoError(t, store.Insert(ctx, lc))

	err := store.Insert(ctx, lc)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Same index on another endpoint is a distinct key.
	other := &domain.LedgerClose{Endpoint: "wss://b.example.net", LedgerIndex: 100, ObservedAt: 1000}
	assert.NoError(t, store.Insert(ctx, other))
}

func TestLedgerCloseStore_GetLatest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewLedgerCloseStore(pool)
	ctx := context.Background()

	_, err := store.GetLatest(ctx, "wss://a.example.net")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	for _, idx := range []uint64{100, 300, 200} {
		require.NoError(t, store.Insert(ctx, &domain.LedgerClose{
			Endpoint: "wss://a.example.net", LedgerIndex: idx, ObservedAt: 1000,
		}))
	}

	latest, err := store.GetLatest(ctx, "wss://a.example.net")
	require.NoError(t, err)
	assert.Equal(t, uint64(300), latest.LedgerIndex)
}

func TestLedgerCloseStore_RangeOrdering(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewLedgerCloseStore(pool)
	ctx := context.Background()

	for _, idx := range []uint64{5, 3, 9, 4} {
		require.NoError(t, store.Insert(ctx, &domain.LedgerClose{
			Endpoint: "wss://a.example.net", LedgerIndex: idx, ObservedAt: 1000,
		}))
	}

	result, err := store.GetByRange(ctx, "wss://a.example.net", 3, 5)
	require.NoError(t, err)
	require.Len(t, result, 3)
	for i, want := range []uint64{3, 4, 5} {
		assert.Equal(t, want, result[i].LedgerIndex)
	}
}
