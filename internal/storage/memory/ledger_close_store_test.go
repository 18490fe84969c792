package memory

import (
	"context"
	"errors"
	"testing"

	"xrpl-uplink/internal/domain"
	"xrpl-uplink/internal/storage"
)

func TestLedgerCloseStore_InsertAndGet(t *testing.T) {
	store := NewLedgerCloseStore()
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

	if err := store.Insert(ctx, lc); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	result, err := store.GetByRange(ctx, "wss://a.example.net", 71999999, 72000001)
	if err != nil {
		t.Fatalf("GetByRange failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("Expected 1 close, got %d", len(result))
	}
	if result[0].TxnCount != 41 {
		t.Errorf("TxnCount mismatch: got %d, want 41", result[0].TxnCount)
	}
}

func TestLedgerCloseStore_DuplicateKey(t *testing.T) {
	store := NewLedgerCloseStore()
	ctx := context.Background()

	lc := &domain.LedgerClose{Endpoint: "wss://a.example.net", LedgerIndex: 100, ObservedAt: 1000}

	if err := store.Insert(ctx, lc); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := store.Insert(ctx, lc); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Same index on another endpoint is a distinct key.
	other := &domain.LedgerClose{Endpoint: "wss://b.example.net", LedgerIndex: 100, ObservedAt: 1000}
	if err := store.Insert(ctx, other); err != nil {
		t.Errorf("Insert on other endpoint failed: %v", err)
	}
}

func TestLedgerCloseStore_InvalidInput(t *testing.T) {
	store := NewLedgerCloseStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.Insert(ctx, &domain.LedgerClose{LedgerIndex: 1}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty endpoint, got %v", err)
	}
}

func TestLedgerCloseStore_GetLatest(t *testing.T) {
	store := NewLedgerCloseStore()
	ctx := context.Background()

	if _, err := store.GetLatest(ctx, "wss://a.example.net"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	for _, idx := range []uint64{100, 300, 200} {
		if err := store.Insert(ctx, &domain.LedgerClose{Endpoint: "wss://a.example.net", LedgerIndex: idx}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	latest, err := store.GetLatest(ctx, "wss://a.example.net")
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if latest.LedgerIndex != 300 {
		t.Errorf("Expected latest index 300, got %d", latest.LedgerIndex)
	}
}

func TestLedgerCloseStore_RangeOrdering(t *testing.T) {
	store := NewLedgerCloseStore()
	ctx := context.Background()

	for _, idx := range []uint64{5, 3, 4, 9} {
		if err := store.Insert(ctx, &domain.LedgerClose{Endpoint: "wss://a.example.net", LedgerIndex: idx}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	result, err := store.GetByRange(ctx, "wss://a.example.net", 3, 5)
	if err != nil {
		t.Fatalf("GetByRange failed: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("Expected 3 closes, got %d", len(result))
	}
	for i, want := range []uint64{3, 4, 5} {
		if result[i].LedgerIndex != want {
			t.Errorf("Position %d: expected index %d, got %d", i, want, result[i].LedgerIndex)
		}
	}
}
