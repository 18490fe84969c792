package memory

import (
	"context"
	"errors"
	"testing"

	"xrpl-uplink/internal/domain"
	"xrpl-uplink/internal/storage"
)

func TestHealthSampleStore_InsertBulkAndGet(t *testing.T) {
	store := NewHealthSampleStore()
	ctx := context.Background()

	samples := []*domain.HealthSample{
		{Endpoint: "wss://a.example.net", Online: true, LatencyMs: 12, ObservedAt: 3000},
		{Endpoint: "wss://a.example.net", Online: true, LatencyMs: 15, ObservedAt: 1000},
		{Endpoint: "wss://b.example.net", Online: false, ObservedAt: 2000},
	}
	if err := store.InsertBulk(ctx, samples); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByTimeRange(ctx, "wss://a.example.net", 0, 5000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(result))
	}
	if result[0].ObservedAt != 1000 || result[1].ObservedAt != 3000 {
		t.Errorf("Samples not ordered by observation time: %d, %d", result[0].ObservedAt, result[1].ObservedAt)
	}
}

func TestHealthSampleStore_EmptyBulk(t *testing.T) {
	store := NewHealthSampleStore()

	if err := store.InsertBulk(context.Background(), nil); err != nil {
		t.Errorf("Empty bulk insert should succeed, got %v", err)
	}
}

func TestHealthSampleStore_InvalidInput(t *testing.T) {
	store := NewHealthSampleStore()

	err := store.InsertBulk(context.Background(), []*domain.HealthSample{{ObservedAt: 1}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty endpoint, got %v", err)
	}
}

func TestHealthSampleStore_TimeRangeBounds(t *testing.T) {
	store := NewHealthSampleStore()
	ctx := context.Background()

	for _, at := range []int64{100, 200, 300} {
		err := store.InsertBulk(ctx, []*domain.HealthSample{{Endpoint: "wss://a.example.net", ObservedAt: at}})
		if err != nil {
			t.Fatalf("InsertBulk failed: %v", err)
		}
	}

	result, err := store.GetByTimeRange(ctx, "wss://a.example.net", 100, 200)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("Expected inclusive bounds to return 2 samples, got %d", len(result))
	}
}
