package memory

import (
	"context"
	"sort"
	"sync"

	"xrpl-uplink/internal/domain"
	"xrpl-uplink/internal/storage"
)

// HealthSampleStore is an in-memory implementation of storage.HealthSampleStore.
type HealthSampleStore struct {
	mu   sync.RWMutex
	data []*domain.HealthSample
}

// NewHealthSampleStore creates a new in-memory health sample store.
func NewHealthSampleStore() *HealthSampleStore {
	return &HealthSampleStore{}
}

// Compile-time interface check.
var _ storage.HealthSampleStore = (*HealthSampleStore)(nil)

// InsertBulk appends samples as-is.
func (s *HealthSampleStore) InsertBulk(_ context.Context, samples []*domain.HealthSample) error {
	if len(samples) == 0 {
		return nil
	}
	for _, sample := range samples {
		if sample == nil || sample.Endpoint == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sample := range samples {
		copy := *sample
		s.data = append(s.data, &copy)
	}
	return nil
}

// GetByTimeRange retrieves samples for an endpoint within [from, to] ms.
func (s *HealthSampleStore) GetByTimeRange(_ context.Context, endpoint string, from, to int64) ([]*domain.HealthSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.HealthSample
	for _, sample := range s.data {
		if sample.Endpoint != endpoint || sample.ObservedAt < from || sample.ObservedAt > to {
			continue
		}
		copy := *sample
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ObservedAt < result[j].ObservedAt
	})
	return result, nil
}
