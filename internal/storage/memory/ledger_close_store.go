package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"xrpl-uplink/internal/domain"
	"xrpl-uplink/internal/storage"
)

// LedgerCloseStore is an in-memory implementation of storage.LedgerCloseStore.
type LedgerCloseStore struct {
	mu   sync.RWMutex
	data map[string]*domain.LedgerClose // keyed by composite key
}

// NewLedgerCloseStore creates a new in-memory ledger close store.
func NewLedgerCloseStore() *LedgerCloseStore {
	return &LedgerCloseStore{
		data: make(map[string]*domain.LedgerClose),
	}
}

// Compile-time interface check.
var _ storage.LedgerCloseStore = (*LedgerCloseStore)(nil)

// closeKey generates a unique key for a ledger close.
func closeKey(endpoint string, ledgerIndex uint64) string {
	return fmt.Sprintf("%s|%d", endpoint, ledgerIndex)
}

// Insert adds an observed ledger close. Returns ErrDuplicateKey if exists.
func (s *LedgerCloseStore) Insert(_ context.Context, lc *domain.LedgerClose) error {
	if lc == nil || lc.Endpoint == "" || lc.LedgerIndex == 0 {
		return storage.ErrInvalidInput
	}

	key := closeKey(lc.Endpoint, lc.LedgerIndex)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *lc
	s.data[key] = &copy
	return nil
}

// GetByRange retrieves closes for an endpoint within [from, to] inclusive.
func (s *LedgerCloseStore) GetByRange(_ context.Context, endpoint string, from, to uint64) ([]*domain.LedgerClose, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LedgerClose
	for _, lc := range s.data {
		if lc.Endpoint != endpoint || lc.LedgerIndex < from || lc.LedgerIndex > to {
			continue
		}
		copy := *lc
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].LedgerIndex < result[j].LedgerIndex
	})
	return result, nil
}

// GetLatest retrieves the highest-index close for an endpoint.
func (s *LedgerCloseStore) GetLatest(_ context.Context, endpoint string) (*domain.LedgerClose, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.LedgerClose
	for _, lc := range s.data {
		if lc.Endpoint != endpoint {
			continue
		}
		if latest == nil || lc.LedgerIndex > latest.LedgerIndex {
			latest = lc
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}

	copy := *latest
	return &copy, nil
}
