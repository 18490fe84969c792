package storage

import (
	"context"

	"xrpl-uplink/internal/domain"
)

// LedgerCloseStore provides access to ledger_closes storage.
type LedgerCloseStore interface {
	// Insert adds an observed ledger close. Returns ErrDuplicateKey if
	// (endpoint, ledger_index) exists.
	Insert(ctx context.Context, lc *domain.LedgerClose) error

	// GetByRange retrieves closes for an endpoint with ledger index in
	// [from, to] (inclusive), ordered by ledger index ASC.
	GetByRange(ctx context.Context, endpoint string, from, to uint64) ([]*domain.LedgerClose, error)

	// GetLatest retrieves the highest-index close for an endpoint.
	// Returns ErrNotFound if none exists.
	GetLatest(ctx context.Context, endpoint string) (*domain.LedgerClose, error)
}

// HealthSampleStore provides access to health_samples storage.
type HealthSampleStore interface {
	// InsertBulk adds multiple samples. Samples carry no unique key;
	// the store appends them as-is.
	InsertBulk(ctx context.Context, samples []*domain.HealthSample) error

	// GetByTimeRange retrieves samples for an endpoint observed within
	// [from, to] milliseconds (inclusive), ordered by observation time ASC.
	GetByTimeRange(ctx context.Context, endpoint string, from, to int64) ([]*domain.HealthSample, error)
}
