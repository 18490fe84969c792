package clickhouse

import (
	"context"
	"fmt"

	"xrpl-uplink/internal/domain"
	"xrpl-uplink/internal/storage"
)

// HealthSampleStore implements storage.HealthSampleStore using ClickHouse.
type HealthSampleStore struct {
	conn *Conn
}

// NewHealthSampleStore creates a new HealthSampleStore.
func NewHealthSampleStore(conn *Conn) *HealthSampleStore {
	return &HealthSampleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.HealthSampleStore = (*HealthSampleStore)(nil)

// InsertBulk appends samples via a prepared batch.
func (s *HealthSampleStore) InsertBulk(ctx context.Context, samples []*domain.HealthSample) error {
	if len(samples) == 0 {
		return nil
	}
	for _, sample := range samples {
		if sample == nil || sample.Endpoint == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO health_samples (
			endpoint, online, latency_ms, latency_avg_ms, fee_drops, reserve_base, ledger_last, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, sample := range samples {
		online := uint8(0)
		if sample.Online {
			online = 1
		}
		err = batch.Append(
			sample.Endpoint, online,
			sample.LatencyMs, sample.LatencyAvgMs,
			sample.FeeDrops, sample.ReserveBaseXRP,
			sample.LedgerLast, uint64(sample.ObservedAt),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves samples for an endpoint observed within
// [from, to] milliseconds, ordered by observation time ASC.
func (s *HealthSampleStore) GetByTimeRange(ctx context.Context, endpoint string, from, to int64) ([]*domain.HealthSample, error) {
	query := `
		SELECT endpoint, online, latency_ms, latency_avg_ms, fee_drops, reserve_base, ledger_last, observed_at
		FROM health_samples
		WHERE endpoint = ? AND observed_at BETWEEN ? AND ?
		ORDER BY observed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, endpoint, uint64(from), uint64(to))
	if err != nil {
		return nil, fmt.Errorf("query health samples: %w", err)
	}
	defer rows.Close()

	var result []*domain.HealthSample
	for rows.Next() {
		var sample domain.HealthSample
		var online uint8
		var observedAt uint64
		if err := rows.Scan(
			&sample.Endpoint, &online,
			&sample.LatencyMs, &sample.LatencyAvgMs,
			&sample.FeeDrops, &sample.ReserveBaseXRP,
			&sample.LedgerLast, &observedAt,
		); err != nil {
			return nil, fmt.Errorf("scan health sample: %w", err)
		}
		sample.Online = online == 1
		sample.ObservedAt = int64(observedAt)
		result = append(result, &sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate health samples: %w", err)
	}
	return result, nil
}
