package postgres

import (
	"context"
	"fmt"

	"xrpl-uplink/internal/domain"
	"xrpl-uplink/internal/storage"
)

// LedgerCloseStore implements storage.LedgerCloseStore using PostgreSQL.
type LedgerCloseStore struct {
	pool *Pool
}

// NewLedgerCloseStore creates a new LedgerCloseStore.
func NewLedgerCloseStore(pool *Pool) *LedgerCloseStore {
	return &LedgerCloseStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerCloseStore = (*LedgerCloseStore)(nil)

// Insert adds an observed ledger close. Returns ErrDuplicateKey if
// (endpoint, ledger_index) exists.
func (s *LedgerCloseStore) Insert(ctx context.Context, lc *domain.LedgerClose) error {
	if lc == nil || lc.Endpoint == "" || lc.LedgerIndex == 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO ledger_closes (
			endpoint, ledger_index, validated_ledgers, reserve_base, reserve_inc, txn_count, observed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		lc.Endpoint,
		int64(lc.LedgerIndex),
		lc.ValidatedLedgers,
		lc.ReserveBase,
		lc.ReserveInc,
		int64(lc.TxnCount),
		lc.ObservedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert ledger close: %w", err)
	}
	return nil
}

// GetByRange retrieves closes for an endpoint within [from, to] inclusive,
// ordered by ledger index ASC.
func (s *LedgerCloseStore) GetByRange(ctx context.Context, endpoint string, from, to uint64) ([]*domain.LedgerClose, error) {
	query := `
		SELECT endpoint, ledger_index, validated_ledgers, reserve_base, reserve_inc, txn_count, observed_at
		FROM ledger_closes
		WHERE endpoint = $1 AND ledger_index BETWEEN $2 AND $3
		ORDER BY ledger_index ASC
	`

	rows, err := s.pool.Query(ctx, query, endpoint, int64(from), int64(to))
	if err != nil {
		return nil, fmt.Errorf("query ledger closes: %w", err)
	}
	defer rows.Close()

	var result []*domain.LedgerClose
	for rows.Next() {
		lc, err := scanLedgerClose(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger closes: %w", err)
	}
	return result, nil
}

// GetLatest retrieves the highest-index close for an endpoint.
func (s *LedgerCloseStore) GetLatest(ctx context.Context, endpoint string) (*domain.LedgerClose, error) {
	query := `
		SELECT endpoint, ledger_index, validated_ledgers, reserve_base, reserve_inc, txn_count, observed_at
		FROM ledger_closes
		WHERE endpoint = $1
		ORDER BY ledger_index DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, endpoint)
	lc, err := scanLedgerClose(row.Scan)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query latest ledger close: %w", err)
	}
	return lc, nil
}

func scanLedgerClose(scan func(dest ...any) error) (*domain.LedgerClose, error) {
	var lc domain.LedgerClose
	var ledgerIndex, txnCount int64
	if err := scan(
		&lc.Endpoint,
		&ledgerIndex,
		&lc.ValidatedLedgers,
		&lc.ReserveBase,
		&lc.ReserveInc,
		&txnCount,
		&lc.ObservedAt,
	); err != nil {
		return nil, err
	}
	lc.LedgerIndex = uint64(ledgerIndex)
	lc.TxnCount = uint64(txnCount)
	return &lc, nil
}
