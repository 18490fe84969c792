package domain

// LedgerClose is one observed ledger close on a given endpoint.
type LedgerClose struct {
	// Endpoint is the uplink URL the close was observed on.
	Endpoint string

	// LedgerIndex is the index of the closed ledger.
	LedgerIndex uint64

	// ValidatedLedgers is the server-reported validated range at close time.
	ValidatedLedgers string

	// ReserveBase and ReserveInc are the reserves in XRP, zero when the
	// close did not carry them.
	ReserveBase float64
	ReserveInc  float64

	// TxnCount is the number of transactions in the closed ledger.
	TxnCount uint64

	// ObservedAt is the local observation time in Unix milliseconds.
	ObservedAt int64
}
