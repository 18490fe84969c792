package xrpl

import "errors"

// Client errors. Messages that reach callers verbatim are part of the
// public contract and must not be reworded.
var (
	// ErrNoEndpoints is returned when construction is attempted with an
	// endpoint list that contains no valid ws:// or wss:// URL.
	ErrNoEndpoints = errors.New("No valid WebSocket endpoint(s) specified")

	// ErrClosed is returned when an operation is attempted on a client
	// that has been closed, and by the second of two Close calls.
	ErrClosed = errors.New("client closed")

	// ErrHardClose rejects every call still outstanding when Close is called.
	ErrHardClose = errors.New("Class (connection) hard close requested")

	// ErrLedgerUnsubscribe rejects an unsubscribe that would drop only the
	// ledger stream. The client's liveness detection depends on it.
	ErrLedgerUnsubscribe = errors.New("Unsubscribing from (just) the ledger stream is not allowed")

	// ErrConnectionExhausted is carried by the error event when the
	// configured connection attempt budget is spent without rotation.
	ErrConnectionExhausted = errors.New("Max. connection attempts exceeded")

	// ErrInvalidRequest is returned when the request is not a JSON object.
	ErrInvalidRequest = errors.New("request must be an object")

	// ErrInvalidCommand is returned when the request command is missing
	// or not a string.
	ErrInvalidCommand = errors.New("request command must be a string")
)
