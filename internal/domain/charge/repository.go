package charge

import "context"

// Repository is the status table shared by charge creation and webhook
// processing. Implementations must make Merge an atomic read-modify-write
// for a single txid; no cross-key transactions are needed.
type Repository interface {
	// Get returns the record for txid, or errors.ErrChargeNotFound.
	Get(ctx context.Context, txid string) (*Record, error)

	// Put stores rec under rec.TxID, replacing any previous value.
	Put(ctx context.Context, rec *Record) error

	// Merge applies u to the existing record and returns the result.
	// It returns errors.ErrChargeNotFound and stores nothing when txid is unknown.
	Merge(ctx context.Context, txid string, u Update) (*Record, error)
}
