package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/pixrelay/internal/domain/charge"
	domainErrors "github.com/cassiomorais/pixrelay/internal/domain/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const chargeColumns = `txid, status, amount::text, end_to_end_id, paid_at, created_at, updated_at`

// StatusStore keeps charges in the pix_charges table. Merge locks the row
// with SELECT ... FOR UPDATE inside a transaction.
type StatusStore struct {
	pool *pgxpool.Pool
	tx   *TxManager
	now  func() time.Time
}

func NewStatusStore(pool *pgxpool.Pool, tx *TxManager) *StatusStore {
	return &StatusStore{
		pool: pool,
		tx:   tx,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *StatusStore) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, s.pool)
}

func (s *StatusStore) Get(ctx context.Context, txid string) (*charge.Record, error) {
	return scanRecord(s.db(ctx).QueryRow(ctx,
		`SELECT `+chargeColumns+` FROM pix_charges WHERE txid = $1`, txid))
}

func (s *StatusStore) Put(ctx context.Context, rec *charge.Record) error {
	_, err := s.db(ctx).Exec(ctx,
		`INSERT INTO pix_charges (txid, status, amount, end_to_end_id, paid_at, created_at, updated_at)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
		 ON CONFLICT (txid) DO UPDATE SET
		     status = EXCLUDED.status,
		     amount = EXCLUDED.amount,
		     end_to_end_id = EXCLUDED.end_to_end_id,
		     paid_at = EXCLUDED.paid_at,
		     updated_at = EXCLUDED.updated_at`,
		rec.TxID, string(rec.Status), centsToNumeric(rec.AmountCents), nullable(rec.EndToEndID),
		rec.PaidAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put charge %s: %w", rec.TxID, err)
	}
	return nil
}

func (s *StatusStore) Merge(ctx context.Context, txid string, u charge.Update) (*charge.Record, error) {
	var merged charge.Record
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := scanRecord(s.db(ctx).QueryRow(ctx,
			`SELECT `+chargeColumns+` FROM pix_charges WHERE txid = $1 FOR UPDATE`, txid))
		if err != nil {
			return err
		}

		merged = current.Apply(u, s.now())
		_, err = s.db(ctx).Exec(ctx,
			`UPDATE pix_charges
			 SET status = $2, amount = $3::numeric, end_to_end_id = $4, paid_at = $5, updated_at = $6
			 WHERE txid = $1`,
			txid, string(merged.Status), centsToNumeric(merged.AmountCents), nullable(merged.EndToEndID),
			merged.PaidAt, merged.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update charge %s: %w", txid, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &merged, nil
}

// DeleteOlderThan removes charges created before cutoff and reports how many went.
func (s *StatusStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db(ctx).Exec(ctx, `DELETE FROM pix_charges WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old charges: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *StatusStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanRecord(row pgx.Row) (*charge.Record, error) {
	var (
		rec        charge.Record
		status     string
		amountStr  string
		endToEndID *string
	)
	err := row.Scan(&rec.TxID, &status, &amountStr, &endToEndID, &rec.PaidAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrChargeNotFound
		}
		return nil, fmt.Errorf("scan charge: %w", err)
	}

	cents, err := numericToCents(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	rec.AmountCents = cents
	rec.Status = charge.Status(status)
	if endToEndID != nil {
		rec.EndToEndID = *endToEndID
	}
	return &rec, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
