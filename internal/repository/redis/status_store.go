// Package redis stores charge state and idempotent responses in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/pixrelay/internal/domain/charge"
	domainErrors "github.com/cassiomorais/pixrelay/internal/domain/errors"
	"github.com/redis/go-redis/v9"
)

const (
	chargeKeyPrefix  = "pix:charge:"
	maxMergeAttempts = 10
)

type storedRecord struct {
	TxID        string     `json:"txid"`
	Status      string     `json:"status"`
	AmountCents int64      `json:"amount_cents"`
	EndToEndID  string     `json:"end_to_end_id,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// StatusStore keeps one JSON document per charge. Merges use WATCH/MULTI so
// a webhook and a charge write on the same txid never lose an update.
type StatusStore struct {
	client    *redis.Client
	retention time.Duration
	now       func() time.Time
}

// NewStatusStore creates the store. Records expire after retention; zero keeps them forever.
func NewStatusStore(client *redis.Client, retention time.Duration) *StatusStore {
	return &StatusStore{
		client:    client,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *StatusStore) key(txid string) string {
	return chargeKeyPrefix + txid
}

func (s *StatusStore) Get(ctx context.Context, txid string) (*charge.Record, error) {
	raw, err := s.client.Get(ctx, s.key(txid)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domainErrors.ErrChargeNotFound
		}
		return nil, fmt.Errorf("get charge %s: %w", txid, err)
	}
	return decodeRecord(raw)
}

func (s *StatusStore) Put(ctx context.Context, rec *charge.Record) error {
	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(rec.TxID), payload, s.retention).Err(); err != nil {
		return fmt.Errorf("put charge %s: %w", rec.TxID, err)
	}
	return nil
}

func (s *StatusStore) Merge(ctx context.Context, txid string, u charge.Update) (*charge.Record, error) {
	key := s.key(txid)

	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		var merged charge.Record
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return domainErrors.ErrChargeNotFound
				}
				return err
			}
			current, err := decodeRecord(raw)
			if err != nil {
				return err
			}

			merged = current.Apply(u, s.now())
			payload, err := encodeRecord(&merged)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, s.retention)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return &merged, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, domainErrors.ErrChargeNotFound):
			return nil, err
		default:
			return nil, fmt.Errorf("merge charge %s: %w", txid, err)
		}
	}
	return nil, fmt.Errorf("merge charge %s: too much contention after %d attempts", txid, maxMergeAttempts)
}

func (s *StatusStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func encodeRecord(rec *charge.Record) ([]byte, error) {
	payload, err := json.Marshal(storedRecord{
		TxID:        rec.TxID,
		Status:      string(rec.Status),
		AmountCents: rec.AmountCents,
		EndToEndID:  rec.EndToEndID,
		PaidAt:      rec.PaidAt,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode charge %s: %w", rec.TxID, err)
	}
	return payload, nil
}

func decodeRecord(raw []byte) (*charge.Record, error) {
	var sr storedRecord
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, fmt.Errorf("decode charge: %w", err)
	}
	return &charge.Record{
		TxID:        sr.TxID,
		Status:      charge.Status(sr.Status),
		AmountCents: sr.AmountCents,
		EndToEndID:  sr.EndToEndID,
		PaidAt:      sr.PaidAt,
		CreatedAt:   sr.CreatedAt,
		UpdatedAt:   sr.UpdatedAt,
	}, nil
}
