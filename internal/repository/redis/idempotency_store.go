package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/pixrelay/internal/domain/idempotency"
	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "pix:idempotency:"

type IdempotencyStore struct {
	client redis.Cmdable
}

func NewIdempotencyStore(client redis.Cmdable) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

type storedEntry struct {
	Body      string    `json:"body"`
	Status    int       `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (*idempotency.Entry, error) {
	raw, err := s.client.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}

	var se storedEntry
	if err := json.Unmarshal(raw, &se); err != nil {
		return nil, fmt.Errorf("decode idempotency key: %w", err)
	}
	return &idempotency.Entry{
		Key:            key,
		ResponseBody:   se.Body,
		ResponseStatus: se.Status,
		CreatedAt:      se.CreatedAt,
		ExpiresAt:      se.ExpiresAt,
	}, nil
}

// Set stores the entry until its ExpiresAt; Redis drops it afterwards.
func (s *IdempotencyStore) Set(ctx context.Context, entry *idempotency.Entry) error {
	ttl := time.Until(entry.ExpiresAt)
	if entry.ExpiresAt.IsZero() {
		ttl = 0
	} else if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(storedEntry{
		Body:      entry.ResponseBody,
		Status:    entry.ResponseStatus,
		CreatedAt: entry.CreatedAt,
		ExpiresAt: entry.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("encode idempotency key: %w", err)
	}
	if err := s.client.Set(ctx, idempotencyKeyPrefix+entry.Key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("set idempotency key: %w", err)
	}
	return nil
}
