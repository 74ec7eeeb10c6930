package memory

import (
	"context"
	"testing"
	"time"

	"github.com/cassiomorais/pixrelay/internal/domain/idempotency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStore_SetGet(t *testing.T) {
	s := NewIdempotencyStore()
	now := time.Now()

	require.NoError(t, s.Set(context.Background(), &idempotency.Entry{
		Key:            "k1",
		ResponseBody:   `{"txid":"abc"}`,
		ResponseStatus: 200,
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Hour),
	}))

	e, err := s.Get(context.Background(), "k1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, `{"txid":"abc"}`, e.ResponseBody)
	assert.Equal(t, 200, e.ResponseStatus)
}

func TestIdempotencyStore_UnknownKey(t *testing.T) {
	s := NewIdempotencyStore()

	e, err := s.Get(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, e)
}

func TestIdempotencyStore_Expired(t *testing.T) {
	s := NewIdempotencyStore()
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(context.Background(), &idempotency.Entry{
		Key:       "k1",
		ExpiresAt: now.Add(-time.Second),
	}))

	e, err := s.Get(context.Background(), "k1")
	assert.NoError(t, err)
	assert.Nil(t, e)
}
