package redis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cassiomorais/pixrelay/internal/domain/charge"
	domainErrors "github.com/cassiomorais/pixrelay/internal/domain/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStatusStore_GetUnknown(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewStatusStore(client, time.Hour)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domainErrors.ErrChargeNotFound)
}

func TestStatusStore_PutGetWithRetention(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewStatusStore(client, time.Hour)

	require.NoError(t, s.Put(context.Background(), charge.NewPendingRecord("tx1", 1000)))

	rec, err := s.Get(context.Background(), "tx1")
	require.NoError(t, err)
	assert.Equal(t, charge.StatusPending, rec.Status)
	assert.Equal(t, int64(1000), rec.AmountCents)
	assert.Equal(t, time.Hour, mr.TTL("pix:charge:tx1"))

	mr.FastForward(2 * time.Hour)
	_, err = s.Get(context.Background(), "tx1")
	assert.ErrorIs(t, err, domainErrors.ErrChargeNotFound)
}

func TestStatusStore_MergeUnknownCreatesNothing(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewStatusStore(client, time.Hour)

	_, err := s.Merge(context.Background(), "ghost", charge.Update{Status: charge.StatusPaid})
	assert.ErrorIs(t, err, domainErrors.ErrChargeNotFound)
	assert.False(t, mr.Exists("pix:charge:ghost"))
}

func TestStatusStore_MergePreservesAmount(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewStatusStore(client, 0)
	require.NoError(t, s.Put(context.Background(), charge.NewPendingRecord("tx1", 1000)))

	rec, err := s.Merge(context.Background(), "tx1", charge.Update{
		Status:      charge.StatusPaid,
		EndToEndID:  "E1",
		AmountCents: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, charge.StatusPaid, rec.Status)

	stored, err := s.Get(context.Background(), "tx1")
	require.NoError(t, err)
	assert.Equal(t, charge.StatusPaid, stored.Status)
	assert.Equal(t, "E1", stored.EndToEndID)
	assert.Equal(t, int64(1000), stored.AmountCents)
	assert.NotNil(t, stored.PaidAt)
}

func TestStatusStore_ConcurrentMerges(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewStatusStore(client, time.Hour)
	require.NoError(t, s.Put(context.Background(), charge.NewPendingRecord("tx1", 1000)))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Merge(context.Background(), "tx1", charge.Update{
				Status:     charge.StatusPaid,
				EndToEndID: fmt.Sprintf("E%d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	rec, err := s.Get(context.Background(), "tx1")
	require.NoError(t, err)
	assert.Equal(t, charge.StatusPaid, rec.Status)
	assert.Equal(t, int64(1000), rec.AmountCents)
}

func TestStatusStore_Ping(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewStatusStore(client, time.Hour)

	assert.NoError(t, s.Ping(context.Background()))
	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}
