package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cassiomorais/pixrelay/internal/domain/charge"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventProducer_Publish(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	producer := NewEventProducer(client, "")
	paidAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	err := producer.Publish(context.Background(), charge.Event{
		Type:        charge.EventPaid,
		TxID:        "tx1",
		Status:      charge.StatusPaid,
		AmountCents: 1000,
		EndToEndID:  "E1",
		OccurredAt:  paidAt,
	})
	require.NoError(t, err)

	msgs, err := client.XRange(context.Background(), DefaultEventStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	values := msgs[0].Values
	assert.Equal(t, "charge.paid", values["event_type"])
	assert.Equal(t, "tx1", values["txid"])
	assert.Equal(t, "PAID", values["status"])
	assert.Equal(t, "10.00", values["amount"])
	assert.Equal(t, "E1", values["end_to_end_id"])
	assert.Equal(t, "2026-05-01T10:00:00Z", values["occurred_at"])
	assert.NotContains(t, values, "client_id")
}

func TestEventProducer_PublishCarriesClientID(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	err := NewEventProducer(client, "").Publish(context.Background(), charge.Event{
		Type:     charge.EventCreated,
		TxID:     "tx1",
		Status:   charge.StatusPending,
		ClientID: "store-7",
	})
	require.NoError(t, err)

	msgs, err := client.XRange(context.Background(), DefaultEventStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "store-7", msgs[0].Values["client_id"])
}

func TestEventProducer_PublishFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	err := NewEventProducer(client, "custom").Publish(context.Background(), charge.Event{Type: charge.EventCreated, TxID: "tx1"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "charge.created")
}
