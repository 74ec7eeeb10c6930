// Package memory keeps charge state in process memory. It is the reference
// store; records are lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cassiomorais/pixrelay/internal/domain/charge"
	domainErrors "github.com/cassiomorais/pixrelay/internal/domain/errors"
)

type StatusStore struct {
	mu      sync.RWMutex
	records map[string]charge.Record
	now     func() time.Time
}

func NewStatusStore() *StatusStore {
	return &StatusStore{
		records: make(map[string]charge.Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *StatusStore) Get(_ context.Context, txid string) (*charge.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[txid]
	if !ok {
		return nil, domainErrors.ErrChargeNotFound
	}
	return cloneRecord(rec), nil
}

func (s *StatusStore) Put(_ context.Context, rec *charge.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.TxID] = *cloneRecord(*rec)
	return nil
}

func (s *StatusStore) Merge(_ context.Context, txid string, u charge.Update) (*charge.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[txid]
	if !ok {
		return nil, domainErrors.ErrChargeNotFound
	}
	merged := rec.Apply(u, s.now())
	s.records[txid] = merged
	return cloneRecord(merged), nil
}

// Ping satisfies the readiness check; memory is always available.
func (s *StatusStore) Ping(context.Context) error { return nil }

func cloneRecord(rec charge.Record) *charge.Record {
	out := rec
	if rec.PaidAt != nil {
		paidAt := *rec.PaidAt
		out.PaidAt = &paidAt
	}
	return &out
}
