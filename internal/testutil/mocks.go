package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cassiomorais/pixrelay/internal/domain/charge"
	domainErrors "github.com/cassiomorais/pixrelay/internal/domain/errors"
	"github.com/cassiomorais/pixrelay/internal/domain/idempotency"
	"github.com/cassiomorais/pixrelay/internal/infrastructure/pix"
)

// --- Pix Provider Mock ---

// MockProviderClient is a scripted Pix API. Without overrides it behaves like
// a healthy provider: charges get location id "42" and a fixed QR code.
type MockProviderClient struct {
	mu    sync.Mutex
	calls []string

	PutChargeFunc      func(ctx context.Context, txid string, body pix.ChargeBody) (*pix.Charge, error)
	GetChargeFunc      func(ctx context.Context, txid string) (*pix.Charge, error)
	QRCodeFunc         func(ctx context.Context, locID string) (*pix.QRCode, error)
	FallbackQRCodeFunc func(ctx context.Context, locID string, cause error) (*pix.QRCode, error)

	// Bodies holds every charge body sent, keyed by txid.
	Bodies map[string]pix.ChargeBody
}

func NewMockProviderClient() *MockProviderClient {
	return &MockProviderClient{Bodies: make(map[string]pix.ChargeBody)}
}

func (m *MockProviderClient) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// Calls returns the operations invoked so far, in order.
func (m *MockProviderClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockProviderClient) PutCharge(ctx context.Context, txid string, body pix.ChargeBody) (*pix.Charge, error) {
	m.record("put_charge")
	m.mu.Lock()
	m.Bodies[txid] = body
	m.mu.Unlock()
	if m.PutChargeFunc != nil {
		return m.PutChargeFunc(ctx, txid, body)
	}
	return &pix.Charge{TxID: txid, Status: "ATIVA"}, nil
}

func (m *MockProviderClient) GetCharge(ctx context.Context, txid string) (*pix.Charge, error) {
	m.record("get_charge")
	if m.GetChargeFunc != nil {
		return m.GetChargeFunc(ctx, txid)
	}
	return &pix.Charge{TxID: txid, Status: "ATIVA", Loc: &pix.Location{ID: "42"}}, nil
}

func (m *MockProviderClient) QRCode(ctx context.Context, locID string) (*pix.QRCode, error) {
	m.record("qrcode")
	if m.QRCodeFunc != nil {
		return m.QRCodeFunc(ctx, locID)
	}
	return &pix.QRCode{QRCode: "00020126copia-e-cola" + locID, ImagemQRCode: "data:image/png;base64,iVBOR"}, nil
}

func (m *MockProviderClient) FallbackQRCode(ctx context.Context, locID string, cause error) (*pix.QRCode, error) {
	m.record("qrcode_fallback")
	if m.FallbackQRCodeFunc != nil {
		return m.FallbackQRCodeFunc(ctx, locID, cause)
	}
	return nil, pix.ErrNoFallback
}

// --- Event Publisher Mock ---

type MockEventPublisher struct {
	mu     sync.Mutex
	events []charge.Event

	PublishFunc func(ctx context.Context, event charge.Event) error
}

func (m *MockEventPublisher) Publish(ctx context.Context, event charge.Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, event)
	}
	return nil
}

func (m *MockEventPublisher) Events() []charge.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]charge.Event, len(m.events))
	copy(out, m.events)
	return out
}

// --- Status Repository Mock ---

// MockChargeRepository is a map-backed charge.Repository whose methods can be
// overridden to inject failures.
type MockChargeRepository struct {
	mu      sync.Mutex
	records map[string]charge.Record

	GetFunc   func(ctx context.Context, txid string) (*charge.Record, error)
	PutFunc   func(ctx context.Context, rec *charge.Record) error
	MergeFunc func(ctx context.Context, txid string, u charge.Update) (*charge.Record, error)
}

func NewMockChargeRepository() *MockChargeRepository {
	return &MockChargeRepository{records: make(map[string]charge.Record)}
}

func (m *MockChargeRepository) Get(ctx context.Context, txid string) (*charge.Record, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, txid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[txid]
	if !ok {
		return nil, domainErrors.ErrChargeNotFound
	}
	return &rec, nil
}

func (m *MockChargeRepository) Put(ctx context.Context, rec *charge.Record) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.TxID] = *rec
	return nil
}

func (m *MockChargeRepository) Merge(ctx context.Context, txid string, u charge.Update) (*charge.Record, error) {
	if m.MergeFunc != nil {
		return m.MergeFunc(ctx, txid, u)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[txid]
	if !ok {
		return nil, fmt.Errorf("merge %s: %w", txid, domainErrors.ErrChargeNotFound)
	}
	merged := rec.Apply(u, time.Now().UTC())
	m.records[txid] = merged
	return &merged, nil
}

func (m *MockChargeRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// --- Idempotency Store Mock ---

type MockIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*idempotency.Entry

	GetFunc func(ctx context.Context, key string) (*idempotency.Entry, error)
	SetFunc func(ctx context.Context, entry *idempotency.Entry) error
}

func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{entries: make(map[string]*idempotency.Entry)}
}

func (m *MockIdempotencyStore) Get(ctx context.Context, key string) (*idempotency.Entry, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key], nil
}

func (m *MockIdempotencyStore) Set(ctx context.Context, entry *idempotency.Entry) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Key] = entry
	return nil
}
