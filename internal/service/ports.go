package service

import (
	"context"

	"github.com/cassiomorais/pixrelay/internal/domain/charge"
	"github.com/cassiomorais/pixrelay/internal/infrastructure/pix"
)

// ProviderClient is the slice of the Pix API the charge pipeline needs.
type ProviderClient interface {
	PutCharge(ctx context.Context, txid string, body pix.ChargeBody) (*pix.Charge, error)
	GetCharge(ctx context.Context, txid string) (*pix.Charge, error)
	QRCode(ctx context.Context, locID string) (*pix.QRCode, error)
	FallbackQRCode(ctx context.Context, locID string, cause error) (*pix.QRCode, error)
}

// ClientFactory returns a client carrying a valid access token.
type ClientFactory func(ctx context.Context) (ProviderClient, error)

// PixClientFactory adapts a pix.Factory.
func PixClientFactory(f *pix.Factory) ClientFactory {
	return func(ctx context.Context) (ProviderClient, error) {
		client, err := f.Build(ctx)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// EventPublisher announces charge lifecycle changes.
type EventPublisher interface {
	Publish(ctx context.Context, event charge.Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, charge.Event) error { return nil }
