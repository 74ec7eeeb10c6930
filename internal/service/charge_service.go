package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cassiomorais/pixrelay/internal/domain/charge"
	domainErrors "github.com/cassiomorais/pixrelay/internal/domain/errors"
	"github.com/cassiomorais/pixrelay/internal/infrastructure/observability"
	"github.com/cassiomorais/pixrelay/internal/infrastructure/pix"
	"github.com/cassiomorais/pixrelay/pkg/saga"
	"github.com/rs/zerolog"
)

const defaultChargeExpiration = 300 * time.Second

// Labels of the additional-info entries shown to the payer.
const (
	infoOrderID   = "Pedido"
	infoPayerName = "Pagador"
)

type ChargeConfig struct {
	PixKey     string
	Expiration time.Duration
}

// ChargeService creates Pix charges and answers status queries.
type ChargeService struct {
	factory ClientFactory
	store   charge.Repository
	events  EventPublisher
	cfg     ChargeConfig
	newTxID func() string
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewChargeService wires the charge pipeline. A nil factory means the
// provider credentials are missing; charge creation then fails with
// ErrCredentialsUnavailable while status queries keep working.
func NewChargeService(
	factory ClientFactory,
	store charge.Repository,
	events EventPublisher,
	cfg ChargeConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *ChargeService {
	if events == nil {
		events = NopPublisher{}
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = defaultChargeExpiration
	}
	return &ChargeService{
		factory: factory,
		store:   store,
		events:  events,
		cfg:     cfg,
		newTxID: charge.NewTxID,
		metrics: metrics,
		logger:  logger,
	}
}

// Available reports whether charges can be created.
func (s *ChargeService) Available() bool {
	return s.factory != nil
}

// CreateCharge registers a charge with the provider and returns its payment
// codes. Each provider call runs only after the previous one succeeded; the
// first failure aborts the rest and nothing is retried except the QR lookup
// fallback.
func (s *ChargeService) CreateCharge(ctx context.Context, req charge.Request) (*charge.Result, error) {
	start := time.Now()

	amountCents, err := req.Validate()
	if err != nil {
		s.observeCharge("invalid", start)
		return nil, err
	}
	if s.factory == nil {
		s.observeCharge("unavailable", start)
		return nil, domainErrors.ErrCredentialsUnavailable
	}

	txid := s.newTxID()
	logCtx := s.logger.With().Str("txid", txid)
	if req.ClientID != "" {
		logCtx = logCtx.Str("client_id", req.ClientID)
	}
	logger := logCtx.Logger()

	var (
		client ProviderClient
		locID  string
		qr     *pix.QRCode
	)

	pipeline := saga.New("create-charge").
		AddStep(saga.Step{
			Name: "authenticate",
			Execute: func(ctx context.Context) error {
				var err error
				client, err = s.factory(ctx)
				return err
			},
		}).
		AddStep(saga.Step{
			Name: "put_charge",
			Execute: func(ctx context.Context) error {
				_, err := client.PutCharge(ctx, txid, s.chargeBody(req, amountCents))
				return err
			},
		}).
		AddStep(saga.Step{
			Name: "get_charge",
			Execute: func(ctx context.Context) error {
				c, err := client.GetCharge(ctx, txid)
				if err != nil {
					return err
				}
				locID = c.LocationID()
				if locID == "" {
					return domainErrors.NewProviderError("get_charge", 0, "",
						fmt.Errorf("%w: charge %s has no location id", domainErrors.ErrProviderProtocol, txid))
				}
				return nil
			},
		}).
		AddStep(saga.Step{
			Name: "qrcode",
			Execute: func(ctx context.Context) error {
				var err error
				qr, err = s.fetchQRCode(ctx, client, locID, logger)
				return err
			},
		}).
		AddStep(saga.Step{
			Name: "record_pending",
			Execute: func(ctx context.Context) error {
				return s.store.Put(ctx, charge.NewPendingRecord(txid, amountCents))
			},
		}).
		Observe(func(ctx context.Context, step string, err error, elapsed time.Duration) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			if s.metrics != nil {
				s.metrics.ChargeSteps.WithLabelValues(step, result).Inc()
			}
			logger.Debug().Str("step", step).Str("loc_id", locID).Dur("elapsed", elapsed).Err(err).Msg("Charge step finished")
		})

	if err := pipeline.Execute(ctx); err != nil {
		s.observeCharge("failed", start)
		logger.Error().Err(err).Msg("Charge creation failed")
		return nil, err
	}
	s.observeCharge("created", start)

	event := charge.NewEvent(charge.EventCreated, charge.NewPendingRecord(txid, amountCents))
	event.ClientID = req.ClientID
	if err := s.events.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish charge event")
	}

	logger.Info().Str("amount", charge.FormatCents(amountCents)).Str("loc_id", locID).Msg("Charge created")

	return &charge.Result{
		TxID:             txid,
		CopyPasteCode:    qr.QRCode,
		QRImageBase64:    qr.ImagemQRCode,
		ExpiresInSeconds: int(s.cfg.Expiration / time.Second),
	}, nil
}

// fetchQRCode tries the primary QR endpoint and, when it fails, the fallback
// endpoint exactly once. The fallback's error wins when both fail.
func (s *ChargeService) fetchQRCode(ctx context.Context, client ProviderClient, locID string, logger zerolog.Logger) (*pix.QRCode, error) {
	qr, err := client.QRCode(ctx, locID)
	if err == nil {
		return qr, nil
	}

	logger.Warn().Err(err).Str("loc_id", locID).Msg("QR code lookup failed, trying fallback path")
	qr, fallbackErr := client.FallbackQRCode(ctx, locID, err)
	if fallbackErr != nil {
		if errors.Is(fallbackErr, pix.ErrNoFallback) {
			return nil, err
		}
		return nil, fallbackErr
	}
	return qr, nil
}

func (s *ChargeService) chargeBody(req charge.Request, amountCents int64) pix.ChargeBody {
	body := pix.ChargeBody{
		Calendario:         pix.Calendar{Expiracao: int(s.cfg.Expiration / time.Second)},
		Valor:              pix.Value{Original: charge.FormatCents(amountCents)},
		Chave:              s.cfg.PixKey,
		SolicitacaoPagador: strings.TrimSpace(req.Description),
	}
	if v := strings.TrimSpace(req.OrderID); v != "" {
		body.InfoAdicionais = append(body.InfoAdicionais, pix.AdditionalInfo{Nome: infoOrderID, Valor: v})
	}
	if v := strings.TrimSpace(req.PayerName); v != "" {
		body.InfoAdicionais = append(body.InfoAdicionais, pix.AdditionalInfo{Nome: infoPayerName, Valor: v})
	}
	return body
}

// Status returns the stored record for txid. Identifiers that were never
// issued come back as an UNKNOWN record rather than an error.
func (s *ChargeService) Status(ctx context.Context, txid string) (*charge.Record, error) {
	txid = strings.TrimSpace(txid)
	if !charge.ValidTxID(txid) {
		return &charge.Record{TxID: txid, Status: charge.StatusUnknown}, nil
	}

	rec, err := s.store.Get(ctx, txid)
	if err != nil {
		if errors.Is(err, domainErrors.ErrChargeNotFound) {
			return &charge.Record{TxID: txid, Status: charge.StatusUnknown}, nil
		}
		return nil, fmt.Errorf("load charge %s: %w", txid, err)
	}
	return rec, nil
}

func (s *ChargeService) observeCharge(outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ChargesTotal.WithLabelValues(outcome).Inc()
	s.metrics.ChargeDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
