package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cassiomorais/pixrelay/internal/domain/charge"
	domainErrors "github.com/cassiomorais/pixrelay/internal/domain/errors"
	"github.com/cassiomorais/pixrelay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

type AckKind string

const (
	AckChallenge    AckKind = "challenge"
	AckPayment      AckKind = "payment"
	AckUnrecognized AckKind = "unrecognized"
)

// maxLoggedPayload caps how much of an unrecognized body ends up in the logs.
const maxLoggedPayload = 2048

type WebhookConfig struct {
	ChallengeHeader string
	ChallengeQuery  string
	ChallengeField  string
}

type WebhookRequest struct {
	Headers http.Header
	Query   url.Values
	Body    []byte
}

// Ack is the outcome of a delivery. The HTTP layer always answers 200;
// Challenge, when set, is echoed back as the response body.
type Ack struct {
	Kind      AckKind
	Challenge string
	Applied   int
	Ignored   int
}

type WebhookService struct {
	store   charge.Repository
	events  EventPublisher
	cfg     WebhookConfig
	now     func() time.Time
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewWebhookService(
	store charge.Repository,
	events EventPublisher,
	cfg WebhookConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *WebhookService {
	if events == nil {
		events = NopPublisher{}
	}
	if cfg.ChallengeHeader == "" {
		cfg.ChallengeHeader = "X-Webhook-Challenge"
	}
	if cfg.ChallengeQuery == "" {
		cfg.ChallengeQuery = "challenge"
	}
	if cfg.ChallengeField == "" {
		cfg.ChallengeField = "challenge"
	}
	return &WebhookService{
		store:   store,
		events:  events,
		cfg:     cfg,
		now:     time.Now,
		metrics: metrics,
		logger:  logger,
	}
}

// pixEvent is one entry of the provider's {"pix": [...]} notification.
type pixEvent struct {
	TxID       string          `json:"txid"`
	EndToEndID string          `json:"endToEndId"`
	Valor      json.RawMessage `json:"valor"`
	Horario    string          `json:"horario"`
}

// Handle processes a webhook delivery. It never returns an error: failures
// are logged and counted so the provider does not keep redelivering.
func (s *WebhookService) Handle(ctx context.Context, req WebhookRequest) Ack {
	if token := s.challenge(req); token != "" {
		s.observe(AckChallenge)
		s.logger.Info().Msg("Webhook challenge received")
		return Ack{Kind: AckChallenge, Challenge: token}
	}

	events, malformed, ok := parsePixEvents(req.Body)
	if !ok {
		s.observe(AckUnrecognized)
		s.logger.Warn().
			Err(domainErrors.ErrWebhookFormat).
			Str("payload", truncatePayload(req.Body)).
			Msg("Ignoring webhook payload")
		return Ack{Kind: AckUnrecognized}
	}

	ack := Ack{Kind: AckPayment, Ignored: malformed}
	if malformed > 0 {
		s.logger.Warn().
			Err(domainErrors.ErrWebhookFormat).
			Int("malformed", malformed).
			Str("payload", truncatePayload(req.Body)).
			Msg("Skipping undecodable webhook events")
	}
	for _, ev := range events {
		if s.applyEvent(ctx, ev) {
			ack.Applied++
		} else {
			ack.Ignored++
		}
	}
	s.observe(AckPayment)
	s.logger.Info().Int("applied", ack.Applied).Int("ignored", ack.Ignored).Msg("Webhook processed")
	return ack
}

// challenge looks for a verification token in the header, then the query
// string, then the JSON body.
func (s *WebhookService) challenge(req WebhookRequest) string {
	if v := strings.TrimSpace(req.Headers.Get(s.cfg.ChallengeHeader)); v != "" {
		return v
	}
	if v := strings.TrimSpace(req.Query.Get(s.cfg.ChallengeQuery)); v != "" {
		return v
	}
	if len(req.Body) == 0 {
		return ""
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return ""
	}
	raw, ok := body[s.cfg.ChallengeField]
	if !ok {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

// parsePixEvents reports whether body is a {"pix": [...]} notification. Each
// entry is decoded on its own; entries that do not decode are counted in
// malformed and left out of events.
func parsePixEvents(body []byte) (events []pixEvent, malformed int, ok bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, 0, false
	}
	var payload struct {
		Pix *[]json.RawMessage `json:"pix"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Pix == nil {
		return nil, 0, false
	}
	for _, raw := range *payload.Pix {
		var ev pixEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			malformed++
			continue
		}
		events = append(events, ev)
	}
	return events, malformed, true
}

func (s *WebhookService) applyEvent(ctx context.Context, ev pixEvent) bool {
	txid := strings.TrimSpace(ev.TxID)
	if txid == "" {
		s.logger.Debug().Msg("Skipping webhook event without txid")
		return false
	}
	logger := s.logger.With().Str("txid", txid).Str("end_to_end_id", ev.EndToEndID).Logger()

	update := charge.Update{
		Status:     charge.StatusPaid,
		EndToEndID: strings.TrimSpace(ev.EndToEndID),
		PaidAt:     s.paidAt(ev.Horario),
	}
	if cents, err := parseEventAmount(ev.Valor); err == nil {
		update.AmountCents = cents
	} else if len(ev.Valor) > 0 {
		logger.Warn().Err(err).Msg("Webhook event carries an unreadable amount")
	}

	rec, err := s.store.Merge(ctx, txid, update)
	if err != nil {
		if errors.Is(err, domainErrors.ErrChargeNotFound) {
			logger.Info().Msg("Ignoring payment for unknown charge")
		} else {
			logger.Error().Err(err).Msg("Failed to record payment")
		}
		return false
	}

	if err := s.events.Publish(ctx, charge.NewEvent(charge.EventPaid, rec)); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish charge event")
	}
	logger.Info().Str("amount", charge.FormatCents(rec.AmountCents)).Msg("Charge paid")
	return true
}

func (s *WebhookService) paidAt(horario string) time.Time {
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(horario)); err == nil {
		return t.UTC()
	}
	return s.now().UTC()
}

// parseEventAmount accepts the amount as a JSON string ("10.00") or number (10.00).
func parseEventAmount(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("%w: missing", domainErrors.ErrInvalidAmount)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, fmt.Errorf("%w: %s", domainErrors.ErrInvalidAmount, raw)
		}
		s = n.String()
	}
	return charge.ParseAmount(s)
}

func (s *WebhookService) observe(kind AckKind) {
	if s.metrics != nil {
		s.metrics.WebhookEvents.WithLabelValues(string(kind)).Inc()
	}
}

func truncatePayload(body []byte) string {
	if len(body) > maxLoggedPayload {
		return string(body[:maxLoggedPayload]) + "..."
	}
	return string(body)
}
