package controller

import (
	"context"
	"io"
	"net/http"

	"github.com/cassiomorais/pixrelay/internal/service"
	"github.com/rs/zerolog"
)

const defaultWebhookBodyLimit = 1 << 20

type WebhookHandler interface {
	Handle(ctx context.Context, req service.WebhookRequest) service.Ack
}

// WebhookController receives provider notifications. It answers 200 to every
// delivery so the provider never enters a redelivery loop.
type WebhookController struct {
	webhooks WebhookHandler
	maxBody  int64
	logger   zerolog.Logger
}

func NewWebhookController(webhooks WebhookHandler, maxBody int64, logger zerolog.Logger) *WebhookController {
	if maxBody <= 0 {
		maxBody = defaultWebhookBodyLimit
	}
	return &WebhookController{webhooks: webhooks, maxBody: maxBody, logger: logger}
}

// Receive handles any method on /api/v1/pix/webhook and its /pix suffix.
func (h *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody+1))
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read webhook body")
		body = nil
	}
	if int64(len(body)) > h.maxBody {
		h.logger.Warn().Int64("limit", h.maxBody).Msg("Webhook body too large, ignoring payload")
		body = nil
	}

	ack := h.webhooks.Handle(r.Context(), service.WebhookRequest{
		Headers: r.Header,
		Query:   r.URL.Query(),
		Body:    body,
	})

	if ack.Kind == service.AckChallenge {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, ack.Challenge)
		return
	}

	writeJSON(w, http.StatusOK, WebhookResponse{
		Status:  string(ack.Kind),
		Applied: ack.Applied,
		Ignored: ack.Ignored,
	})
}
