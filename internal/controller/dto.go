package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassiomorais/pixrelay/internal/domain/charge"
)

// --- Request DTOs ---

// Amount accepts the charge amount as a JSON number (10.5) or string ("10.50").
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount must be a number: %w", err)
	}
	*a = Amount(n.String())
	return nil
}

// CreateChargeRequest is the body of POST /api/v1/pix/charges.
type CreateChargeRequest struct {
	Amount      Amount `json:"amount" validate:"required"`
	Description string `json:"description" validate:"required,max=140"`
	OrderID     string `json:"orderId,omitempty" validate:"max=200"`
	PayerName   string `json:"payerName,omitempty" validate:"max=200"`
}

func (r CreateChargeRequest) toDomain() charge.Request {
	return charge.Request{
		Amount:      string(r.Amount),
		Description: r.Description,
		OrderID:     r.OrderID,
		PayerName:   r.PayerName,
	}
}

// --- Response DTOs ---

type CreateChargeResponse struct {
	TxID             string `json:"txid"`
	CopyPasteCode    string `json:"copyPasteCode"`
	QRImageBase64    string `json:"qrImageBase64"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}

func FromResult(res *charge.Result) *CreateChargeResponse {
	return &CreateChargeResponse{
		TxID:             res.TxID,
		CopyPasteCode:    res.CopyPasteCode,
		QRImageBase64:    res.QRImageBase64,
		ExpiresInSeconds: res.ExpiresInSeconds,
	}
}

// StatusResponse is the body of GET /api/v1/pix/status. Unknown charges carry
// only txid and status.
type StatusResponse struct {
	TxID       string     `json:"txid"`
	Status     string     `json:"status"`
	Amount     *float64   `json:"amount,omitempty"`
	EndToEndID string     `json:"endToEndId,omitempty"`
	PaidAt     *time.Time `json:"paidAt,omitempty"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
}

func FromRecord(rec *charge.Record) *StatusResponse {
	resp := &StatusResponse{
		TxID:   rec.TxID,
		Status: string(rec.Status),
	}
	if rec.Status == charge.StatusUnknown {
		return resp
	}
	if rec.IsPaid() {
		resp.EndToEndID = rec.EndToEndID
		resp.PaidAt = rec.PaidAt
	}
	amount := charge.CentsToFloat(rec.AmountCents)
	resp.Amount = &amount
	if !rec.CreatedAt.IsZero() {
		createdAt := rec.CreatedAt
		resp.CreatedAt = &createdAt
	}
	if !rec.UpdatedAt.IsZero() {
		updatedAt := rec.UpdatedAt
		resp.UpdatedAt = &updatedAt
	}
	return resp
}

// WebhookResponse acknowledges a notification delivery.
type WebhookResponse struct {
	Status  string `json:"status"`
	Applied int    `json:"applied"`
	Ignored int    `json:"ignored"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Detail  string `json:"detail,omitempty"`
}
