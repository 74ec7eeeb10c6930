package controller

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cassiomorais/pixrelay/internal/domain/charge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmount_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input   string
		want    Amount
		wantErr bool
	}{
		{`10.00`, "10.00", false},
		{`10`, "10", false},
		{`"10.50"`, "10.50", false},
		{`null`, "", false},
		{`true`, "", true},
		{`{"v":1}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var a Amount
			err := json.Unmarshal([]byte(tt.input), &a)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, a)
		})
	}
}

func TestCreateChargeRequest_ToDomain(t *testing.T) {
	req := CreateChargeRequest{Amount: "10.00", Description: "order 42", OrderID: "42", PayerName: "Ana"}

	assert.Equal(t, charge.Request{
		Amount:      "10.00",
		Description: "order 42",
		OrderID:     "42",
		PayerName:   "Ana",
	}, req.toDomain())
}

func TestFromRecord_Unknown(t *testing.T) {
	resp := FromRecord(&charge.Record{TxID: "abc", Status: charge.StatusUnknown})

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"txid":"abc","status":"UNKNOWN"}`, string(body))
}

func TestFromRecord_Paid(t *testing.T) {
	paidAt := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	rec := &charge.Record{
		TxID:        "abc",
		Status:      charge.StatusPaid,
		AmountCents: 1000,
		EndToEndID:  "E1",
		PaidAt:      &paidAt,
		CreatedAt:   paidAt.Add(-time.Minute),
		UpdatedAt:   paidAt,
	}

	resp := FromRecord(rec)

	assert.Equal(t, "PAID", resp.Status)
	require.NotNil(t, resp.Amount)
	assert.Equal(t, 10.0, *resp.Amount)
	assert.Equal(t, "E1", resp.EndToEndID)
	assert.Equal(t, &paidAt, resp.PaidAt)
}

func TestFromRecord_PendingOmitsSettlement(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &charge.Record{
		TxID:        "abc",
		Status:      charge.StatusPending,
		AmountCents: 550,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}

	body, err := json.Marshal(FromRecord(rec))
	require.NoError(t, err)
	assert.JSONEq(t, `{"txid":"abc","status":"PENDING","amount":5.5,"createdAt":"2026-03-01T12:00:00Z","updatedAt":"2026-03-01T12:00:00Z"}`, string(body))
}

func TestFromResult(t *testing.T) {
	resp := FromResult(&charge.Result{TxID: "abc", CopyPasteCode: "000201", QRImageBase64: "iVBOR", ExpiresInSeconds: 300})

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"txid":"abc","copyPasteCode":"000201","qrImageBase64":"iVBOR","expiresInSeconds":300}`, string(body))
}
