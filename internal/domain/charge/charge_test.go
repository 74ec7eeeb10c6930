package charge

import (
	"strings"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/pixrelay/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name      string
		req       Request
		wantCents int64
		wantField string
	}{
		{"valid", Request{Amount: "10.00", Description: "order 42"}, 1000, ""},
		{"integer amount", Request{Amount: "25", Description: "x"}, 2500, ""},
		{"one decimal place", Request{Amount: "10.5", Description: "x"}, 1050, ""},
		{"largest storable amount", Request{Amount: "999999999999.99", Description: "x"}, MaxAmountCents, ""},
		{"above storable amount", Request{Amount: "1000000000000.00", Description: "x"}, 0, "amount"},
		{"three decimal places", Request{Amount: "10.005", Description: "x"}, 0, "amount"},
		{"exponent amount", Request{Amount: "1e2", Description: "x"}, 0, "amount"},
		{"hex amount", Request{Amount: "0x1p4", Description: "x"}, 0, "amount"},
		{"missing amount", Request{Description: "order 42"}, 0, "amount"},
		{"zero amount", Request{Amount: "0", Description: "order 42"}, 0, "amount"},
		{"negative amount", Request{Amount: "-1.00", Description: "order 42"}, 0, "amount"},
		{"garbage amount", Request{Amount: "ten", Description: "order 42"}, 0, "amount"},
		{"missing description", Request{Amount: "10.00"}, 0, "description"},
		{"blank description", Request{Amount: "10.00", Description: "   "}, 0, "description"},
		{"long description", Request{Amount: "10.00", Description: strings.Repeat("a", 141)}, 0, "description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cents, err := tt.req.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.wantCents, cents)
				return
			}
			var ve *domainErrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

func TestNewPendingRecord(t *testing.T) {
	rec := NewPendingRecord("abc", 1000)

	assert.Equal(t, "abc", rec.TxID)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, int64(1000), rec.AmountCents)
	assert.Nil(t, rec.PaidAt)
	assert.False(t, rec.IsPaid())
}

func TestRecord_Apply_PendingToPaid(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	paidAt := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	rec := *NewPendingRecord("abc", 1000)

	merged := rec.Apply(Update{
		Status:      StatusPaid,
		EndToEndID:  "E1",
		AmountCents: 999,
		PaidAt:      paidAt,
	}, now)

	assert.Equal(t, StatusPaid, merged.Status)
	assert.Equal(t, "E1", merged.EndToEndID)
	assert.Equal(t, int64(1000), merged.AmountCents, "original amount is preserved")
	require.NotNil(t, merged.PaidAt)
	assert.Equal(t, paidAt, *merged.PaidAt)
	assert.Equal(t, now, merged.UpdatedAt)
}

func TestRecord_Apply_PaidAtDefaultsToNow(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := *NewPendingRecord("abc", 1000)

	merged := rec.Apply(Update{Status: StatusPaid}, now)

	require.NotNil(t, merged.PaidAt)
	assert.Equal(t, now, *merged.PaidAt)
}

func TestRecord_Apply_KeepsPreviousEndToEndID(t *testing.T) {
	rec := Record{TxID: "abc", Status: StatusPaid, AmountCents: 1000, EndToEndID: "E1"}

	merged := rec.Apply(Update{Status: StatusPaid}, time.Now())

	assert.Equal(t, "E1", merged.EndToEndID)
}

func TestRecord_Apply_PaidNeverRevertsToPending(t *testing.T) {
	rec := Record{TxID: "abc", Status: StatusPaid, AmountCents: 1000, EndToEndID: "E1"}

	merged := rec.Apply(Update{Status: StatusPending}, time.Now())

	assert.Equal(t, StatusPaid, merged.Status)
}

func TestRecord_Apply_AmountFallsBackToUpdate(t *testing.T) {
	rec := Record{TxID: "abc", Status: StatusPending}

	merged := rec.Apply(Update{Status: StatusPaid, AmountCents: 1500}, time.Now())

	assert.Equal(t, int64(1500), merged.AmountCents)
}
