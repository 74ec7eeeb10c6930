package testutil

import (
	"time"

	"github.com/cassiomorais/pixrelay/internal/domain/charge"
)

// TestTxID is a well-formed txid that no test generates by accident.
const TestTxID = "fixturetxid0000000000000001"

func NewChargeRequest(amount, description string) charge.Request {
	return charge.Request{Amount: amount, Description: description}
}

func NewPendingRecord(txid string, amountCents int64) *charge.Record {
	return charge.NewPendingRecord(txid, amountCents)
}

func NewPaidRecord(txid string, amountCents int64, endToEndID string) *charge.Record {
	rec := charge.NewPendingRecord(txid, amountCents)
	paidAt := time.Now().UTC()
	rec.Status = charge.StatusPaid
	rec.EndToEndID = endToEndID
	rec.PaidAt = &paidAt
	return rec
}
