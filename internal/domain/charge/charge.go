package charge

import (
	"strings"
	"time"

	"github.com/cassiomorais/pixrelay/internal/domain/errors"
)

// Status is the payment state tracked for a charge.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusUnknown Status = "UNKNOWN"
)

// MaxDescriptionLength is the longest payer-facing message a Pix charge accepts.
const MaxDescriptionLength = 140

// Request is a merchant request to create a charge.
type Request struct {
	Amount      string // decimal text, e.g. "10.00"
	Description string
	OrderID     string
	PayerName   string
	// ClientID is the authenticated merchant system, empty when API auth is off.
	ClientID string
}

// Validate checks the request and returns the amount in cents.
func (r Request) Validate() (int64, error) {
	if strings.TrimSpace(r.Amount) == "" {
		return 0, errors.NewValidationError("amount", "is required")
	}
	cents, err := ParseAmount(r.Amount)
	if err != nil {
		return 0, errors.NewValidationError("amount", "must be a positive decimal with at most two places")
	}
	desc := strings.TrimSpace(r.Description)
	if desc == "" {
		return 0, errors.NewValidationError("description", "is required")
	}
	if len([]rune(desc)) > MaxDescriptionLength {
		return 0, errors.NewValidationError("description", "must be at most 140 characters")
	}
	return cents, nil
}

// Result is what the merchant receives after a charge is created.
type Result struct {
	TxID             string
	CopyPasteCode    string
	QRImageBase64    string
	ExpiresInSeconds int
}

// Record is the stored state of a charge.
type Record struct {
	TxID        string
	Status      Status
	AmountCents int64
	EndToEndID  string
	PaidAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewPendingRecord creates the record written when a charge is issued.
func NewPendingRecord(txid string, amountCents int64) *Record {
	now := time.Now().UTC()
	return &Record{
		TxID:        txid,
		Status:      StatusPending,
		AmountCents: amountCents,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Update is a partial change applied to an existing record.
type Update struct {
	Status      Status
	EndToEndID  string
	AmountCents int64 // used only when the record has no amount
	PaidAt      time.Time
}

// Apply returns the record with u merged in. A paid record never goes back
// to pending, and the original amount always wins over the update's.
func (r Record) Apply(u Update, now time.Time) Record {
	merged := r
	merged.UpdatedAt = now

	if u.Status != "" && !(r.Status == StatusPaid && u.Status == StatusPending) {
		merged.Status = u.Status
	}
	if u.EndToEndID != "" {
		merged.EndToEndID = u.EndToEndID
	}
	if merged.AmountCents <= 0 {
		merged.AmountCents = u.AmountCents
	}
	if u.Status == StatusPaid {
		paidAt := u.PaidAt
		if paidAt.IsZero() {
			paidAt = now
		}
		paidAt = paidAt.UTC()
		merged.PaidAt = &paidAt
	}
	return merged
}

// IsPaid reports whether the charge has been settled.
func (r *Record) IsPaid() bool {
	return r != nil && r.Status == StatusPaid
}
