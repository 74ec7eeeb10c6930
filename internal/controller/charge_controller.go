package controller

import (
	"context"
	"net/http"

	"github.com/cassiomorais/pixrelay/internal/domain/charge"
	customMW "github.com/cassiomorais/pixrelay/internal/middleware"
)

// ChargeService is what the charge endpoints need from the service layer.
type ChargeService interface {
	CreateCharge(ctx context.Context, req charge.Request) (*charge.Result, error)
	Status(ctx context.Context, txid string) (*charge.Record, error)
}

// ChargeController handles charge creation and status queries.
type ChargeController struct {
	charges ChargeService
}

func NewChargeController(charges ChargeService) *ChargeController {
	return &ChargeController{charges: charges}
}

// CreateCharge handles POST /api/v1/pix/charges
func (h *ChargeController) CreateCharge(w http.ResponseWriter, r *http.Request) {
	var req CreateChargeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	domainReq := req.toDomain()
	if clientID, ok := customMW.GetClientID(r.Context()); ok {
		domainReq.ClientID = clientID
	}

	res, err := h.charges.CreateCharge(r.Context(), domainReq)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromResult(res))
}

// Status handles GET /api/v1/pix/status?txid=
func (h *ChargeController) Status(w http.ResponseWriter, r *http.Request) {
	rec, err := h.charges.Status(r.Context(), r.URL.Query().Get("txid"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromRecord(rec))
}
