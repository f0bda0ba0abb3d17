package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/kramwallet/backend/internal/models"
	"github.com/kramwallet/backend/internal/services"
)

type DepositHandler struct {
	deposits  *services.DepositService
	validator *services.ValidationHelper
}

func NewDepositHandler(deposits *services.DepositService) *DepositHandler {
	return &DepositHandler{
		deposits:  deposits,
		validator: services.NewValidationHelper(),
	}
}

type depositCreateRequest struct {
	UserID int64           `json:"user_id" validate:"required,gt=0"`
	Amount decimal.Decimal `json:"amount"`
}

// CreateDeposit registers a deposit request. In test mode the balance
// is credited immediately; with a live provider the response carries
// the redirect URL to hand to the payer.
func (h *DepositHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	receipt, err := h.deposits.CreateDeposit(r.Context(), req.UserID, req.Amount)
	switch {
	case errors.Is(err, services.ErrInvalidAmount):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	case err != nil:
		services.SendErrorResponse(w, "Failed to create deposit", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"ok":           true,
		"mode":         receipt.Mode,
		"label":        receipt.Label,
		"redirect_url": receipt.RedirectURL,
	})
}

// DepositQR renders the payment link of a pending deposit as a QR code
// so the payer can scan it instead of following the redirect.
func (h *DepositHandler) DepositQR(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	if label == "" {
		services.SendErrorResponse(w, "Missing label", http.StatusBadRequest, nil)
		return
	}

	dep, err := h.deposits.FindByLabel(r.Context(), label)
	if err != nil {
		services.SendErrorResponse(w, "Failed to load deposit", http.StatusInternalServerError, nil)
		return
	}
	if dep == nil {
		services.SendErrorResponse(w, "Deposit not found", http.StatusNotFound, nil)
		return
	}
	if dep.Status != models.DepositPending || !h.deposits.Provider().Live() {
		services.SendErrorResponse(w, "Deposit has no payment link", http.StatusBadRequest, nil)
		return
	}

	url := h.deposits.Provider().PaymentURL(dep.UserID, dep.Amount, dep.Label)
	png, err := qrcode.Encode(url, qrcode.Medium, 256)
	if err != nil {
		services.SendErrorResponse(w, "Failed to render QR code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":      true,
		"redirect_url": url,
		"qrImage":      base64.StdEncoding.EncodeToString(png),
	})
}
