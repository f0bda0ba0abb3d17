package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kramwallet/backend/internal/money"
	"github.com/kramwallet/backend/internal/services"
)

type WalletHandler struct {
	ledger    *services.LedgerService
	transfers *services.TransferService
	validator *services.ValidationHelper
}

func NewWalletHandler(ledger *services.LedgerService, transfers *services.TransferService) *WalletHandler {
	return &WalletHandler{
		ledger:    ledger,
		transfers: transfers,
		validator: services.NewValidationHelper(),
	}
}

type createUserRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

type transferRequest struct {
	FromUserID int64           `json:"from_user_id" validate:"required,gt=0"`
	ToUserID   int64           `json:"to_user_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

func queryUserID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	return id, err == nil && id > 0
}

// CreateUser idempotently registers a user with a zero balance.
func (h *WalletHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := h.ledger.EnsureUser(r.Context(), req.UserID); err != nil {
		services.SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

func (h *WalletHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	ids, err := h.ledger.ListUsers(r.Context())
	if err != nil {
		services.SendErrorResponse(w, "Failed to list users", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"user_ids": ids})
}

func (h *WalletHandler) GetAdmin(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		services.SendErrorResponse(w, "Invalid user id", http.StatusBadRequest, nil)
		return
	}

	isAdmin, err := h.ledger.IsAdmin(r.Context(), userID)
	if err != nil {
		services.SendErrorResponse(w, "Failed to read admin flag", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"is_admin": isAdmin})
}

func (h *WalletHandler) MakeAdmin(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		services.SendErrorResponse(w, "Invalid user id", http.StatusBadRequest, nil)
		return
	}

	if err := h.ledger.SetAdmin(r.Context(), userID); err != nil {
		services.SendErrorResponse(w, "Failed to set admin flag", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

// Me ensures the user exists and returns the balance as a fixed
// two-decimal string.
func (h *WalletHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := queryUserID(r)
	if !ok {
		services.SendErrorResponse(w, "Invalid user_id", http.StatusBadRequest, nil)
		return
	}

	if err := h.ledger.EnsureUser(r.Context(), userID); err != nil {
		services.SendErrorResponse(w, "Failed to load user", http.StatusInternalServerError, nil)
		return
	}
	balance, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		services.SendErrorResponse(w, "Failed to load balance", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"user_id": userID,
		"balance": money.Format(balance),
	})
}

func (h *WalletHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := queryUserID(r)
	if !ok {
		services.SendErrorResponse(w, "Invalid user_id", http.StatusBadRequest, nil)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	if err := h.ledger.EnsureUser(r.Context(), userID); err != nil {
		services.SendErrorResponse(w, "Failed to load user", http.StatusInternalServerError, nil)
		return
	}
	items, err := h.ledger.ListHistory(r.Context(), userID, limit)
	if err != nil {
		services.SendErrorResponse(w, "Failed to load history", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"items": items})
}

// Transfer executes a balance-to-balance transfer. Rejections (self
// transfer, bad amount, insufficient funds) come back as 400 with a
// distinct message; faults as 500, so callers can always tell "not
// enough funds" from "system unavailable".
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	newBalance, err := h.transfers.Transfer(r.Context(), req.FromUserID, req.ToUserID, req.Amount)
	switch {
	case errors.Is(err, services.ErrSelfTransfer),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInsufficientFunds):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	case err != nil:
		services.SendErrorResponse(w, "Transfer failed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"ok":           true,
		"from_balance": money.Format(newBalance),
	})
}
