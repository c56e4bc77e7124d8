package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/inaiurai/jobmeter/internal/ledger"
	"github.com/inaiurai/jobmeter/internal/validate"
)

// UsageHandler serves /usage endpoints. Gate denials and insufficient balance
// are 200 responses with ok=false.
type UsageHandler struct {
	Ledger    ledger.Service
	Validator BodyValidator
	Logger    *slog.Logger
}

type usageRequest struct {
	AccountID  string `json:"accountId"`
	FeatureKey string `json:"featureKey"`
}

type chargeResponse struct {
	OK             bool         `json:"ok"`
	Consumed       json.Number  `json:"consumed"`
	NewBalance     json.Number  `json:"newBalance"`
	BypassedCharge bool         `json:"bypassedCharge,omitempty"`
	ErrorCode      string       `json:"errorCode,omitempty"`
	Required       *json.Number `json:"required,omitempty"`
	Available      *json.Number `json:"available,omitempty"`
	EntryID        *uuid.UUID   `json:"entryId,omitempty"`
}

func (h *UsageHandler) decode(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	body := readValidated(w, r, h.Validator, validate.Usage)
	if body == nil {
		return uuid.Nil, "", false
	}
	var req usageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidBody", "invalid JSON")
		return uuid.Nil, "", false
	}
	id, err := uuid.Parse(req.AccountID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidBody", "invalid accountId")
		return uuid.Nil, "", false
	}
	return id, req.FeatureKey, true
}

// Charge handles POST /usage/charge.
func (h *UsageHandler) Charge(w http.ResponseWriter, r *http.Request) {
	accountID, featureKey, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := h.Ledger.ChargeFeature(r.Context(), accountID, featureKey)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "AccountNotFound", "")
		return
	}
	if err != nil {
		h.Logger.Error("charge feature", "account_id", accountID, "feature_key", featureKey, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal", "")
		return
	}
	writeJSON(w, http.StatusOK, chargeResponse{
		OK:             res.OK,
		Consumed:       number(res.Consumed),
		NewBalance:     number(res.NewBalance),
		BypassedCharge: res.BypassedCharge,
		ErrorCode:      res.ErrorCode,
		Required:       numberPtr(res.Required),
		Available:      numberPtr(res.Available),
		EntryID:        res.EntryID,
	})
}

type checkResponse struct {
	Allowed   bool        `json:"allowed"`
	ErrorCode string      `json:"errorCode,omitempty"`
	Cost      json.Number `json:"cost"`
	Bypassed  bool        `json:"bypassed,omitempty"`
}

// Check handles POST /usage/check: the gate decision without a charge.
func (h *UsageHandler) Check(w http.ResponseWriter, r *http.Request) {
	accountID, featureKey, ok := h.decode(w, r)
	if !ok {
		return
	}
	d, err := h.Ledger.Check(r.Context(), accountID, featureKey)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "AccountNotFound", "")
		return
	}
	if err != nil {
		h.Logger.Error("check feature", "account_id", accountID, "feature_key", featureKey, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal", "")
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{
		Allowed:   d.Allowed,
		ErrorCode: string(d.Reason),
		Cost:      number(d.Cost),
		Bypassed:  d.Bypassed,
	})
}

type ledgerEntryResponse struct {
	ID            uuid.UUID   `json:"id"`
	FeatureKey    string      `json:"featureKey"`
	AmountDebited json.Number `json:"amountDebited"`
	BalanceBefore json.Number `json:"balanceBefore"`
	BalanceAfter  json.Number `json:"balanceAfter"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// History handles GET /usage/ledger?accountId=&limit=.
func (h *UsageHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accountID, err := uuid.Parse(q.Get("accountId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidQuery", "invalid accountId")
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidQuery", err.Error())
		return
	}

	entries, err := h.Ledger.History(r.Context(), accountID, limit)
	if err != nil {
		h.Logger.Error("ledger history", "account_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal", "")
		return
	}
	out := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ledgerEntryResponse{
			ID:            e.ID,
			FeatureKey:    e.FeatureKey,
			AmountDebited: number(e.AmountDebited),
			BalanceBefore: number(e.BalanceBefore),
			BalanceAfter:  number(e.BalanceAfter),
			CreatedAt:     e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
