package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"dairy-billing/internal/apperr"
	"dairy-billing/internal/cache"
	"dairy-billing/internal/models"
	"dairy-billing/internal/services"
	"dairy-billing/pkg/utils"

	"github.com/gorilla/mux"
)

type LedgerHandler struct {
	Service *services.LedgerService
	Billing *services.BillingService
}

func NewLedgerHandler(s *services.LedgerService, billing *services.BillingService) *LedgerHandler {
	return &LedgerHandler{Service: s, Billing: billing}
}

// periodVar reads the {period} route variable (2024-03 or 2024_03).
func periodVar(r *http.Request) (models.Period, error) {
	p, err := models.ParsePeriod(mux.Vars(r)["period"])
	if err != nil {
		return models.Period{}, apperr.Validation("period", "%v", err)
	}
	if !p.Valid() {
		return models.Period{}, apperr.Validation("period", "out of range")
	}
	return p, nil
}

// ListPeriods lists months that have a ledger, optionally only ?year=.
func (h *LedgerHandler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.Service.ListPeriods(r.Context())
	if err != nil {
		utils.Error(w, err)
		return
	}
	out := []models.Period{}
	year, _ := strconv.Atoi(r.URL.Query().Get("year"))
	for _, p := range periods {
		if year == 0 || p.Year == year {
			out = append(out, p)
		}
	}
	utils.JSON(w, http.StatusOK, map[string]any{"periods": out, "current": h.Service.CurrentPeriod()})
}

type ledgerResponse struct {
	*models.MonthlyLedger
	Totals models.Aggregate `json:"totals"`
}

func (h *LedgerHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	p, err := periodVar(r)
	if err != nil {
		utils.Error(w, err)
		return
	}
	ledger, err := h.Service.Get(r.Context(), p)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, ledgerResponse{MonthlyLedger: ledger, Totals: services.ComputeMonthAggregate(ledger)})
}

// CreateLedger creates a month at the given rate. The rate cannot change later.
func (h *LedgerHandler) CreateLedger(w http.ResponseWriter, r *http.Request) {
	p, err := periodVar(r)
	if err != nil {
		utils.Error(w, err)
		return
	}
	var req models.CreateLedgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ledger, rep, err := h.Service.CreateLedger(r.Context(), p, req.Rate)
	if err != nil {
		utils.Error(w, err)
		return
	}
	cache.InvalidateMonth(r.Context(), p.Key())
	utils.JSON(w, http.StatusCreated, map[string]any{"ledger": ledger, "sync": rep})
}

// Sync reconciles the month with the roster, creating it at the default rate if needed.
func (h *LedgerHandler) Sync(w http.ResponseWriter, r *http.Request) {
	p, err := periodVar(r)
	if err != nil {
		utils.Error(w, err)
		return
	}
	_, rep, err := h.Service.Sync(r.Context(), p)
	if err != nil {
		utils.Error(w, err)
		return
	}
	cache.InvalidateMonth(r.Context(), p.Key())
	utils.JSON(w, http.StatusOK, rep)
}

func (h *LedgerHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	p, err := periodVar(r)
	if err != nil {
		utils.Error(w, err)
		return
	}
	var req models.SetQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	row, err := h.Service.SetQuantity(r.Context(), p, mux.Vars(r)["id"], req.Day, req.Quantity)
	if err != nil {
		utils.Error(w, err)
		return
	}
	cache.InvalidateMonth(r.Context(), p.Key())
	utils.JSON(w, http.StatusOK, row)
}

func (h *LedgerHandler) CustomerTotals(w http.ResponseWriter, r *http.Request) {
	p, err := periodVar(r)
	if err != nil {
		utils.Error(w, err)
		return
	}
	row, totals, err := h.Billing.CustomerTotals(r.Context(), p, mux.Vars(r)["id"])
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{"row": row, "totals": totals})
}
