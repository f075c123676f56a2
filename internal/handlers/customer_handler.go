package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"dairy-billing/internal/models"
	"dairy-billing/internal/services"
	"dairy-billing/pkg/utils"

	"github.com/gorilla/mux"
)

type CustomerHandler struct {
	Service *services.CustomerService
	Billing *services.BillingService
}

func NewCustomerHandler(s *services.CustomerService, billing *services.BillingService) *CustomerHandler {
	return &CustomerHandler{Service: s, Billing: billing}
}

func (h *CustomerHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req models.CustomerInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	customer, err := h.Service.CreateCustomer(r.Context(), req)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, customer)
}

func (h *CustomerHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := h.Service.GetCustomer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, customer)
}

// ListCustomers serves ?q= search and ?status=deleted.
func (h *CustomerHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	var (
		customers []models.Customer
		err       error
	)
	switch {
	case r.URL.Query().Get("status") == "deleted":
		customers, err = h.Service.ListDeleted(r.Context())
	case r.URL.Query().Has("q"):
		customers, err = h.Service.Search(r.Context(), r.URL.Query().Get("q"))
	default:
		customers, err = h.Service.ListCustomers(r.Context())
	}
	if err != nil {
		utils.Error(w, err)
		return
	}
	if customers == nil {
		customers = []models.Customer{}
	}
	utils.JSON(w, http.StatusOK, customers)
}

func (h *CustomerHandler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req models.CustomerInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	customer, err := h.Service.UpdateCustomer(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, customer)
}

func (h *CustomerHandler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Service.DeleteCustomers(r.Context(), []string{mux.Vars(r)["id"]}); err != nil {
		utils.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCustomers removes a batch as one undoable action.
func (h *CustomerHandler) DeleteCustomers(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteCustomersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	removed, err := h.Service.DeleteCustomers(r.Context(), req.IDs)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{"deleted": removed})
}

func (h *CustomerHandler) Undo(w http.ResponseWriter, r *http.Request) {
	ev, err := h.Service.Undo(r.Context())
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{"undone": ev, "remaining": h.Service.UndoDepth()})
}

func (h *CustomerHandler) NextID(w http.ResponseWriter, r *http.Request) {
	id, err := h.Service.NextID(r.Context())
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"next_id": id})
}

// Totals returns ?year= or lifetime totals for one customer.
func (h *CustomerHandler) Totals(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var (
		agg models.Aggregate
		err error
	)
	if y := r.URL.Query().Get("year"); y != "" {
		year, convErr := strconv.Atoi(y)
		if convErr != nil {
			http.Error(w, "Invalid year", http.StatusBadRequest)
			return
		}
		agg, err = h.Billing.YearAggregate(r.Context(), id, year)
	} else {
		agg, err = h.Billing.LifetimeAggregate(r.Context(), id)
	}
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{"customer_id": id, "totals": agg})
}
