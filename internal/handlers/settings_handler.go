package handlers

import (
	"encoding/json"
	"net/http"

	"dairy-billing/internal/models"
	"dairy-billing/internal/services"
	"dairy-billing/pkg/utils"
)

// SettingsHandler manages the business profile printed on bills.
type SettingsHandler struct {
	Profile  *services.ProfileService
	Ledgers  *services.LedgerService
	Provider string
}

func NewSettingsHandler(profile *services.ProfileService, ledgers *services.LedgerService, provider string) *SettingsHandler {
	return &SettingsHandler{Profile: profile, Ledgers: ledgers, Provider: provider}
}

func (h *SettingsHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.Profile.Get(r.Context())
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{"profile": p, "delivery_provider": h.Provider})
}

func (h *SettingsHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.BusinessProfile
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	p, err := h.Profile.Update(r.Context(), req)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, p)
}

// Preview renders a sample bill for ?period= (default: current month).
func (h *SettingsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	p := h.Ledgers.CurrentPeriod()
	if q := r.URL.Query().Get("period"); q != "" {
		parsed, err := models.ParsePeriod(q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		p = parsed
	}
	text, err := h.Profile.Preview(r.Context(), p)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"message": text})
}
