package handlers

import (
	"errors"
	"net/http"

	"dairy-billing/internal/backup"
	"dairy-billing/pkg/utils"
)

type BackupHandler struct {
	Service *backup.Service
}

func NewBackupHandler(s *backup.Service) *BackupHandler {
	return &BackupHandler{Service: s}
}

// Run uploads the data directory now.
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Run(r.Context())
	if errors.Is(err, backup.ErrDisabled) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, "Backup failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	utils.JSON(w, http.StatusOK, res)
}

func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	last := h.Service.Last()
	if last == nil {
		utils.JSON(w, http.StatusOK, map[string]any{"last_backup": nil})
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{"last_backup": last})
}
