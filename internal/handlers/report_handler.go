package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"dairy-billing/internal/services"
	"dairy-billing/internal/timeutil"
	"dairy-billing/pkg/utils"

	"github.com/gorilla/mux"
)

const xlsxType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ReportHandler struct {
	Service *services.ReportService
}

func NewReportHandler(s *services.ReportService) *ReportHandler {
	return &ReportHandler{Service: s}
}

func wantsXLSX(r *http.Request) bool {
	return r.URL.Query().Get("format") == "xlsx"
}

func (h *ReportHandler) MonthSummary(w http.ResponseWriter, r *http.Request) {
	p, err := periodVar(r)
	if err != nil {
		utils.Error(w, err)
		return
	}
	summary, err := h.Service.MonthSummary(r.Context(), p)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, summary)
}

// Monthly serves JSON, or the three-sheet workbook with ?format=xlsx.
func (h *ReportHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	p, err := periodVar(r)
	if err != nil {
		utils.Error(w, err)
		return
	}
	rows, err := h.Service.MonthlyReport(r.Context(), p)
	if err != nil {
		utils.Error(w, err)
		return
	}
	if !wantsXLSX(r) {
		utils.JSON(w, http.StatusOK, rows)
		return
	}
	data, err := h.Service.MonthlyReportXLSX(rows)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.File(w, xlsxType, fmt.Sprintf("%s_%d_Monthly_Report.xlsx", p.Month, p.Year), data)
}

func (h *ReportHandler) Yearly(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(mux.Vars(r)["year"])
	if err != nil {
		http.Error(w, "Invalid year", http.StatusBadRequest)
		return
	}
	rows, err := h.Service.YearlyReport(r.Context(), year)
	if err != nil {
		utils.Error(w, err)
		return
	}
	if !wantsXLSX(r) {
		utils.JSON(w, http.StatusOK, rows)
		return
	}
	data, err := h.Service.YearlyReportXLSX(year, rows)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.File(w, xlsxType, fmt.Sprintf("Year_%d_Report.xlsx", year), data)
}

func (h *ReportHandler) AllRecords(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.AllRecords(r.Context())
	if err != nil {
		utils.Error(w, err)
		return
	}
	if !wantsXLSX(r) {
		utils.JSON(w, http.StatusOK, rows)
		return
	}
	data, err := h.Service.AllRecordsXLSX(rows)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.File(w, xlsxType, fmt.Sprintf("All_Customer_Records_%s.xlsx", timeutil.Now().Format("20060102")), data)
}

func (h *ReportHandler) BillPDF(w http.ResponseWriter, r *http.Request) {
	p, err := periodVar(r)
	if err != nil {
		utils.Error(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	data, err := h.Service.BillPDF(r.Context(), p, id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.File(w, "application/pdf", fmt.Sprintf("bill_%s_%s.pdf", p.Key(), id), data)
}

// BillZip downloads every bill of the month.
func (h *ReportHandler) BillZip(w http.ResponseWriter, r *http.Request) {
	p, err := periodVar(r)
	if err != nil {
		utils.Error(w, err)
		return
	}
	data, err := h.Service.BillPDFZip(r.Context(), p)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.File(w, "application/zip", fmt.Sprintf("bills_%s.zip", p.Key()), data)
}

func (h *ReportHandler) RosterCSV(w http.ResponseWriter, r *http.Request) {
	data, err := h.Service.RosterCSV(r.Context())
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.File(w, "text/csv", "customers.csv", data)
}
