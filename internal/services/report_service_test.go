package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"dairy-billing/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// reportEnv: C_1 active, C_2 deleted with history, C_3 active without history.
// The clock sits in April so roster changes touch no ledger.
func reportEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	e := newEnv(t, fixedClock(2024, time.April, 2))
	e.saveProfile(t)
	e.addCustomer(t, "Asha", "9876543210")
	e.addCustomer(t, "Ravi", "9123456780")
	e.addCustomer(t, "Meena", "9000000001")
	e.saveLedger(t, feb2024, 50,
		dailyRow("C_1", "Asha", "9876543210", 20, "1"),
		dailyRow("C_2", "Ravi", "9123456780", 10, "1"),
	)
	e.saveLedger(t, mar2024, 50, dailyRow("C_1", "Asha", "9876543210", 30, "1"))
	_, err := e.customers.DeleteCustomers(ctx, []string{"C_2"})
	require.NoError(t, err)
	return e
}

func TestMonthlyReport(t *testing.T) {
	ctx := context.Background()
	e := reportEnv(t)

	rows, err := e.reports.MonthlyReport(ctx, feb2024)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Asha street", rows[0].Address)
	assert.Equal(t, 1000.0, rows[0].TotalAmount)
	assert.Equal(t, "Ravi street", rows[1].Address, "deleted customers keep their address")
	assert.Contains(t, rows[1].Message, "Dear Ravi,")

	data, err := e.reports.MonthlyReportXLSX(rows)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Text", "WhatsApp_Message", "WhatsApp_Link"}, f.GetSheetList())

	link, err := f.GetCellValue("WhatsApp_Link", "E2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "https://web.whatsapp.com/send?phone=919876543210&text="))
}

func TestYearlyReport(t *testing.T) {
	ctx := context.Background()
	e := reportEnv(t)

	rows, err := e.reports.YearlyReport(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "C_1", rows[0].CustomerID)
	assert.Equal(t, 50.0, rows[0].TotalQuantity)
	assert.Equal(t, 2500.0, rows[0].TotalAmount)
	assert.Equal(t, models.RecordStatusDeletedHis, rows[1].Status)

	data, err := e.reports.YearlyReportXLSX(2024, rows)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Year 2024"}, f.GetSheetList())

	none, err := e.reports.YearlyReport(ctx, 2020)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAllRecords(t *testing.T) {
	ctx := context.Background()
	e := reportEnv(t)

	rows, err := e.reports.AllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"C_1", "C_3", "C_2"}, []string{rows[0].CustomerID, rows[1].CustomerID, rows[2].CustomerID})
	assert.Equal(t, models.RecordStatusActive, rows[1].Status)
	assert.Zero(t, rows[1].TotalAmount)
	assert.Equal(t, models.RecordStatusDeletedHis, rows[2].Status)
	assert.Equal(t, 500.0, rows[2].TotalAmount)

	data, err := e.reports.AllRecordsXLSX(rows)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"All Records"}, f.GetSheetList())
	status, _ := f.GetCellValue("All Records", "H4")
	assert.Equal(t, models.RecordStatusDeletedHis, status)
}

func TestMonthSummary(t *testing.T) {
	ctx := context.Background()
	e := reportEnv(t)
	require.NoError(t, e.status.SaveSent(ctx, feb2024, []models.SentRecord{{CustomerID: "C_1"}}))

	sum, err := e.reports.MonthSummary(ctx, feb2024)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Customers)
	assert.Equal(t, 30.0, sum.Quantity)
	assert.Equal(t, 1500.0, sum.Amount)
	assert.Equal(t, 1, sum.Sent)
	assert.Equal(t, 1, sum.Unsent)
}

func TestBillPDFs(t *testing.T) {
	ctx := context.Background()
	e := reportEnv(t)

	pdf, err := e.reports.BillPDF(ctx, feb2024, "C_1")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	data, err := e.reports.BillPDFZip(ctx, feb2024)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"2024_02_C_1_9876543210.pdf", "2024_02_C_2_9123456780.pdf"}, names)
}

func TestRosterCSV(t *testing.T) {
	e := reportEnv(t)
	data, err := e.reports.RosterCSV(context.Background())
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "CID", records[0][1])
	assert.Equal(t, "C_3", records[2][1])
}
