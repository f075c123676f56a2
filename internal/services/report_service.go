package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"dairy-billing/internal/cache"
	"dairy-billing/internal/logging"
	"dairy-billing/internal/models"
	"dairy-billing/internal/repositories"
	"dairy-billing/internal/timeutil"
	"dairy-billing/internal/whatsapp"

	"github.com/jung-kurt/gofpdf/v2"
	"go.uber.org/zap"
)

// ReportService builds the monthly, yearly and all-records views and their
// downloadable files.
type ReportService struct {
	Roster  *repositories.CustomerRepository
	Billing *BillingService
	Status  *repositories.SendStatusRepository
	Profile *ProfileService

	clock timeutil.Clock
	log   *zap.Logger
}

func NewReportService(
	roster *repositories.CustomerRepository,
	billing *BillingService,
	status *repositories.SendStatusRepository,
	profile *ProfileService,
	clock timeutil.Clock,
	logger *zap.Logger,
) *ReportService {
	if clock == nil {
		clock = timeutil.Now
	}
	return &ReportService{
		Roster:  roster,
		Billing: billing,
		Status:  status,
		Profile: profile,
		clock:   clock,
		log:     logging.OrNop(logger).Named("reports"),
	}
}

type rosterIndex struct {
	active  map[string]models.Customer
	deleted map[string]models.Customer
	order   []models.Customer
}

func (s *ReportService) rosterIndex(ctx context.Context) (*rosterIndex, error) {
	active, err := s.Roster.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	deleted, err := s.Roster.ListDeleted(ctx)
	if err != nil {
		return nil, err
	}
	idx := &rosterIndex{
		active:  make(map[string]models.Customer, len(active)),
		deleted: make(map[string]models.Customer, len(deleted)),
		order:   active,
	}
	for _, c := range active {
		idx.active[c.ID] = c
	}
	for _, c := range deleted {
		idx.deleted[c.ID] = c
	}
	return idx, nil
}

// describe prefers current roster details and falls back to what the ledger remembers.
func (r *rosterIndex) describe(id, name, phone string) (models.Customer, string) {
	if c, ok := r.active[id]; ok {
		return c, models.RecordStatusActive
	}
	c := models.Customer{ID: id, Name: name, Phone: phone}
	if d, ok := r.deleted[id]; ok {
		c.Address = d.Address
		if c.Name == "" {
			c.Name = d.Name
		}
		if c.Phone == "" {
			c.Phone = d.Phone
		}
	}
	return c, models.RecordStatusDeletedHis
}

// MonthlyReport lists every ledger row of p with its totals and bill text.
func (s *ReportService) MonthlyReport(ctx context.Context, p models.Period) ([]models.MonthlyReportRow, error) {
	ledger, err := s.Billing.Ledgers.Load(ctx, p)
	if err != nil {
		return nil, err
	}
	idx, err := s.rosterIndex(ctx)
	if err != nil {
		return nil, err
	}
	profile, err := s.Profile.Get(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]models.MonthlyReportRow, 0, len(ledger.Rows))
	for _, lr := range ledger.Rows {
		c, _ := idx.describe(lr.CustomerID, lr.Name, lr.Phone)
		t := ComputeTotals(lr, ledger.Rate)
		rows = append(rows, models.MonthlyReportRow{
			CustomerID:    c.ID,
			Name:          c.Name,
			Phone:         c.Phone,
			Address:       c.Address,
			TotalQuantity: t.Quantity,
			TotalAmount:   t.Amount,
			Message:       ComposeBill(c, p, t, *profile),
		})
	}
	return rows, nil
}

// YearlyReport aggregates every customer that has a row in any ledger of year.
func (s *ReportService) YearlyReport(ctx context.Context, year int) ([]models.CustomerAggregateRow, error) {
	ledgers, err := s.Billing.LoadLedgers(ctx, func(p models.Period) bool { return p.Year == year })
	if err != nil {
		return nil, err
	}
	idx, err := s.rosterIndex(ctx)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var customers []models.Customer
	status := map[string]string{}
	for _, l := range ledgers {
		for _, lr := range l.Rows {
			if seen[lr.CustomerID] {
				continue
			}
			seen[lr.CustomerID] = true
			c, st := idx.describe(lr.CustomerID, lr.Name, lr.Phone)
			customers = append(customers, c)
			status[c.ID] = st
		}
	}
	sortByNumber(customers)

	out := make([]models.CustomerAggregateRow, 0, len(customers))
	for _, c := range customers {
		agg := ComputeYearAggregate(c.ID, year, ledgers)
		out = append(out, aggregateRow(c, status[c.ID], agg))
	}
	return out, nil
}

// AllRecords lists active customers in roster order followed by customers
// that only survive in ledgers, each with lifetime totals.
func (s *ReportService) AllRecords(ctx context.Context) ([]models.CustomerAggregateRow, error) {
	ledgers, err := s.Billing.LoadLedgers(ctx, nil)
	if err != nil {
		return nil, err
	}
	idx, err := s.rosterIndex(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.CustomerAggregateRow, 0, len(idx.order))
	for _, c := range idx.order {
		out = append(out, aggregateRow(c, models.RecordStatusActive, ComputeLifetimeAggregate(c.ID, ledgers)))
	}

	seen := map[string]bool{}
	var history []models.Customer
	for _, l := range ledgers {
		for _, lr := range l.Rows {
			if _, active := idx.active[lr.CustomerID]; active || seen[lr.CustomerID] {
				continue
			}
			seen[lr.CustomerID] = true
			c, _ := idx.describe(lr.CustomerID, lr.Name, lr.Phone)
			history = append(history, c)
		}
	}
	sortByNumber(history)
	for _, c := range history {
		out = append(out, aggregateRow(c, models.RecordStatusDeletedHis, ComputeLifetimeAggregate(c.ID, ledgers)))
	}
	return out, nil
}

func aggregateRow(c models.Customer, status string, agg models.Aggregate) models.CustomerAggregateRow {
	return models.CustomerAggregateRow{
		CustomerID:    c.ID,
		Name:          c.Name,
		Phone:         c.Phone,
		Address:       c.Address,
		Status:        status,
		Months:        agg.Months,
		TotalQuantity: agg.Quantity,
		TotalAmount:   agg.Amount,
	}
}

// MonthSummary is the dashboard figure for one month. Display only.
func (s *ReportService) MonthSummary(ctx context.Context, p models.Period) (*models.MonthSummary, error) {
	key := cache.MonthSummaryKey(p.Key())
	var cached models.MonthSummary
	if cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	ledger, agg, err := s.Billing.MonthAggregate(ctx, p)
	if err != nil {
		return nil, err
	}
	sent, err := s.Status.LoadSent(ctx, p)
	if err != nil {
		return nil, err
	}
	summary := &models.MonthSummary{
		Period:    p,
		Rate:      ledger.Rate,
		Customers: len(ledger.Rows),
		Quantity:  agg.Quantity,
		Amount:    agg.Amount,
		Sent:      len(sent),
		Unsent:    len(ledger.Rows) - len(sent),
	}
	cache.SetJSON(ctx, key, summary, cache.MonthSummaryTTL)
	return summary, nil
}

// MonthlyReportXLSX writes the Text, WhatsApp_Message and WhatsApp_Link sheets.
func (s *ReportService) MonthlyReportXLSX(rows []models.MonthlyReportRow) ([]byte, error) {
	text := make([][]any, len(rows))
	msgs := make([][]any, len(rows))
	links := make([][]any, len(rows))
	for i, r := range rows {
		n := i + 1
		text[i] = []any{n, r.CustomerID, r.Name, r.Phone, r.Address, r.TotalQuantity, r.TotalAmount}
		msgs[i] = []any{n, r.CustomerID, r.Name, r.Phone, r.Message}
		link := ""
		if phone, err := whatsapp.NormalizePhone(r.Phone); err == nil {
			link = WhatsAppWebLink(phone, r.Message)
		}
		links[i] = []any{n, r.CustomerID, r.Name, r.Phone, link}
	}
	return repositories.ExportWorkbook(
		repositories.Sheet{
			Name:   "Text",
			Header: []string{"S.No", "CID", "Name", "Phone", "Address", "Total Liters", "Total Amount"},
			Rows:   text,
			Widths: map[string]float64{"C": 24, "D": 14, "E": 30, "F": 14, "G": 14},
		},
		repositories.Sheet{
			Name:   "WhatsApp_Message",
			Header: []string{"S.No", "CID", "Name", "Phone", "WhatsApp Message"},
			Rows:   msgs,
			Widths: map[string]float64{"C": 24, "D": 14, "E": 60},
			Wrap:   true,
		},
		repositories.Sheet{
			Name:   "WhatsApp_Link",
			Header: []string{"S.No", "CID", "Name", "Phone", "WhatsApp Link"},
			Rows:   links,
			Widths: map[string]float64{"C": 24, "D": 14, "E": 80},
		},
	)
}

// YearlyReportXLSX writes one sheet titled "Year <yyyy>".
func (s *ReportService) YearlyReportXLSX(year int, rows []models.CustomerAggregateRow) ([]byte, error) {
	data := make([][]any, len(rows))
	for i, r := range rows {
		data[i] = []any{i + 1, r.CustomerID, r.Name, r.Phone, r.Address, r.TotalQuantity, r.TotalAmount}
	}
	return repositories.ExportWorkbook(repositories.Sheet{
		Name:   fmt.Sprintf("Year %d", year),
		Header: []string{"S.No", "CID", "Name", "Phone", "Address", "Total Liters", "Total Amount"},
		Rows:   data,
		Widths: map[string]float64{"C": 24, "D": 14, "E": 30, "F": 14, "G": 14},
	})
}

func (s *ReportService) AllRecordsXLSX(rows []models.CustomerAggregateRow) ([]byte, error) {
	data := make([][]any, len(rows))
	for i, r := range rows {
		data[i] = []any{i + 1, r.CustomerID, r.Name, r.Phone, r.Address, r.TotalQuantity, r.TotalAmount, r.Status}
	}
	return repositories.ExportWorkbook(repositories.Sheet{
		Name:   "All Records",
		Header: []string{"S.No", "CID", "Name", "Phone", "Address", "Total Liters", "Total Amount", "Status"},
		Rows:   data,
		Widths: map[string]float64{"C": 24, "D": 14, "E": 30, "F": 14, "G": 14, "H": 24},
	})
}

// BillPDF renders one customer's bill for p.
func (s *ReportService) BillPDF(ctx context.Context, p models.Period, customerID string) ([]byte, error) {
	row, totals, err := s.Billing.CustomerTotals(ctx, p, customerID)
	if err != nil {
		return nil, err
	}
	ledger, err := s.Billing.Ledgers.Load(ctx, p)
	if err != nil {
		return nil, err
	}
	idx, err := s.rosterIndex(ctx)
	if err != nil {
		return nil, err
	}
	profile, err := s.Profile.Get(ctx)
	if err != nil {
		return nil, err
	}
	c, _ := idx.describe(row.CustomerID, row.Name, row.Phone)
	return s.renderBill(c, p, *row, ledger.Rate, totals, *profile)
}

func (s *ReportService) renderBill(c models.Customer, p models.Period, row models.LedgerRow, rate float64, t models.Totals, profile models.BusinessProfile) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(190, 10, fmt.Sprintf("%s - Monthly Bill", profile.BusinessName), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(190, 6, fmt.Sprintf("Generated: %s", s.clock().In(timeutil.IST).Format(timeutil.DisplayLayout)), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(190, 8, "Customer", "1", 1, "L", true, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(95, 7, fmt.Sprintf("Name: %s", c.Name), "LB", 0, "L", false, 0, "")
	pdf.CellFormat(95, 7, fmt.Sprintf("Customer ID: %s", c.ID), "RB", 1, "L", false, 0, "")
	pdf.CellFormat(95, 7, fmt.Sprintf("Phone: %s", c.Phone), "LB", 0, "L", false, 0, "")
	pdf.CellFormat(95, 7, fmt.Sprintf("Address: %s", c.Address), "RB", 1, "L", false, 0, "")
	pdf.Ln(4)

	mon := p.Month.String()[:3]
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(190, 8, fmt.Sprintf("Deliveries 01 %s %d - %02d %s %d", mon, p.Year, p.Days(), mon, p.Year), "1", 1, "L", true, 0, "")

	// two columns of day/quantity pairs
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(200, 200, 200)
	for i := 0; i < 2; i++ {
		pdf.CellFormat(47.5, 7, "Date", "1", 0, "C", true, 0, "")
		pdf.CellFormat(47.5, 7, "Liters", "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	half := (p.Days() + 1) / 2
	for i := 1; i <= half; i++ {
		for _, d := range []int{i, i + half} {
			if d > p.Days() {
				pdf.CellFormat(95, 6, "", "1", 0, "C", false, 0, "")
				continue
			}
			qty := "-"
			if v := row.Quantity(d); v > 0 {
				qty = strconv.FormatFloat(v, 'f', 2, 64)
			}
			pdf.CellFormat(47.5, 6, p.Date(d).Format(timeutil.DayLabelLayout), "1", 0, "C", false, 0, "")
			pdf.CellFormat(47.5, 6, qty, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 12)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(190, 8, "Summary", "1", 1, "L", true, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(63, 8, fmt.Sprintf("Total Milk: %.2f L", t.Quantity), "1", 0, "C", false, 0, "")
	pdf.CellFormat(63, 8, fmt.Sprintf("Rate: Rs. %.2f / L", rate), "1", 0, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(64, 8, fmt.Sprintf("Amount Due: Rs. %.2f", t.Amount), "1", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(190, 6, fmt.Sprintf("For queries: %s", profile.ContactNumber), "", 1, "L", false, 0, "")
	pdf.CellFormat(190, 6, fmt.Sprintf("Pay via: %s", profile.PaymentInfo), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BillPDFZip renders every bill of p with a small worker pool and zips them.
func (s *ReportService) BillPDFZip(ctx context.Context, p models.Period) ([]byte, error) {
	ledger, err := s.Billing.Ledgers.Load(ctx, p)
	if err != nil {
		return nil, err
	}
	idx, err := s.rosterIndex(ctx)
	if err != nil {
		return nil, err
	}
	profile, err := s.Profile.Get(ctx)
	if err != nil {
		return nil, err
	}

	type pdfResult struct {
		name string
		data []byte
		err  error
	}
	jobs := make(chan models.LedgerRow, len(ledger.Rows))
	results := make(chan pdfResult, len(ledger.Rows))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range jobs {
				c, _ := idx.describe(row.CustomerID, row.Name, row.Phone)
				data, err := s.renderBill(c, p, row, ledger.Rate, ComputeTotals(row, ledger.Rate), *profile)
				results <- pdfResult{name: fmt.Sprintf("%s_%s_%s.pdf", p.Key(), c.ID, c.Phone), data: data, err: err}
			}
		}()
	}
	for _, row := range ledger.Rows {
		jobs <- row
	}
	close(jobs)
	go func() {
		wg.Wait()
		close(results)
	}()

	var files []pdfResult
	for r := range results {
		if r.err != nil {
			s.log.Warn("bill pdf failed", zap.String("file", r.name), zap.Error(r.err))
			continue
		}
		files = append(files, r)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(f.data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RosterCSV exports the active roster.
func (s *ReportService) RosterCSV(ctx context.Context) ([]byte, error) {
	active, err := s.Roster.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(repositories.RosterHeader)
	for _, c := range active {
		w.Write([]string{strconv.Itoa(c.SNo), c.ID, c.Name, c.Phone, c.Address, c.Cluster})
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
