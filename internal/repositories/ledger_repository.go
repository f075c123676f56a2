package repositories

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"dairy-billing/internal/apperr"
	"dairy-billing/internal/logging"
	"dairy-billing/internal/models"
	"dairy-billing/internal/timeutil"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Fixed ledger columns. Day columns start at FirstDayColumn (F).
const (
	ColSNo         = 1
	ColCID         = 2
	ColName        = 3
	ColPhone       = 4
	ColRate        = 5
	FirstDayColumn = 6

	HeaderTotalQuantity = "Total_Quantity"
	HeaderTotalAmount   = "Total_Amount"
)

// LedgerRepository stores one workbook per month in Dir, named YYYY_MM.xlsx.
type LedgerRepository struct {
	Dir string
	log *zap.Logger
	mu  sync.RWMutex
}

func NewLedgerRepository(dir string, logger *zap.Logger) *LedgerRepository {
	return &LedgerRepository{Dir: dir, log: logging.OrNop(logger).Named("ledger_store")}
}

func (r *LedgerRepository) Path(p models.Period) string {
	return filepath.Join(r.Dir, p.Key()+".xlsx")
}

func (r *LedgerRepository) Exists(p models.Period) bool {
	_, err := os.Stat(r.Path(p))
	return err == nil
}

// QuantityColumn is the 1-based column of Total_Quantity for a month of days days.
func QuantityColumn(days int) int { return FirstDayColumn + days }

// AmountColumn is the 1-based column of Total_Amount.
func AmountColumn(days int) int { return FirstDayColumn + days + 1 }

// QuantityFormula is the canonical Total_Quantity formula for sheet row excelRow.
func QuantityFormula(excelRow, days int) string {
	first, _ := excelize.ColumnNumberToName(FirstDayColumn)
	last, _ := excelize.ColumnNumberToName(FirstDayColumn + days - 1)
	return fmt.Sprintf("SUM(%s%d:%s%d)", first, excelRow, last, excelRow)
}

// AmountFormula is the canonical Total_Amount formula, zero when the quantity is not a number.
func AmountFormula(excelRow, days int) string {
	tq, _ := excelize.ColumnNumberToName(QuantityColumn(days))
	return fmt.Sprintf("IF(ISNUMBER(%s%d),%s%d*$E$1,0)", tq, excelRow, tq, excelRow)
}

// Load reads the ledger for p. A missing file returns apperr.ErrNotFound. An
// unreadable one is quarantined and also reported as apperr.ErrNotFound so the
// caller recreates it.
func (r *LedgerRepository) Load(ctx context.Context, p models.Period) (*models.MonthlyLedger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := r.Path(p)

	r.mu.RLock()
	ledger, err := r.read(path, p)
	r.mu.RUnlock()
	if errors.Is(err, apperr.ErrCorruptFile) {
		// only quarantine what is still damaged once writers are excluded
		r.mu.Lock()
		ledger, err = r.read(path, p)
		if errors.Is(err, apperr.ErrCorruptFile) {
			quarantine(r.log, path, err)
			err = fs.ErrNotExist
		}
		r.mu.Unlock()
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("ledger %s: %w", p.Key(), apperr.ErrNotFound)
	case err != nil:
		return nil, err
	}
	return ledger, nil
}

func (r *LedgerRepository) read(path string, p models.Period) (*models.MonthlyLedger, error) {
	f, sheet, rows, err := readFirstSheet(path)
	if err != nil {
		if recoverable(err) {
			return nil, err
		}
		return nil, apperr.IO("open", path, err)
	}
	defer f.Close()
	return parseLedger(f, sheet, rows, p)
}

func parseLedger(f *excelize.File, sheet string, rows [][]string, p models.Period) (*models.MonthlyLedger, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty sheet", apperr.ErrCorruptFile)
	}
	header := rows[0]
	if !headerMatches(header, []string{"S.No", "CID", "Name", "Phone"}, 4) {
		return nil, fmt.Errorf("%w: unexpected header %v", apperr.ErrCorruptFile, header)
	}

	tqIdx := -1
	for i := FirstDayColumn - 1; i < len(header); i++ {
		if strings.EqualFold(strings.TrimSpace(header[i]), HeaderTotalQuantity) {
			tqIdx = i
			break
		}
	}
	if tqIdx < 0 || !strings.EqualFold(cell(header, tqIdx+1), HeaderTotalAmount) {
		return nil, fmt.Errorf("%w: total columns missing", apperr.ErrCorruptFile)
	}
	days := tqIdx - (FirstDayColumn - 1)
	if days < 1 {
		return nil, fmt.Errorf("%w: no day columns", apperr.ErrCorruptFile)
	}

	rate, _ := strconv.ParseFloat(cell(header, ColRate-1), 64)
	ledger := &models.MonthlyLedger{Period: p, Rate: rate}

	for i, row := range rows[1:] {
		id := cell(row, ColCID-1)
		if id == "" {
			continue
		}
		excelRow := i + 2
		lr := models.LedgerRow{
			CustomerID: id,
			Name:       cell(row, ColName-1),
			Phone:      normalizeStoredPhone(cell(row, ColPhone-1)),
			Days:       make([]string, days),
		}
		lr.SNo, _ = strconv.Atoi(cell(row, ColSNo-1))
		for d := 0; d < days; d++ {
			lr.Days[d] = cell(row, FirstDayColumn-1+d)
		}
		tqCell, _ := excelize.CoordinatesToCellName(QuantityColumn(days), excelRow)
		amtCell, _ := excelize.CoordinatesToCellName(AmountColumn(days), excelRow)
		lr.QuantityFormula, _ = f.GetCellFormula(sheet, tqCell)
		lr.AmountFormula, _ = f.GetCellFormula(sheet, amtCell)
		ledger.Rows = append(ledger.Rows, lr)
	}
	return ledger, nil
}

// Save writes the whole ledger. Row i of the ledger lands on sheet row i+2
// with the standard total formulas for that row.
func (r *LedgerRepository) Save(ctx context.Context, ledger *models.MonthlyLedger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := r.Path(ledger.Period)
	sheet := ledger.Period.Key()
	days := ledger.Period.Days()

	f, err := newSheetFile(sheet)
	if err != nil {
		return apperr.IO("create", path, err)
	}
	defer f.Close()

	header := []any{"S.No", "CID", "Name", "Phone", ledger.Rate}
	for d := 1; d <= days; d++ {
		header = append(header, ledger.Period.Date(d).Format(timeutil.DayLabelLayout))
	}
	header = append(header, HeaderTotalQuantity, HeaderTotalAmount)
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return apperr.IO("write", path, err)
	}

	for i, row := range ledger.Rows {
		excelRow := i + 2
		values := []any{row.SNo, row.CustomerID, row.Name, row.Phone, nil}
		for d := 0; d < days; d++ {
			values = append(values, dayCellValue(row, d))
		}
		start, _ := excelize.CoordinatesToCellName(1, excelRow)
		if err := f.SetSheetRow(sheet, start, &values); err != nil {
			return apperr.IO("write", path, err)
		}
		// totals always point at the row they are written to
		qc, _ := excelize.CoordinatesToCellName(QuantityColumn(days), excelRow)
		if err := f.SetCellFormula(sheet, qc, QuantityFormula(excelRow, days)); err != nil {
			return apperr.IO("write", path, err)
		}
		ac, _ := excelize.CoordinatesToCellName(AmountColumn(days), excelRow)
		if err := f.SetCellFormula(sheet, ac, AmountFormula(excelRow, days)); err != nil {
			return apperr.IO("write", path, err)
		}
	}

	f.SetColWidth(sheet, "C", "C", 22)
	f.SetColWidth(sheet, "D", "D", 13)
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze: true, XSplit: FirstDayColumn - 1, YSplit: 1,
		TopLeftCell: "F2", ActivePane: "bottomRight",
	}); err != nil {
		r.log.Debug("freeze panes failed", zap.Error(err))
	}

	r.mu.Lock()
	err = saveWorkbook(f, path)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.log.Debug("ledger saved", zap.String("period", ledger.Period.Key()), zap.Int("rows", len(ledger.Rows)))
	return nil
}

// dayCellValue writes numbers as numbers and keeps any other text verbatim.
func dayCellValue(row models.LedgerRow, d int) any {
	if d >= len(row.Days) {
		return nil
	}
	raw := strings.TrimSpace(row.Days[d])
	if raw == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	return raw
}

// List returns every period with a ledger file, oldest first.
func (r *LedgerRepository) List(ctx context.Context) ([]models.Period, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.IO("list", r.Dir, err)
	}

	var periods []models.Period
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".xlsx") || strings.HasPrefix(name, "~$") {
			continue
		}
		p, err := models.ParsePeriod(strings.TrimSuffix(name, ".xlsx"))
		if err != nil {
			continue
		}
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })
	return periods, nil
}
