package models

import (
	"strconv"
	"strings"
)

// LedgerRow is one customer's line in a monthly ledger. Days holds the raw
// cell text so junk typed into the workbook survives a round trip.
type LedgerRow struct {
	SNo        int      `json:"s_no"`
	CustomerID string   `json:"customer_id"`
	Name       string   `json:"name"`
	Phone      string   `json:"phone"`
	Days       []string `json:"days"`

	// QuantityFormula and AmountFormula are the formulas found in the total
	// cells, without the leading '='. Empty means the cell held a literal or nothing.
	QuantityFormula string `json:"-"`
	AmountFormula   string `json:"-"`
}

// Quantity returns the numeric value of a day cell (1-based). Blank,
// non-numeric and negative cells count as zero.
func (r LedgerRow) Quantity(day int) float64 {
	if day < 1 || day > len(r.Days) {
		return 0
	}
	return CellNumber(r.Days[day-1])
}

// CellNumber coerces spreadsheet text to a non-negative quantity.
func CellNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// MonthlyLedger is the parsed content of one YYYY_MM workbook.
type MonthlyLedger struct {
	Period Period      `json:"period"`
	Rate   float64     `json:"rate"`
	Rows   []LedgerRow `json:"rows"`
}

// Index maps customer id to row position.
func (l *MonthlyLedger) Index() map[string]int {
	idx := make(map[string]int, len(l.Rows))
	for i, r := range l.Rows {
		idx[r.CustomerID] = i
	}
	return idx
}

func (l *MonthlyLedger) Row(customerID string) (*LedgerRow, bool) {
	for i := range l.Rows {
		if l.Rows[i].CustomerID == customerID {
			return &l.Rows[i], true
		}
	}
	return nil, false
}

// Totals are the derived quantity and amount for one customer-month.
type Totals struct {
	Quantity float64 `json:"total_quantity"`
	Amount   float64 `json:"total_amount"`
}

// Aggregate is Totals summed over several rows or months.
type Aggregate struct {
	Totals
	Months int `json:"months"`
	Rows   int `json:"rows"`
}

// SetQuantityRequest writes one day cell.
type SetQuantityRequest struct {
	Day      int     `json:"day"`
	Quantity float64 `json:"quantity"`
}

// CreateLedgerRequest creates a month ledger with an explicit rate.
type CreateLedgerRequest struct {
	Rate float64 `json:"rate"`
}
