package models

// MonthlyReportRow joins a ledger row with the current roster.
type MonthlyReportRow struct {
	CustomerID    string  `json:"customer_id"`
	Name          string  `json:"name"`
	Phone         string  `json:"phone"`
	Address       string  `json:"address"`
	TotalQuantity float64 `json:"total_quantity"`
	TotalAmount   float64 `json:"total_amount"`
	Message       string  `json:"message,omitempty"`
}

// CustomerAggregateRow is one line of the yearly and all-records views.
type CustomerAggregateRow struct {
	CustomerID    string  `json:"customer_id"`
	Name          string  `json:"name"`
	Phone         string  `json:"phone"`
	Address       string  `json:"address"`
	Status        string  `json:"status"`
	Months        int     `json:"months"`
	TotalQuantity float64 `json:"total_quantity"`
	TotalAmount   float64 `json:"total_amount"`
}

// Report status labels
const (
	RecordStatusActive     = "Active"
	RecordStatusDeletedHis = "Deleted (Has History)"
)

// MonthSummary is the display-only aggregate of one ledger.
type MonthSummary struct {
	Period    Period  `json:"period"`
	Rate      float64 `json:"rate"`
	Customers int     `json:"customers"`
	Quantity  float64 `json:"total_quantity"`
	Amount    float64 `json:"total_amount"`
	Sent      int     `json:"sent"`
	Unsent    int     `json:"unsent"`
}
