package services

import (
	"context"
	"testing"
	"time"

	"dairy-billing/internal/apperr"
	"dairy-billing/internal/models"
	"dairy-billing/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	feb2024 = models.Period{Year: 2024, Month: time.February}
	mar2024 = models.Period{Year: 2024, Month: time.March}
)

func TestReconcileCreatesLedgerFromRoster(t *testing.T) {
	roster := []models.Customer{
		{ID: "C_2", Name: "Ravi", Phone: "9123456780"},
		{ID: "C_3", Name: "Meena", Phone: "9000000001"},
	}
	l, rep := Reconcile(nil, roster, mar2024, mar2024, 55)

	assert.True(t, rep.Created)
	assert.Equal(t, 2, rep.Added)
	assert.Equal(t, 55.0, l.Rate)
	require.Len(t, l.Rows, 2)
	assert.Equal(t, "C_2", l.Rows[0].CustomerID)
	assert.Len(t, l.Rows[0].Days, 31)
	assert.Equal(t, 1, l.Rows[0].SNo)
	assert.Equal(t, repositories.QuantityFormula(2, 31), l.Rows[0].QuantityFormula)
	assert.Equal(t, repositories.AmountFormula(3, 31), l.Rows[1].AmountFormula)
}

func TestReconcilePastPeriodGainsNoRows(t *testing.T) {
	existing := &models.MonthlyLedger{Period: feb2024, Rate: 50, Rows: []models.LedgerRow{
		{CustomerID: "C_1", Name: "Asha", Phone: "9876543210", Days: make([]string, 29)},
	}}
	roster := []models.Customer{
		{ID: "C_1", Name: "Asha Devi", Phone: "9876543210"},
		{ID: "C_4", Name: "Late joiner", Phone: "9000000004"},
	}

	l, rep := Reconcile(existing, roster, feb2024, mar2024, 60)

	assert.True(t, rep.Historical)
	assert.Zero(t, rep.Added)
	require.Len(t, l.Rows, 1)
	assert.Equal(t, "Asha Devi", l.Rows[0].Name, "details are refreshed even in the past")
	assert.Equal(t, 1, rep.Refreshed)
	assert.Equal(t, 50.0, l.Rate, "existing rate is kept")
	assert.Equal(t, "Asha", existing.Rows[0].Name, "input is not modified")
}

func TestReconcileCurrentPeriodAppendsNewCustomers(t *testing.T) {
	existing := &models.MonthlyLedger{Period: mar2024, Rate: 50, Rows: []models.LedgerRow{
		{CustomerID: "C_1", Name: "Asha", Phone: "9876543210", Days: []string{"1", "2"}},
		{CustomerID: "C_2", Name: "Ravi", Phone: "9123456780", Days: make([]string, 31)},
	}}
	// C_2 was deleted since; its row and history stay
	roster := []models.Customer{
		{ID: "C_1", Name: "Asha", Phone: "9876543210"},
		{ID: "C_3", Name: "Meena", Phone: "9000000001"},
	}

	l, rep := Reconcile(existing, roster, mar2024, mar2024, 50)

	assert.False(t, rep.Historical)
	assert.Equal(t, 1, rep.Added)
	require.Len(t, l.Rows, 3)
	assert.Equal(t, []string{"C_1", "C_2", "C_3"}, []string{l.Rows[0].CustomerID, l.Rows[1].CustomerID, l.Rows[2].CustomerID})
	assert.Equal(t, "Ravi", l.Rows[1].Name)
	assert.Len(t, l.Rows[0].Days, 31, "short rows are padded")
	assert.Equal(t, "2", l.Rows[0].Days[1])
	assert.Equal(t, 2, rep.Repaired, "pre-existing rows without formulas are repaired")
}

func TestReconcileRepointsMovedTotals(t *testing.T) {
	// C_2 sat below a blank row that was dropped on load
	existing := &models.MonthlyLedger{Period: mar2024, Rate: 50, Rows: []models.LedgerRow{
		{CustomerID: "C_1", Days: make([]string, 31),
			QuantityFormula: repositories.QuantityFormula(2, 31), AmountFormula: repositories.AmountFormula(2, 31)},
		{CustomerID: "C_2", Days: make([]string, 31),
			QuantityFormula: repositories.QuantityFormula(4, 31), AmountFormula: repositories.AmountFormula(4, 31)},
	}}

	l, rep := Reconcile(existing, nil, mar2024, mar2024, 50)

	assert.Equal(t, 1, rep.Repaired)
	assert.Equal(t, repositories.QuantityFormula(3, 31), l.Rows[1].QuantityFormula)
	assert.Equal(t, repositories.AmountFormula(3, 31), l.Rows[1].AmountFormula)
	assert.Equal(t, repositories.QuantityFormula(2, 31), l.Rows[0].QuantityFormula)
}

func TestCurrentPeriodFollowsIndianCalendar(t *testing.T) {
	e := newEnv(t, func() time.Time { return time.Date(2024, time.March, 31, 20, 0, 0, 0, time.UTC) })
	assert.Equal(t, models.Period{Year: 2024, Month: time.April}, e.ledger.CurrentPeriod())
}

func TestReconcileDoesNotAddDeletedCustomer(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, fixedClock(2024, time.March, 5))
	e.addCustomer(t, "Asha", "9876543210")
	e.addCustomer(t, "Ravi", "9123456780")
	_, err := e.customers.DeleteCustomers(ctx, []string{"C_1"})
	require.NoError(t, err)

	l, rep, err := e.ledger.Sync(ctx, mar2024)
	require.NoError(t, err)
	assert.True(t, rep.Created)
	require.Len(t, l.Rows, 1)
	assert.Equal(t, "C_2", l.Rows[0].CustomerID)
	assert.Equal(t, 50.0, l.Rate)
}

func TestRosterChangesFollowCurrentLedger(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, fixedClock(2024, time.March, 5))
	e.addCustomer(t, "Asha", "9876543210")
	_, _, err := e.ledger.Sync(ctx, mar2024)
	require.NoError(t, err)

	e.addCustomer(t, "Ravi", "9123456780")
	_, err = e.customers.UpdateCustomer(ctx, "C_1", models.CustomerInput{Name: "Asha Devi", Phone: "9876543210", Address: "Lane"})
	require.NoError(t, err)

	l, err := e.ledger.Get(ctx, mar2024)
	require.NoError(t, err)
	require.Len(t, l.Rows, 2)
	assert.Equal(t, "Asha Devi", l.Rows[0].Name)
	assert.Equal(t, "C_2", l.Rows[1].CustomerID)
	assert.NotEmpty(t, l.Rows[1].QuantityFormula)
}

func TestRosterChangeWithoutLedgerCreatesNothing(t *testing.T) {
	e := newEnv(t, fixedClock(2024, time.March, 5))
	e.addCustomer(t, "Asha", "9876543210")
	assert.False(t, e.ledgers.Exists(mar2024))
}

func TestCreateLedgerFixesRate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, fixedClock(2024, time.March, 5))
	e.addCustomer(t, "Asha", "9876543210")

	l, _, err := e.ledger.CreateLedger(ctx, mar2024, 62.5)
	require.NoError(t, err)
	assert.Equal(t, 62.5, l.Rate)

	_, _, err = e.ledger.CreateLedger(ctx, mar2024, 70)
	assert.True(t, apperr.IsValidation(err))

	_, _, err = e.ledger.CreateLedger(ctx, feb2024, 0)
	assert.True(t, apperr.IsValidation(err))

	loaded, err := e.ledger.Get(ctx, mar2024)
	require.NoError(t, err)
	assert.Equal(t, 62.5, loaded.Rate)
}

func TestSetQuantity(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, fixedClock(2024, time.March, 5))
	e.addCustomer(t, "Asha", "9876543210")
	_, _, err := e.ledger.Sync(ctx, mar2024)
	require.NoError(t, err)

	row, err := e.ledger.SetQuantity(ctx, mar2024, "C_1", 3, 1.5)
	require.NoError(t, err)
	assert.Equal(t, "1.5", row.Days[2])

	_, err = e.ledger.SetQuantity(ctx, mar2024, "C_1", 32, 1)
	assert.True(t, apperr.IsValidation(err))
	_, err = e.ledger.SetQuantity(ctx, mar2024, "C_1", 1, -1)
	assert.True(t, apperr.IsValidation(err))
	_, err = e.ledger.SetQuantity(ctx, mar2024, "C_9", 1, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	l, err := e.ledger.Get(ctx, mar2024)
	require.NoError(t, err)
	assert.Equal(t, 1.5, l.Rows[0].Quantity(3))
}

func TestGetMissingLedger(t *testing.T) {
	e := newEnv(t, fixedClock(2024, time.March, 5))
	_, err := e.ledger.Get(context.Background(), feb2024)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
