package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"dairy-billing/internal/models"
	"dairy-billing/internal/repositories"
	"dairy-billing/internal/timeutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// env is a fully wired set of services over a temporary data directory.
type env struct {
	dir string

	roster   *repositories.CustomerRepository
	ledgers  *repositories.LedgerRepository
	status   *repositories.SendStatusRepository
	profiles *repositories.ProfileRepository

	customers *CustomerService
	ledger    *LedgerService
	billing   *BillingService
	profile   *ProfileService
	reports   *ReportService
	clock     timeutil.Clock
}

func fixedClock(year int, month time.Month, day int) timeutil.Clock {
	t := time.Date(year, month, day, 6, 0, 0, 0, timeutil.IST)
	return func() time.Time { return t }
}

func newEnv(t *testing.T, clock timeutil.Clock) *env {
	t.Helper()
	dir := t.TempDir()
	log := zap.NewNop()
	e := &env{
		dir:      dir,
		roster:   repositories.NewCustomerRepository(filepath.Join(dir, "Customers"), log),
		ledgers:  repositories.NewLedgerRepository(filepath.Join(dir, "Monthly"), log),
		status:   repositories.NewSendStatusRepository(filepath.Join(dir, "Status"), log),
		profiles: repositories.NewProfileRepository(filepath.Join(dir, "profile.yaml")),
		clock:    clock,
	}
	e.customers = NewCustomerService(e.roster, 10, log)
	e.ledger = NewLedgerService(e.ledgers, e.roster, 50, clock, log)
	e.customers.Subscribe(e.ledger.OnRosterChange)
	e.billing = NewBillingService(e.ledgers, log)
	e.profile = NewProfileService(e.profiles, log)
	e.reports = NewReportService(e.roster, e.billing, e.status, e.profile, clock, log)
	return e
}

func (e *env) addCustomer(t *testing.T, name, phone string) *models.Customer {
	t.Helper()
	c, err := e.customers.CreateCustomer(context.Background(), models.CustomerInput{Name: name, Phone: phone, Address: name + " street"})
	require.NoError(t, err)
	return c
}

func (e *env) saveProfile(t *testing.T) {
	t.Helper()
	_, err := e.profile.Update(context.Background(), models.BusinessProfile{
		UserName:      "Ramesh",
		BusinessName:  "Gokul Dairy",
		ContactNumber: "98765 43210",
		PaymentInfo:   "UPI gokul@upi",
	})
	require.NoError(t, err)
}

// saveLedger writes rows directly, bypassing the roster.
func (e *env) saveLedger(t *testing.T, p models.Period, rate float64, rows ...models.LedgerRow) {
	t.Helper()
	for i := range rows {
		for len(rows[i].Days) < p.Days() {
			rows[i].Days = append(rows[i].Days, "")
		}
	}
	require.NoError(t, e.ledgers.Save(context.Background(), &models.MonthlyLedger{Period: p, Rate: rate, Rows: rows}))
}

// dailyRow delivers qty litres on each of the first n days.
func dailyRow(id, name, phone string, n int, qty string) models.LedgerRow {
	row := models.LedgerRow{CustomerID: id, Name: name, Phone: phone}
	for i := 0; i < n; i++ {
		row.Days = append(row.Days, qty)
	}
	return row
}
