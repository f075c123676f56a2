package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"dairy-billing/internal/apperr"
	"dairy-billing/internal/logging"
	"dairy-billing/internal/metrics"
	"dairy-billing/internal/models"
	"dairy-billing/internal/repositories"
	"dairy-billing/internal/timeutil"

	"go.uber.org/zap"
)

// SyncReport summarizes what one reconciliation changed.
type SyncReport struct {
	Period     models.Period `json:"period"`
	Created    bool          `json:"created"`
	Historical bool          `json:"historical"`
	Added      int           `json:"added"`
	Refreshed  int           `json:"refreshed"`
	Repaired   int           `json:"repaired"`
}

// Reconcile aligns a ledger with the active roster. existing is not modified;
// nil means no ledger exists yet and one is created with rate. Past periods
// never gain rows. Rows of customers missing from the roster keep their last
// known name and phone.
func Reconcile(existing *models.MonthlyLedger, roster []models.Customer, period, current models.Period, rate float64) (*models.MonthlyLedger, SyncReport) {
	rep := SyncReport{Period: period, Historical: period.Before(current)}
	days := period.Days()

	var ledger *models.MonthlyLedger
	if existing == nil {
		rep.Created = true
		ledger = &models.MonthlyLedger{Period: period, Rate: rate}
		for _, c := range roster {
			ledger.Rows = append(ledger.Rows, newLedgerRow(c, days))
		}
		rep.Added = len(roster)
	} else {
		ledger = cloneLedger(existing)
		ledger.Period = period

		if !rep.Historical {
			present := ledger.Index()
			for _, c := range roster {
				if _, ok := present[c.ID]; ok {
					continue
				}
				ledger.Rows = append(ledger.Rows, newLedgerRow(c, days))
				rep.Added++
			}
		}
	}

	byID := make(map[string]models.Customer, len(roster))
	for _, c := range roster {
		byID[c.ID] = c
	}

	for i := range ledger.Rows {
		row := &ledger.Rows[i]
		if c, ok := byID[row.CustomerID]; ok && (row.Name != c.Name || row.Phone != c.Phone) {
			row.Name = c.Name
			row.Phone = c.Phone
			rep.Refreshed++
		}
		row.SNo = i + 1

		for len(row.Days) < days {
			row.Days = append(row.Days, "")
		}

		// a missing, literal or misplaced total is rewritten for the row's position
		excelRow := i + 2
		repaired := false
		if want := repositories.QuantityFormula(excelRow, days); row.QuantityFormula != want {
			row.QuantityFormula = want
			repaired = true
		}
		if want := repositories.AmountFormula(excelRow, days); row.AmountFormula != want {
			row.AmountFormula = want
			repaired = true
		}
		if repaired && !rep.Created && i < len(existing.Rows) {
			rep.Repaired++
		}
	}
	return ledger, rep
}

func newLedgerRow(c models.Customer, days int) models.LedgerRow {
	return models.LedgerRow{
		CustomerID: c.ID,
		Name:       c.Name,
		Phone:      c.Phone,
		Days:       make([]string, days),
	}
}

func cloneLedger(l *models.MonthlyLedger) *models.MonthlyLedger {
	out := &models.MonthlyLedger{Period: l.Period, Rate: l.Rate, Rows: make([]models.LedgerRow, len(l.Rows))}
	for i, r := range l.Rows {
		r.Days = append([]string(nil), r.Days...)
		out.Rows[i] = r
	}
	return out
}

// LedgerService owns the monthly ledger workbooks and keeps them in step with the roster.
type LedgerService struct {
	Ledgers *repositories.LedgerRepository
	Roster  *repositories.CustomerRepository

	defaultRate float64
	clock       timeutil.Clock
	log         *zap.Logger

	mu sync.Mutex
}

func NewLedgerService(ledgers *repositories.LedgerRepository, roster *repositories.CustomerRepository, defaultRate float64, clock timeutil.Clock, logger *zap.Logger) *LedgerService {
	if clock == nil {
		clock = timeutil.Now
	}
	return &LedgerService{
		Ledgers:     ledgers,
		Roster:      roster,
		defaultRate: defaultRate,
		clock:       clock,
		log:         logging.OrNop(logger).Named("reconcile"),
	}
}

// CurrentPeriod is the calendar month of the injected clock, in IST.
func (s *LedgerService) CurrentPeriod() models.Period {
	return models.PeriodOf(timeutil.StartOfMonth(s.clock()))
}

// Sync reconciles the ledger for p with the active roster and saves it. A
// missing ledger is created at the default rate.
func (s *LedgerService) Sync(ctx context.Context, p models.Period) (*models.MonthlyLedger, SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncLocked(ctx, p, s.defaultRate)
}

// CreateLedger creates the ledger for p at rate. The rate of an existing ledger is never changed.
func (s *LedgerService) CreateLedger(ctx context.Context, p models.Period, rate float64) (*models.MonthlyLedger, SyncReport, error) {
	if !p.Valid() {
		return nil, SyncReport{}, apperr.Validation("period", "invalid period %s", p)
	}
	if rate <= 0 {
		return nil, SyncReport{}, apperr.Validation("rate", "must be greater than zero")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Ledgers.Exists(p) {
		return nil, SyncReport{}, apperr.Validation("period", "ledger for %s already exists, its rate is fixed", p)
	}
	return s.syncLocked(ctx, p, rate)
}

func (s *LedgerService) syncLocked(ctx context.Context, p models.Period, rate float64) (*models.MonthlyLedger, SyncReport, error) {
	roster, err := s.Roster.ListActive(ctx)
	if err != nil {
		metrics.LedgerSyncTotal.WithLabelValues("error").Inc()
		return nil, SyncReport{}, err
	}
	existing, err := s.Ledgers.Load(ctx, p)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		metrics.LedgerSyncTotal.WithLabelValues("error").Inc()
		return nil, SyncReport{}, err
	}

	ledger, rep := Reconcile(existing, roster, p, s.CurrentPeriod(), rate)
	if err := s.Ledgers.Save(ctx, ledger); err != nil {
		metrics.LedgerSyncTotal.WithLabelValues("error").Inc()
		s.log.Error("ledger save failed", zap.String("period", p.Key()), zap.Error(err))
		return nil, SyncReport{}, err
	}

	result := "updated"
	if rep.Created {
		result = "created"
	}
	metrics.LedgerSyncTotal.WithLabelValues(result).Inc()
	metrics.LedgerRowsAdded.Add(float64(rep.Added))
	s.log.Info("ledger synced",
		zap.String("period", p.Key()),
		zap.Bool("created", rep.Created),
		zap.Bool("historical", rep.Historical),
		zap.Int("added", rep.Added),
		zap.Int("refreshed", rep.Refreshed),
		zap.Int("repaired", rep.Repaired))
	return ledger, rep, nil
}

// Get loads a ledger without touching it.
func (s *LedgerService) Get(ctx context.Context, p models.Period) (*models.MonthlyLedger, error) {
	return s.Ledgers.Load(ctx, p)
}

func (s *LedgerService) ListPeriods(ctx context.Context) ([]models.Period, error) {
	return s.Ledgers.List(ctx)
}

// SetQuantity writes one day cell for a customer already in the ledger.
func (s *LedgerService) SetQuantity(ctx context.Context, p models.Period, customerID string, day int, qty float64) (*models.LedgerRow, error) {
	if day < 1 || day > p.Days() {
		return nil, apperr.Validation("day", "must be between 1 and %d", p.Days())
	}
	if qty < 0 {
		return nil, apperr.Validation("quantity", "must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ledger, err := s.Ledgers.Load(ctx, p)
	if err != nil {
		return nil, err
	}
	row, ok := ledger.Row(customerID)
	if !ok {
		return nil, fmt.Errorf("customer %s in ledger %s: %w", customerID, p.Key(), apperr.ErrNotFound)
	}
	for len(row.Days) < p.Days() {
		row.Days = append(row.Days, "")
	}
	if qty == 0 {
		row.Days[day-1] = ""
	} else {
		row.Days[day-1] = strconv.FormatFloat(qty, 'f', -1, 64)
	}
	updated := *row

	if err := s.Ledgers.Save(ctx, ledger); err != nil {
		return nil, err
	}
	return &updated, nil
}

// OnRosterChange keeps the current month's ledger in step with the roster.
// Months without a ledger are left alone.
func (s *LedgerService) OnRosterChange(ctx context.Context, ev RosterEvent) {
	p := s.CurrentPeriod()
	if !s.Ledgers.Exists(p) {
		return
	}
	if _, _, err := s.Sync(ctx, p); err != nil {
		s.log.Warn("ledger sync after roster change failed",
			zap.String("event", ev.Kind), zap.String("period", p.Key()), zap.Error(err))
	}
}
