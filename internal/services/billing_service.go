package services

import (
	"context"
	"errors"
	"math"

	"dairy-billing/internal/apperr"
	"dairy-billing/internal/logging"
	"dairy-billing/internal/models"
	"dairy-billing/internal/repositories"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ComputeTotals sums a row's day cells (blank, non-numeric and negative count
// as zero) and multiplies by rate. A missing rate gives a zero amount.
func ComputeTotals(row models.LedgerRow, rate float64) models.Totals {
	var qty float64
	for _, raw := range row.Days {
		qty += models.CellNumber(raw)
	}
	amount := 0.0
	if rate > 0 && !math.IsNaN(rate) && !math.IsInf(rate, 0) {
		amount = qty * rate
	}
	return models.Totals{Quantity: qty, Amount: amount}
}

// ComputeMonthAggregate sums every row of one ledger. Display only.
func ComputeMonthAggregate(l *models.MonthlyLedger) models.Aggregate {
	agg := models.Aggregate{Months: 1, Rows: len(l.Rows)}
	for _, row := range l.Rows {
		t := ComputeTotals(row, l.Rate)
		agg.Quantity += t.Quantity
		agg.Amount += t.Amount
	}
	return agg
}

// ComputeYearAggregate sums one customer across the ledgers of year. Months
// where the customer has no row contribute zero.
func ComputeYearAggregate(customerID string, year int, ledgers []*models.MonthlyLedger) models.Aggregate {
	var inYear []*models.MonthlyLedger
	for _, l := range ledgers {
		if l.Period.Year == year {
			inYear = append(inYear, l)
		}
	}
	return ComputeLifetimeAggregate(customerID, inYear)
}

// ComputeLifetimeAggregate sums one customer across every ledger given.
func ComputeLifetimeAggregate(customerID string, ledgers []*models.MonthlyLedger) models.Aggregate {
	var agg models.Aggregate
	for _, l := range ledgers {
		row, ok := l.Row(customerID)
		if !ok {
			continue
		}
		t := ComputeTotals(*row, l.Rate)
		agg.Quantity += t.Quantity
		agg.Amount += t.Amount
		agg.Months++
		agg.Rows++
	}
	return agg
}

// BillingService loads ledgers and derives totals from them.
type BillingService struct {
	Ledgers *repositories.LedgerRepository
	log     *zap.Logger
}

func NewBillingService(ledgers *repositories.LedgerRepository, logger *zap.Logger) *BillingService {
	return &BillingService{Ledgers: ledgers, log: logging.OrNop(logger).Named("billing")}
}

// LoadLedgers reads every ledger whose period passes keep, in period order.
func (s *BillingService) LoadLedgers(ctx context.Context, keep func(models.Period) bool) ([]*models.MonthlyLedger, error) {
	periods, err := s.Ledgers.List(ctx)
	if err != nil {
		return nil, err
	}
	var wanted []models.Period
	for _, p := range periods {
		if keep == nil || keep(p) {
			wanted = append(wanted, p)
		}
	}

	loaded := make([]*models.MonthlyLedger, len(wanted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range wanted {
		i, p := i, p
		g.Go(func() error {
			l, err := s.Ledgers.Load(gctx, p)
			if errors.Is(err, apperr.ErrNotFound) {
				// quarantined while loading
				s.log.Warn("ledger skipped", zap.String("period", p.Key()))
				return nil
			}
			if err != nil {
				return err
			}
			loaded[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := loaded[:0]
	for _, l := range loaded {
		if l != nil {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *BillingService) MonthAggregate(ctx context.Context, p models.Period) (*models.MonthlyLedger, models.Aggregate, error) {
	l, err := s.Ledgers.Load(ctx, p)
	if err != nil {
		return nil, models.Aggregate{}, err
	}
	return l, ComputeMonthAggregate(l), nil
}

func (s *BillingService) YearAggregate(ctx context.Context, customerID string, year int) (models.Aggregate, error) {
	ledgers, err := s.LoadLedgers(ctx, func(p models.Period) bool { return p.Year == year })
	if err != nil {
		return models.Aggregate{}, err
	}
	return ComputeYearAggregate(customerID, year, ledgers), nil
}

func (s *BillingService) LifetimeAggregate(ctx context.Context, customerID string) (models.Aggregate, error) {
	ledgers, err := s.LoadLedgers(ctx, nil)
	if err != nil {
		return models.Aggregate{}, err
	}
	return ComputeLifetimeAggregate(customerID, ledgers), nil
}

// CustomerTotals returns one customer's totals for a month.
func (s *BillingService) CustomerTotals(ctx context.Context, p models.Period, customerID string) (*models.LedgerRow, models.Totals, error) {
	l, err := s.Ledgers.Load(ctx, p)
	if err != nil {
		return nil, models.Totals{}, err
	}
	row, ok := l.Row(customerID)
	if !ok {
		return nil, models.Totals{}, apperr.ErrNotFound
	}
	return row, ComputeTotals(*row, l.Rate), nil
}
