package services

import (
	"context"
	"fmt"

	"dairy-billing/internal/apperr"
	"dairy-billing/internal/logging"
	"dairy-billing/internal/models"
	"dairy-billing/internal/netcheck"
	"dairy-billing/internal/repositories"

	"go.uber.org/zap"
)

// SendTracker holds the send state of one month for the length of a session.
// It is not safe for concurrent use; the session worker owns it.
type SendTracker struct {
	period models.Period
	status *repositories.SendStatusRepository
	ledger *models.MonthlyLedger
	log    *zap.Logger

	states  map[string]models.SendState
	sent    []models.SentRecord
	reasons map[string]string // failure reasons, persisted ones overwritten by this session
}

// NewSendTracker loads the persisted sent and unsent sets for ledger's month.
func NewSendTracker(ctx context.Context, status *repositories.SendStatusRepository, ledger *models.MonthlyLedger, logger *zap.Logger) (*SendTracker, error) {
	sent, err := status.LoadSent(ctx, ledger.Period)
	if err != nil {
		return nil, err
	}
	unsent, err := status.LoadUnsent(ctx, ledger.Period)
	if err != nil {
		return nil, err
	}

	t := &SendTracker{
		period:  ledger.Period,
		status:  status,
		ledger:  ledger,
		log:     logging.OrNop(logger).Named("send_status"),
		states:  make(map[string]models.SendState),
		sent:    sent,
		reasons: make(map[string]string),
	}
	for _, s := range sent {
		t.states[s.CustomerID] = models.StateSent
	}
	for _, u := range unsent {
		if t.states[u.CustomerID] == models.StateSent {
			continue
		}
		if u.Reason != "" && u.Reason != models.ReasonNotSelected {
			t.states[u.CustomerID] = models.StateFailed
			t.reasons[u.CustomerID] = u.Reason
		}
	}
	return t, nil
}

// State returns the current state of id; unknown ids are NotAttempted.
func (t *SendTracker) State(id string) models.SendState {
	if s, ok := t.states[id]; ok {
		return s
	}
	return models.StateNotAttempted
}

// BeginSession checks the selection and connectivity. Nothing is marked
// before both pass. Selected customers that were already sent stay Sent.
func (t *SendTracker) BeginSession(ctx context.Context, selected []string, probe netcheck.Checker) error {
	if len(selected) == 0 {
		return apperr.Validation("customer_ids", "select at least one customer")
	}
	idx := t.ledger.Index()
	for _, id := range selected {
		if _, ok := idx[id]; !ok {
			return apperr.Validation("customer_ids", "%s is not in the %s ledger", id, t.period)
		}
	}
	if probe != nil {
		if err := probe.Check(ctx); err != nil {
			return err
		}
	}
	for _, id := range selected {
		if t.State(id) == models.StateSent {
			continue
		}
		t.states[id] = models.StateAttempting
	}
	return nil
}

// Attempt moves id back to Attempting before a send. Callers skip the
// customer when ErrAlreadySent is returned.
func (t *SendTracker) Attempt(id string) error {
	from := t.State(id)
	if from == models.StateSent {
		return apperr.ErrAlreadySent
	}
	if from == models.StateAttempting {
		return nil
	}
	if err := models.ValidateSendTransition(from, models.StateAttempting); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidTransition, err)
	}
	t.states[id] = models.StateAttempting
	return nil
}

// RecordResult stores the outcome of one send. Recording Sent for a customer
// that is already Sent is a no-op.
func (t *SendTracker) RecordResult(id string, outcome models.SendState, reason string) error {
	from := t.State(id)
	if from == models.StateSent {
		return nil
	}
	if err := models.ValidateSendTransition(from, outcome); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidTransition, err)
	}

	switch outcome {
	case models.StateSent:
		row, ok := t.ledger.Row(id)
		if !ok {
			return fmt.Errorf("customer %s in ledger %s: %w", id, t.period.Key(), apperr.ErrNotFound)
		}
		totals := ComputeTotals(*row, t.ledger.Rate)
		t.sent = append(t.sent, models.SentRecord{
			CustomerID:    id,
			Name:          row.Name,
			Phone:         row.Phone,
			TotalQuantity: totals.Quantity,
			TotalAmount:   totals.Amount,
		})
		delete(t.reasons, id)
	case models.StateFailed:
		t.reasons[id] = reason
	}
	t.states[id] = outcome
	return nil
}

// Snapshot derives the sent/unsent partition from the ledger. Every ledger
// customer lands in exactly one of the two sets.
func (t *SendTracker) Snapshot() models.SendStatus {
	st := models.SendStatus{Period: t.period, Sent: append([]models.SentRecord(nil), t.sent...)}
	sent := make(map[string]bool, len(t.sent))
	for _, s := range t.sent {
		sent[s.CustomerID] = true
	}
	for _, row := range t.ledger.Rows {
		if sent[row.CustomerID] {
			continue
		}
		reason := models.ReasonNotSelected
		if r, ok := t.reasons[row.CustomerID]; ok && r != "" {
			reason = r
		}
		totals := ComputeTotals(row, t.ledger.Rate)
		st.Unsent = append(st.Unsent, models.UnsentRecord{
			CustomerID:    row.CustomerID,
			Name:          row.Name,
			Phone:         row.Phone,
			TotalQuantity: totals.Quantity,
			TotalAmount:   totals.Amount,
			Reason:        reason,
		})
	}
	return st
}

// Finalize persists the partition. Customers left in Attempting (the session
// was cancelled before reaching them) keep their previous reason. It may be
// called again after an IOError.
func (t *SendTracker) Finalize(ctx context.Context) (models.SendStatus, error) {
	for id, s := range t.states {
		if s != models.StateAttempting {
			continue
		}
		if _, failed := t.reasons[id]; failed {
			t.states[id] = models.StateFailed
		} else {
			delete(t.states, id)
		}
	}

	st := t.Snapshot()
	if err := t.status.SaveSent(ctx, t.period, st.Sent); err != nil {
		t.log.Error("saving sent records failed", zap.String("period", t.period.Key()), zap.Error(err))
		return st, err
	}
	if err := t.status.SaveUnsent(ctx, t.period, st.Unsent); err != nil {
		t.log.Error("saving unsent records failed", zap.String("period", t.period.Key()), zap.Error(err))
		return st, err
	}
	t.log.Info("send status saved",
		zap.String("period", t.period.Key()),
		zap.Int("sent", len(st.Sent)),
		zap.Int("unsent", len(st.Unsent)))
	return st, nil
}
