package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"dairy-billing/internal/apperr"
	"dairy-billing/internal/logging"
	"dairy-billing/internal/metrics"
	"dairy-billing/internal/models"
	"dairy-billing/internal/netcheck"
	"dairy-billing/internal/repositories"
	"dairy-billing/internal/timeutil"
	"dairy-billing/internal/whatsapp"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeliveryChannel sends one bill and reports the channel that carried it.
type DeliveryChannel interface {
	Deliver(ctx context.Context, phone, message string) (string, error)
}

// SessionControl carries pause and cancel requests into a running worker.
// Both are only observed between customers, never during a send.
type SessionControl struct {
	mu     sync.Mutex
	resume chan struct{} // non-nil while paused
	cancel chan struct{}
	once   sync.Once
}

func NewSessionControl() *SessionControl {
	return &SessionControl{cancel: make(chan struct{})}
}

func (c *SessionControl) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resume == nil {
		c.resume = make(chan struct{})
	}
}

func (c *SessionControl) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resume != nil {
		close(c.resume)
		c.resume = nil
	}
}

func (c *SessionControl) Cancel() {
	c.once.Do(func() { close(c.cancel) })
}

func (c *SessionControl) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resume != nil
}

func (c *SessionControl) Cancelled() bool {
	select {
	case <-c.cancel:
		return true
	default:
		return false
	}
}

// Done is closed by Cancel.
func (c *SessionControl) Done() <-chan struct{} { return c.cancel }

// Wait blocks while paused. It returns false once the session is cancelled.
func (c *SessionControl) Wait() bool {
	for {
		c.mu.Lock()
		ch := c.resume
		c.mu.Unlock()
		if ch == nil {
			return !c.Cancelled()
		}
		select {
		case <-ch:
		case <-c.cancel:
			return false
		}
	}
}

// SendSession is one run of the send worker over a selection of customers.
type SendSession struct {
	ID        string
	Period    models.Period
	Retry     bool
	StartedAt time.Time

	control *SessionControl
	tracker *SendTracker
	order   []string
	profile models.BusinessProfile

	saving   sync.Mutex
	mu       sync.Mutex
	progress models.SessionProgress
	history  []models.MessageLog
	result   *models.SendStatus
	err      error
	subs     map[chan models.SessionProgress]struct{}
	done     chan struct{}
}

func (s *SendSession) Control() *SessionControl { return s.control }

func (s *SendSession) Progress() models.SessionProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Log returns every attempt made so far, in order.
func (s *SendSession) Log() []models.MessageLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MessageLog(nil), s.history...)
}

func (s *SendSession) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done is closed after the session has been finalized.
func (s *SendSession) Done() <-chan struct{} { return s.done }

// Result is the persisted partition and the finalize error, if any.
func (s *SendSession) Result() (*models.SendStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

// Subscribe returns a channel of progress updates. Slow readers miss
// intermediate updates. The channel is closed when the session ends.
func (s *SendSession) Subscribe() (<-chan models.SessionProgress, func()) {
	ch := make(chan models.SessionProgress, 16)
	s.mu.Lock()
	defer s.mu.Unlock()
	ch <- s.progress
	select {
	case <-s.done:
		close(ch)
		return ch, func() {}
	default:
	}
	s.subs[ch] = struct{}{}
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

func (s *SendSession) Pause() {
	s.control.Pause()
	s.update(func(p *models.SessionProgress) {
		if p.State == models.SessionRunning {
			p.State = models.SessionPaused
		}
	})
}

func (s *SendSession) Resume() {
	s.control.Resume()
	s.update(func(p *models.SessionProgress) {
		if p.State == models.SessionPaused {
			p.State = models.SessionRunning
		}
	})
}

// Cancel stops the session after the customer currently being sent.
func (s *SendSession) Cancel() {
	s.control.Cancel()
}

func (s *SendSession) update(fn func(p *models.SessionProgress)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.progress)
	s.publishLocked()
}

func (s *SendSession) publishLocked() {
	for ch := range s.subs {
		select {
		case ch <- s.progress:
		default:
		}
	}
}

func (s *SendSession) record(entry models.MessageLog) {
	s.update(func(p *models.SessionProgress) {
		s.history = append(s.history, entry)
		p.Processed++
		switch entry.Status {
		case models.MessageStatusSent:
			p.Sent++
		case models.MessageStatusFailed:
			p.Failed++
		}
		p.Current = ""
		p.Last = &entry
	})
}

func (s *SendSession) finish(state models.SessionState, result *models.SendStatus, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.State = state
	s.progress.Current = ""
	s.result = result
	s.err = err
	if err != nil {
		s.progress.Error = err.Error()
	} else {
		s.progress.Error = ""
	}
	s.publishLocked()
	for ch := range s.subs {
		close(ch)
		delete(s.subs, ch)
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// ErrSenderClosed is returned by Start once Shutdown has begun.
var ErrSenderClosed = errors.New("sender is shutting down")

// SendOptions tune the pacing of a session.
type SendOptions struct {
	SendDelay      time.Duration // after a successful send
	FailureDelay   time.Duration // after a failed send
	MessageTimeout time.Duration
}

// SendService starts and tracks send sessions. At most one session runs per month.
type SendService struct {
	Ledgers *LedgerService
	Status  *repositories.SendStatusRepository
	Profile *ProfileService

	// AfterFinalize runs once a session's results are on disk.
	AfterFinalize func(p models.Period)

	channel DeliveryChannel
	probe   netcheck.Checker
	opts    SendOptions
	clock   timeutil.Clock
	log     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*SendSession
	active   map[models.Period]*SendSession
	starting map[models.Period]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewSendService(ledgers *LedgerService, status *repositories.SendStatusRepository, profile *ProfileService,
	channel DeliveryChannel, probe netcheck.Checker, opts SendOptions, clock timeutil.Clock, logger *zap.Logger) *SendService {
	if opts.MessageTimeout <= 0 {
		opts.MessageTimeout = 45 * time.Second
	}
	if clock == nil {
		clock = timeutil.Now
	}
	return &SendService{
		Ledgers:  ledgers,
		Status:   status,
		Profile:  profile,
		channel:  channel,
		probe:    probe,
		opts:     opts,
		clock:    clock,
		log:      logging.OrNop(logger).Named("sender"),
		sessions: make(map[string]*SendSession),
		active:   make(map[models.Period]*SendSession),
		starting: make(map[models.Period]struct{}),
	}
}

// Start checks the selection, the business profile and connectivity, then
// runs the session in the background. With Retry set and no ids, every
// customer in the month's unsent file is selected.
func (s *SendService) Start(ctx context.Context, p models.Period, req models.StartSessionRequest) (*SendSession, error) {
	if err := s.reserve(p); err != nil {
		return nil, err
	}
	sess, err := s.prepare(ctx, p, req)
	if err != nil {
		s.mu.Lock()
		delete(s.starting, p)
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	delete(s.starting, p)
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", p, ErrSenderClosed)
	}
	s.sessions[sess.ID] = sess
	s.active[p] = sess
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Info("send session started",
		zap.String("session", sess.ID),
		zap.String("period", p.Key()),
		zap.Int("customers", len(sess.order)),
		zap.Bool("retry", req.Retry))

	metrics.SessionsActive.Inc()
	go s.run(sess)
	return sess, nil
}

// reserve claims p for a session that is being prepared.
func (s *SendService) reserve(p models.Period) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%s: %w", p, ErrSenderClosed)
	}
	_, busy := s.active[p]
	_, pending := s.starting[p]
	if busy || pending {
		return fmt.Errorf("%s: %w", p, apperr.ErrSessionRunning)
	}
	s.starting[p] = struct{}{}
	return nil
}

// prepare loads everything a session needs and runs the connectivity check.
// It runs without s.mu.
func (s *SendService) prepare(ctx context.Context, p models.Period, req models.StartSessionRequest) (*SendSession, error) {
	profile, err := s.Profile.Complete(ctx)
	if err != nil {
		return nil, err
	}
	ledger, err := s.Ledgers.Get(ctx, p)
	if err != nil {
		return nil, err
	}

	ids := req.CustomerIDs
	if req.Retry && len(ids) == 0 {
		unsent, err := s.Status.LoadUnsent(ctx, p)
		if err != nil {
			return nil, err
		}
		for _, u := range unsent {
			ids = append(ids, u.CustomerID)
		}
	}
	ids = uniqueIDs(ids)

	tracker, err := NewSendTracker(ctx, s.Status, ledger, s.log)
	if err != nil {
		return nil, err
	}
	if err := tracker.BeginSession(ctx, ids, s.probe); err != nil {
		if errors.Is(err, apperr.ErrConnectivity) {
			s.log.Warn("send session aborted, no connectivity", zap.String("period", p.Key()))
		}
		return nil, err
	}

	sess := &SendSession{
		ID:        uuid.NewString(),
		Period:    p,
		Retry:     req.Retry,
		StartedAt: s.clock(),
		control:   NewSessionControl(),
		tracker:   tracker,
		order:     ids,
		profile:   *profile,
		subs:      make(map[chan models.SessionProgress]struct{}),
		done:      make(chan struct{}),
	}
	sess.progress = models.SessionProgress{
		SessionID: sess.ID,
		Period:    p,
		State:     models.SessionRunning,
		Total:     len(ids),
	}
	return sess, nil
}

func (s *SendService) run(sess *SendSession) {
	defer s.wg.Done()
	defer metrics.SessionsActive.Dec()
	started := time.Now()

	for i, id := range sess.order {
		if !sess.control.Wait() {
			break
		}
		sess.update(func(p *models.SessionProgress) { p.Current = id })

		if err := sess.tracker.Attempt(id); err != nil {
			if !errors.Is(err, apperr.ErrAlreadySent) {
				s.log.Error("cannot attempt customer", zap.String("customer", id), zap.Error(err))
			}
			metrics.MessagesTotal.WithLabelValues(models.MessageStatusSkipped, "none").Inc()
			sess.record(models.MessageLog{CustomerID: id, Status: models.MessageStatusSkipped, ErrorMessage: err.Error(), CreatedAt: s.clock()})
			continue
		}

		entry := s.sendOne(sess, id)
		sess.record(entry)

		if i == len(sess.order)-1 {
			break
		}
		delay := s.opts.SendDelay
		if entry.Status == models.MessageStatusFailed {
			delay = s.opts.FailureDelay
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-sess.control.Done():
			}
		}
	}

	s.finalize(context.Background(), sess, started)
}

func (s *SendService) sendOne(sess *SendSession, id string) models.MessageLog {
	row, _ := sess.tracker.ledger.Row(id)
	totals := ComputeTotals(*row, sess.tracker.ledger.Rate)
	customer := models.Customer{ID: row.CustomerID, Name: row.Name, Phone: row.Phone}
	text := ComposeBill(customer, sess.Period, totals, sess.profile)

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.MessageTimeout)
	defer cancel()
	channel, err := s.channel.Deliver(ctx, row.Phone, text)

	entry := models.MessageLog{
		CustomerID:   id,
		CustomerName: row.Name,
		Phone:        row.Phone,
		Channel:      channel,
		CreatedAt:    s.clock(),
	}
	if err != nil {
		reason := apperr.ShortReason(err.Error())
		if errors.Is(err, whatsapp.ErrInvalidNumber) {
			reason = models.ReasonInvalidNumber
		}
		derr := &apperr.DeliveryError{CustomerID: id, Reason: reason}
		s.log.Warn("bill not delivered", zap.String("session", sess.ID), zap.Error(derr), zap.NamedError("cause", err))
		if rerr := sess.tracker.RecordResult(id, models.StateFailed, reason); rerr != nil {
			s.log.Error("recording failure", zap.String("customer", id), zap.Error(rerr))
		}
		metrics.MessagesTotal.WithLabelValues(models.MessageStatusFailed, "none").Inc()
		entry.Status = models.MessageStatusFailed
		entry.ErrorMessage = reason
		return entry
	}

	if rerr := sess.tracker.RecordResult(id, models.StateSent, ""); rerr != nil {
		s.log.Error("recording success", zap.String("customer", id), zap.Error(rerr))
	}
	metrics.MessagesTotal.WithLabelValues(models.MessageStatusSent, channel).Inc()
	entry.Status = models.MessageStatusSent
	return entry
}

// finalize persists the session. When saving fails the month stays reserved
// by this session so a new one cannot resend bills; Refinalize retries.
func (s *SendService) finalize(ctx context.Context, sess *SendSession, started time.Time) {
	sess.saving.Lock()
	defer sess.saving.Unlock()
	if _, prev := sess.Result(); prev == nil && sess.isDone() {
		return
	}
	st, err := sess.tracker.Finalize(ctx)

	state := models.SessionCompleted
	switch {
	case err != nil:
		state = models.SessionFailed
	case sess.control.Cancelled():
		state = models.SessionCancelled
	}

	// the month is free again before Done closes
	if err == nil {
		s.mu.Lock()
		if s.active[sess.Period] == sess {
			delete(s.active, sess.Period)
		}
		s.mu.Unlock()
		if s.AfterFinalize != nil {
			s.AfterFinalize(sess.Period)
		}
	}
	sess.finish(state, &st, err)
	metrics.SessionDuration.WithLabelValues(string(state)).Observe(time.Since(started).Seconds())

	prog := sess.Progress()
	s.log.Info("send session finished",
		zap.String("session", sess.ID),
		zap.String("state", string(state)),
		zap.Int("sent", prog.Sent),
		zap.Int("failed", prog.Failed),
		zap.Error(err))
}

// Refinalize retries saving a session whose results could not be written.
func (s *SendService) Refinalize(ctx context.Context, id string) (*SendSession, error) {
	sess, err := s.Session(id)
	if err != nil {
		return nil, err
	}
	<-sess.Done()
	if _, ferr := sess.Result(); ferr == nil {
		return sess, nil
	}
	s.finalize(ctx, sess, sess.StartedAt)
	_, ferr := sess.Result()
	return sess, ferr
}

func (s *SendService) Session(id string) (*SendSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, apperr.ErrNotFound)
	}
	return sess, nil
}

// Sessions lists progress of every session of this process, newest first.
func (s *SendService) Sessions() []models.SessionProgress {
	s.mu.Lock()
	list := make([]*SendSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	s.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].StartedAt.After(list[j].StartedAt) })
	out := make([]models.SessionProgress, len(list))
	for i, sess := range list {
		out[i] = sess.Progress()
	}
	return out
}

// SendStatus returns the month's persisted sent and unsent sets.
func (s *SendService) SendStatus(ctx context.Context, p models.Period) (models.SendStatus, error) {
	sent, err := s.Status.LoadSent(ctx, p)
	if err != nil {
		return models.SendStatus{}, err
	}
	unsent, err := s.Status.LoadUnsent(ctx, p)
	if err != nil {
		return models.SendStatus{}, err
	}
	return models.SendStatus{Period: p, Sent: sent, Unsent: unsent}, nil
}

// Shutdown cancels every session, refuses new ones and waits for the
// running ones to finalize.
func (s *SendService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, sess := range s.active {
		sess.Cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
