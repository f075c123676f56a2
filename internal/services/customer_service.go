package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"dairy-billing/internal/apperr"
	"dairy-billing/internal/logging"
	"dairy-billing/internal/models"
	"dairy-billing/internal/repositories"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// RosterEvent describes a committed roster change.
type RosterEvent struct {
	Kind string   `json:"kind"` // add, edit, delete, undo
	IDs  []string `json:"ids"`
}

// RosterObserver is called after every successful roster mutation.
type RosterObserver func(ctx context.Context, ev RosterEvent)

type undoKind int

const (
	undoDelete undoKind = iota + 1
	undoEdit
)

type undoEntry struct {
	kind undoKind
	// delete: removed rows and their positions in the active roster
	removed   []models.Customer
	positions []int
	// edit: values before the change
	before models.Customer
}

type CustomerService struct {
	Repo *repositories.CustomerRepository

	validate *validator.Validate
	log      *zap.Logger
	maxUndo  int

	mu        sync.Mutex
	undo      []undoEntry
	observers []RosterObserver
}

func NewCustomerService(repo *repositories.CustomerRepository, maxUndo int, logger *zap.Logger) *CustomerService {
	if maxUndo <= 0 {
		maxUndo = 10
	}
	return &CustomerService{
		Repo:     repo,
		validate: validator.New(),
		log:      logging.OrNop(logger).Named("roster"),
		maxUndo:  maxUndo,
	}
}

// Subscribe registers an observer for roster changes.
func (s *CustomerService) Subscribe(fn RosterObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *CustomerService) notify(ctx context.Context, ev RosterEvent) {
	s.mu.Lock()
	obs := append([]RosterObserver(nil), s.observers...)
	s.mu.Unlock()
	for _, fn := range obs {
		fn(ctx, ev)
	}
}

func (s *CustomerService) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	return s.Repo.ListActive(ctx)
}

func (s *CustomerService) ListDeleted(ctx context.Context) ([]models.Customer, error) {
	return s.Repo.ListDeleted(ctx)
}

// GetCustomer looks in the active roster, then the deleted one.
func (s *CustomerService) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	active, err := s.Repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range active {
		if c.ID == id {
			return &c, nil
		}
	}
	deleted, err := s.Repo.ListDeleted(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range deleted {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("customer %s: %w", id, apperr.ErrNotFound)
}

// Search matches id, name and address case-insensitively and phone as a
// substring. Terms shorter than two characters return the full roster.
func (s *CustomerService) Search(ctx context.Context, term string) ([]models.Customer, error) {
	active, err := s.Repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(strings.TrimSpace(term))
	if len([]rune(term)) < 2 {
		return active, nil
	}
	var out []models.Customer
	for _, c := range active {
		if strings.Contains(strings.ToLower(c.ID), term) ||
			strings.Contains(strings.ToLower(c.Name), term) ||
			strings.Contains(c.Phone, term) ||
			strings.Contains(strings.ToLower(c.Address), term) {
			out = append(out, c)
		}
	}
	return out, nil
}

// NextID returns the id the next add will use. It never returns an id that
// was handed out before, whether that customer is active or deleted.
func (s *CustomerService) NextID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	active, deleted, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	n, err := s.nextNumber(ctx, active, deleted)
	if err != nil {
		return "", err
	}
	return formatID(n), nil
}

func (s *CustomerService) nextNumber(ctx context.Context, active, deleted []models.Customer) (int, error) {
	last, err := s.Repo.LastAssigned(ctx)
	if err != nil {
		return 0, err
	}
	// rows typed into the workbook by hand can be ahead of the counter
	for _, c := range append(append([]models.Customer(nil), active...), deleted...) {
		if n, ok := repositories.CustomerNumber(c.ID); ok && n > last {
			last = n
		}
	}
	return last + 1, nil
}

func formatID(n int) string {
	return fmt.Sprintf("%s%d", models.CustomerIDPrefix, n)
}

func (s *CustomerService) load(ctx context.Context) ([]models.Customer, []models.Customer, error) {
	active, err := s.Repo.ListActive(ctx)
	if err != nil {
		return nil, nil, err
	}
	deleted, err := s.Repo.ListDeleted(ctx)
	if err != nil {
		return nil, nil, err
	}
	return active, deleted, nil
}

func (s *CustomerService) clean(in models.CustomerInput) (models.CustomerInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	if err := s.validate.Struct(in); err != nil {
		return in, apperr.FromValidator(err)
	}
	return in, nil
}

func phoneTaken(active []models.Customer, phone, exceptID string) bool {
	for _, c := range active {
		if c.Phone == phone && c.ID != exceptID {
			return true
		}
	}
	return false
}

// CreateCustomer adds a customer with a fresh id and the default cluster.
func (s *CustomerService) CreateCustomer(ctx context.Context, in models.CustomerInput) (*models.Customer, error) {
	in, err := s.clean(in)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	active, deleted, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if phoneTaken(active, in.Phone, "") {
		s.mu.Unlock()
		return nil, apperr.Validation("phone", "%s is already used by another customer", in.Phone)
	}
	n, err := s.nextNumber(ctx, active, deleted)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	// the counter moves first so a failed roster write never lets the id be reused
	if err := s.Repo.SaveLastAssigned(n); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	c := models.Customer{
		ID:      formatID(n),
		Name:    in.Name,
		Phone:   in.Phone,
		Address: in.Address,
		Cluster: models.DefaultCluster,
		Status:  models.CustomerActive,
	}
	active = append(active, c)
	repositories.Renumber(active)
	if err := s.Repo.SaveActive(ctx, active); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	c.SNo = len(active)
	s.log.Info("customer added", zap.String("id", c.ID), zap.String("name", c.Name))
	s.notify(ctx, RosterEvent{Kind: "add", IDs: []string{c.ID}})
	return &c, nil
}

// UpdateCustomer edits name, phone and address. The previous values can be restored with Undo.
func (s *CustomerService) UpdateCustomer(ctx context.Context, id string, in models.CustomerInput) (*models.Customer, error) {
	in, err := s.clean(in)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	active, err := s.Repo.ListActive(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	idx := indexOf(active, id)
	if idx < 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("customer %s: %w", id, apperr.ErrNotFound)
	}
	if phoneTaken(active, in.Phone, id) {
		s.mu.Unlock()
		return nil, apperr.Validation("phone", "%s is already used by another customer", in.Phone)
	}

	before := active[idx]
	active[idx].Name = in.Name
	active[idx].Phone = in.Phone
	active[idx].Address = in.Address
	if err := s.Repo.SaveActive(ctx, active); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.pushUndo(undoEntry{kind: undoEdit, before: before})
	updated := active[idx]
	s.mu.Unlock()

	s.log.Info("customer updated", zap.String("id", id))
	s.notify(ctx, RosterEvent{Kind: "edit", IDs: []string{id}})
	return &updated, nil
}

// DeleteCustomers moves the given customers to the deleted roster as one undoable batch.
func (s *CustomerService) DeleteCustomers(ctx context.Context, ids []string) ([]models.Customer, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[strings.TrimSpace(id)] = true
	}

	s.mu.Lock()
	active, deleted, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	var kept, removed []models.Customer
	var positions []int
	for i, c := range active {
		if want[c.ID] {
			removed = append(removed, c)
			positions = append(positions, i)
			continue
		}
		kept = append(kept, c)
	}
	if len(removed) == 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("customers %v: %w", ids, apperr.ErrNotFound)
	}

	for _, c := range removed {
		c.Status = models.CustomerDeleted
		deleted = append(deleted, c)
	}
	repositories.Renumber(kept)
	repositories.Renumber(deleted)

	// deleted first: a failure in between leaves a duplicate, never a lost row
	if err := s.Repo.SaveDeleted(ctx, deleted); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := s.Repo.SaveActive(ctx, kept); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.pushUndo(undoEntry{kind: undoDelete, removed: removed, positions: positions})
	s.mu.Unlock()

	removedIDs := idsOf(removed)
	s.log.Info("customers deleted", zap.Strings("ids", removedIDs))
	s.notify(ctx, RosterEvent{Kind: "delete", IDs: removedIDs})
	return removed, nil
}

// Undo reverses the most recent delete or edit. It returns apperr.ErrNothingToUndo on an empty history.
func (s *CustomerService) Undo(ctx context.Context) (RosterEvent, error) {
	s.mu.Lock()
	if len(s.undo) == 0 {
		s.mu.Unlock()
		return RosterEvent{}, apperr.ErrNothingToUndo
	}
	entry := s.undo[len(s.undo)-1]

	var ev RosterEvent
	var err error
	switch entry.kind {
	case undoDelete:
		ev, err = s.undoDelete(ctx, entry)
	case undoEdit:
		ev, err = s.undoEdit(ctx, entry)
	}
	if err != nil {
		s.mu.Unlock()
		return RosterEvent{}, err
	}
	s.undo = s.undo[:len(s.undo)-1]
	s.mu.Unlock()

	s.log.Info("undo applied", zap.Strings("ids", ev.IDs))
	s.notify(ctx, ev)
	return ev, nil
}

func (s *CustomerService) undoDelete(ctx context.Context, entry undoEntry) (RosterEvent, error) {
	active, deleted, err := s.load(ctx)
	if err != nil {
		return RosterEvent{}, err
	}
	restoring := make(map[string]bool, len(entry.removed))
	for _, c := range entry.removed {
		if phoneTaken(active, c.Phone, "") {
			return RosterEvent{}, apperr.Validation("phone", "cannot restore %s: phone %s is now used by another customer", c.ID, c.Phone)
		}
		restoring[c.ID] = true
	}

	// reinsert at the original positions, lowest first
	restored := append([]models.Customer(nil), active...)
	for i, c := range entry.removed {
		c.Status = models.CustomerActive
		pos := entry.positions[i]
		if pos > len(restored) {
			pos = len(restored)
		}
		restored = append(restored, models.Customer{})
		copy(restored[pos+1:], restored[pos:])
		restored[pos] = c
	}

	var remaining []models.Customer
	for _, c := range deleted {
		if !restoring[c.ID] {
			remaining = append(remaining, c)
		}
	}
	repositories.Renumber(restored)
	repositories.Renumber(remaining)

	if err := s.Repo.SaveActive(ctx, restored); err != nil {
		return RosterEvent{}, err
	}
	if err := s.Repo.SaveDeleted(ctx, remaining); err != nil {
		return RosterEvent{}, err
	}
	return RosterEvent{Kind: "undo", IDs: idsOf(entry.removed)}, nil
}

func (s *CustomerService) undoEdit(ctx context.Context, entry undoEntry) (RosterEvent, error) {
	active, err := s.Repo.ListActive(ctx)
	if err != nil {
		return RosterEvent{}, err
	}
	idx := indexOf(active, entry.before.ID)
	if idx < 0 {
		return RosterEvent{}, fmt.Errorf("customer %s: %w", entry.before.ID, apperr.ErrNotFound)
	}
	if phoneTaken(active, entry.before.Phone, entry.before.ID) {
		return RosterEvent{}, apperr.Validation("phone", "cannot restore %s: phone %s is now used by another customer", entry.before.ID, entry.before.Phone)
	}
	active[idx].Name = entry.before.Name
	active[idx].Phone = entry.before.Phone
	active[idx].Address = entry.before.Address
	if err := s.Repo.SaveActive(ctx, active); err != nil {
		return RosterEvent{}, err
	}
	return RosterEvent{Kind: "undo", IDs: []string{entry.before.ID}}, nil
}

// pushUndo appends to the bounded history, dropping the oldest entry. Callers hold mu.
func (s *CustomerService) pushUndo(e undoEntry) {
	s.undo = append(s.undo, e)
	if len(s.undo) > s.maxUndo {
		s.undo = append([]undoEntry(nil), s.undo[len(s.undo)-s.maxUndo:]...)
	}
}

// UndoDepth reports how many actions can be undone.
func (s *CustomerService) UndoDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo)
}

func indexOf(customers []models.Customer, id string) int {
	for i, c := range customers {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func idsOf(customers []models.Customer) []string {
	ids := make([]string, len(customers))
	for i, c := range customers {
		ids[i] = c.ID
	}
	return ids
}

// sortByNumber orders customers by the numeric part of their id.
func sortByNumber(customers []models.Customer) {
	sort.SliceStable(customers, func(i, j int) bool {
		a, _ := repositories.CustomerNumber(customers[i].ID)
		b, _ := repositories.CustomerNumber(customers[j].ID)
		return a < b
	})
}
