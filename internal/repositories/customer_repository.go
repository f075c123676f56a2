package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"dairy-billing/internal/apperr"
	"dairy-billing/internal/logging"
	"dairy-billing/internal/models"

	"go.uber.org/zap"
)

// RosterHeader is the column layout of both roster workbooks.
var RosterHeader = []string{"S.No", "CID", "Name", "Phone", "Address", "Cluster"}

const (
	activeRosterFile  = "customers.xlsx"
	deletedRosterFile = "deleted_customers.xlsx"
	counterFile       = "roster_counter.json"
)

// CustomerRepository persists the active and deleted rosters plus the id counter.
// Reads share mu; saves and recovery of damaged files hold it exclusively.
type CustomerRepository struct {
	Dir string
	log *zap.Logger
	mu  sync.RWMutex
}

func NewCustomerRepository(dir string, logger *zap.Logger) *CustomerRepository {
	return &CustomerRepository{Dir: dir, log: logging.OrNop(logger).Named("roster_store")}
}

func (r *CustomerRepository) ActivePath() string  { return filepath.Join(r.Dir, activeRosterFile) }
func (r *CustomerRepository) DeletedPath() string { return filepath.Join(r.Dir, deletedRosterFile) }
func (r *CustomerRepository) CounterPath() string { return filepath.Join(r.Dir, counterFile) }

// ListActive loads the active roster, creating an empty file when missing.
func (r *CustomerRepository) ListActive(ctx context.Context) ([]models.Customer, error) {
	return r.load(ctx, r.ActivePath(), models.CustomerActive)
}

// ListDeleted loads the deleted roster, creating an empty file when missing.
func (r *CustomerRepository) ListDeleted(ctx context.Context) ([]models.Customer, error) {
	return r.load(ctx, r.DeletedPath(), models.CustomerDeleted)
}

func (r *CustomerRepository) SaveActive(ctx context.Context, customers []models.Customer) error {
	return r.save(ctx, r.ActivePath(), "Customers", customers)
}

func (r *CustomerRepository) SaveDeleted(ctx context.Context, customers []models.Customer) error {
	return r.save(ctx, r.DeletedPath(), "Deleted", customers)
}

// load reads a roster. A missing or damaged file is checked again under the
// write lock before it is quarantined and replaced with an empty roster.
func (r *CustomerRepository) load(ctx context.Context, path string, status models.CustomerStatus) ([]models.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	customers, err := r.read(path, status)
	r.mu.RUnlock()
	if !recoverable(err) {
		return customers, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	customers, err = r.read(path, status)
	if !recoverable(err) {
		return customers, err
	}
	if errors.Is(err, apperr.ErrCorruptFile) {
		quarantine(r.log, path, err)
	}
	return []models.Customer{}, r.write(path, sheetFor(status), nil)
}

func (r *CustomerRepository) read(path string, status models.CustomerStatus) ([]models.Customer, error) {
	f, _, rows, err := readFirstSheet(path)
	if err != nil {
		if recoverable(err) {
			return nil, err
		}
		return nil, apperr.IO("open", path, err)
	}
	f.Close()

	if len(rows) == 0 || !headerMatches(rows[0], RosterHeader, 5) {
		return nil, fmt.Errorf("%w: unexpected roster header", apperr.ErrCorruptFile)
	}

	customers := make([]models.Customer, 0, len(rows)-1)
	for _, row := range rows[1:] {
		id := cell(row, 1)
		if id == "" {
			continue
		}
		c := models.Customer{
			ID:      id,
			Name:    cell(row, 2),
			Phone:   normalizeStoredPhone(cell(row, 3)),
			Address: cell(row, 4),
			Cluster: cell(row, 5),
			Status:  status,
		}
		if c.Cluster == "" {
			c.Cluster = models.DefaultCluster
		}
		customers = append(customers, c)
	}
	Renumber(customers)
	return customers, nil
}

func (r *CustomerRepository) save(ctx context.Context, path, sheet string, customers []models.Customer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.write(path, sheet, customers)
}

// write expects mu to be held.
func (r *CustomerRepository) write(path, sheet string, customers []models.Customer) error {
	rows := make([][]any, len(customers))
	for i, c := range customers {
		cluster := c.Cluster
		if cluster == "" {
			cluster = models.DefaultCluster
		}
		rows[i] = []any{i + 1, c.ID, c.Name, c.Phone, c.Address, cluster}
	}
	return writeTable(path, sheet, RosterHeader, rows, map[string]float64{
		"B": 10, "C": 24, "D": 14, "E": 32, "F": 14,
	})
}

func sheetFor(status models.CustomerStatus) string {
	if status == models.CustomerDeleted {
		return "Deleted"
	}
	return "Customers"
}

// Renumber sets S.No to 1..N in slice order.
func Renumber(customers []models.Customer) {
	for i := range customers {
		customers[i].SNo = i + 1
	}
}

// normalizeStoredPhone undoes spreadsheet number formatting such as "9876543210.0".
func normalizeStoredPhone(s string) string {
	return strings.TrimSuffix(s, ".0")
}

// CustomerNumber extracts n from "C_<n>".
func CustomerNumber(id string) (int, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(id), models.CustomerIDPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

type rosterCounter struct {
	LastAssigned int `json:"last_assigned"`
}

// LastAssigned returns the highest customer number ever handed out. When the
// counter file is absent it is seeded once from both rosters.
func (r *CustomerRepository) LastAssigned(ctx context.Context) (int, error) {
	r.mu.RLock()
	data, err := os.ReadFile(r.CounterPath())
	r.mu.RUnlock()
	if err == nil {
		var c rosterCounter
		if jsonErr := json.Unmarshal(data, &c); jsonErr == nil {
			return c.LastAssigned, nil
		}
		r.log.Warn("unreadable id counter, reseeding from rosters", zap.String("path", r.CounterPath()))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return 0, apperr.IO("read", r.CounterPath(), err)
	}

	active, err := r.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	deleted, err := r.ListDeleted(ctx)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, c := range append(active, deleted...) {
		if n, ok := CustomerNumber(c.ID); ok && n > max {
			max = n
		}
	}
	if err := r.SaveLastAssigned(max); err != nil {
		return 0, err
	}
	r.log.Info("id counter seeded from rosters", zap.Int("last_assigned", max))
	return max, nil
}

// SaveLastAssigned persists the counter.
func (r *CustomerRepository) SaveLastAssigned(n int) error {
	data, err := json.Marshal(rosterCounter{LastAssigned: n})
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return apperr.IO("mkdir", r.Dir, err)
	}
	tmp := r.CounterPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.IO("write", tmp, err)
	}
	if err := os.Rename(tmp, r.CounterPath()); err != nil {
		return apperr.IO("rename", r.CounterPath(), err)
	}
	return nil
}
