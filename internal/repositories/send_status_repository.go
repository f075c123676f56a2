package repositories

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"dairy-billing/internal/apperr"
	"dairy-billing/internal/logging"
	"dairy-billing/internal/models"

	"go.uber.org/zap"
)

var (
	SentHeader   = []string{"CID", "Name", "Phone", "Total_Quantity", "Total_Amount"}
	UnsentHeader = []string{"CID", "Name", "Phone", "Total_Quantity", "Total_Amount", "Reason"}
)

// SendStatusRepository keeps Status/<Month>_<Year>/{Sent,Unsent}_<Month>_<Year>.xlsx.
type SendStatusRepository struct {
	Dir string
	log *zap.Logger
	mu  sync.RWMutex
}

func NewSendStatusRepository(dir string, logger *zap.Logger) *SendStatusRepository {
	return &SendStatusRepository{Dir: dir, log: logging.OrNop(logger).Named("status_store")}
}

func (r *SendStatusRepository) monthDir(p models.Period) string {
	return filepath.Join(r.Dir, p.StatusKey())
}

func (r *SendStatusRepository) SentPath(p models.Period) string {
	return filepath.Join(r.monthDir(p), fmt.Sprintf("Sent_%s.xlsx", p.StatusKey()))
}

func (r *SendStatusRepository) UnsentPath(p models.Period) string {
	return filepath.Join(r.monthDir(p), fmt.Sprintf("Unsent_%s.xlsx", p.StatusKey()))
}

// LoadSent returns the month's sent records, deduplicated by customer id
// (first occurrence wins). A missing file is an empty set.
func (r *SendStatusRepository) LoadSent(ctx context.Context, p models.Period) ([]models.SentRecord, error) {
	rows, err := r.loadTable(ctx, r.SentPath(p), SentHeader)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(rows))
	records := make([]models.SentRecord, 0, len(rows))
	for _, row := range rows {
		id := cell(row, 0)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		records = append(records, models.SentRecord{
			CustomerID:    id,
			Name:          cell(row, 1),
			Phone:         normalizeStoredPhone(cell(row, 2)),
			TotalQuantity: parseNumber(cell(row, 3)),
			TotalAmount:   parseNumber(cell(row, 4)),
		})
	}
	return records, nil
}

// LoadUnsent returns the month's outstanding customers. A missing file is an empty set.
func (r *SendStatusRepository) LoadUnsent(ctx context.Context, p models.Period) ([]models.UnsentRecord, error) {
	rows, err := r.loadTable(ctx, r.UnsentPath(p), UnsentHeader)
	if err != nil {
		return nil, err
	}
	records := make([]models.UnsentRecord, 0, len(rows))
	for _, row := range rows {
		id := cell(row, 0)
		if id == "" {
			continue
		}
		records = append(records, models.UnsentRecord{
			CustomerID:    id,
			Name:          cell(row, 1),
			Phone:         normalizeStoredPhone(cell(row, 2)),
			TotalQuantity: parseNumber(cell(row, 3)),
			TotalAmount:   parseNumber(cell(row, 4)),
			Reason:        cell(row, 5),
		})
	}
	return records, nil
}

func (r *SendStatusRepository) SaveSent(ctx context.Context, p models.Period, records []models.SentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows := make([][]any, len(records))
	for i, s := range records {
		rows[i] = []any{s.CustomerID, s.Name, s.Phone, s.TotalQuantity, s.TotalAmount}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return writeTable(r.SentPath(p), "Sent", SentHeader, rows, map[string]float64{"B": 24, "C": 14})
}

// SaveUnsent writes the outstanding set. An empty set removes the file.
func (r *SendStatusRepository) SaveUnsent(ctx context.Context, p models.Period, records []models.UnsentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := r.UnsentPath(p)
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(records) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			if isLocked(err) {
				return apperr.IO("remove", path, apperr.ErrFileLocked)
			}
			return apperr.IO("remove", path, err)
		}
		return nil
	}
	rows := make([][]any, len(records))
	for i, u := range records {
		rows[i] = []any{u.CustomerID, u.Name, u.Phone, u.TotalQuantity, u.TotalAmount, u.Reason}
	}
	return writeTable(path, "Unsent", UnsentHeader, rows, map[string]float64{"B": 24, "C": 14, "F": 30})
}

// UnsentExists reports whether the month has anything outstanding on disk.
func (r *SendStatusRepository) UnsentExists(p models.Period) bool {
	_, err := os.Stat(r.UnsentPath(p))
	return err == nil
}

// loadTable returns the data rows of a status file. A damaged file is checked
// again under the write lock, quarantined and treated as empty.
func (r *SendStatusRepository) loadTable(ctx context.Context, path string, header []string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	rows, err := readTable(path, header)
	r.mu.RUnlock()
	if errors.Is(err, apperr.ErrCorruptFile) {
		r.mu.Lock()
		rows, err = readTable(path, header)
		if errors.Is(err, apperr.ErrCorruptFile) {
			quarantine(r.log, path, err)
		}
		r.mu.Unlock()
	}
	if recoverable(err) {
		return nil, nil
	}
	return rows, err
}

func readTable(path string, header []string) ([][]string, error) {
	f, _, rows, err := readFirstSheet(path)
	if err != nil {
		if recoverable(err) {
			return nil, err
		}
		return nil, apperr.IO("open", path, err)
	}
	f.Close()
	if len(rows) == 0 || !headerMatches(rows[0], header, len(header)) {
		return nil, fmt.Errorf("%w: unexpected status header", apperr.ErrCorruptFile)
	}
	return rows[1:], nil
}

func parseNumber(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
