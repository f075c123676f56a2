package repositories

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"dairy-billing/internal/apperr"
	"dairy-billing/internal/timeutil"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// readFirstSheet opens a workbook and returns every row of its first sheet.
// A missing file is reported as fs.ErrNotExist.
func readFirstSheet(path string) (*excelize.File, string, [][]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, "", nil, err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, "", nil, fmt.Errorf("%w: %v", apperr.ErrCorruptFile, err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, "", nil, fmt.Errorf("%w: no sheets", apperr.ErrCorruptFile)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		f.Close()
		return nil, "", nil, fmt.Errorf("%w: %v", apperr.ErrCorruptFile, err)
	}
	return f, sheets[0], rows, nil
}

// headerMatches compares a header row against the expected column names.
// The first required columns must be present; later ones may be missing.
func headerMatches(got, want []string, required int) bool {
	if len(got) < required {
		return false
	}
	for i, name := range want {
		if i >= len(got) {
			return i >= required
		}
		if !strings.EqualFold(strings.TrimSpace(got[i]), name) {
			return false
		}
	}
	return true
}

// quarantine renames an unreadable workbook out of the way so it can be
// recovered by hand.
func quarantine(logger *zap.Logger, path string, cause error) {
	dst := fmt.Sprintf("%s.corrupt-%s", path, timeutil.Now().Format(timeutil.StampLayout))
	if err := os.Rename(path, dst); err != nil {
		logger.Error("failed to quarantine corrupt workbook",
			zap.String("path", path), zap.Error(err))
		return
	}
	logger.Warn("corrupt workbook quarantined, starting from an empty file",
		zap.String("path", path), zap.String("moved_to", dst), zap.NamedError("cause", cause))
}

// saveWorkbook writes f to a temporary file next to path and renames it into
// place, so readers see either the previous workbook or the new one.
func saveWorkbook(f *excelize.File, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.IO("mkdir", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return apperr.IO("create", path, err)
	}
	tmpName := tmp.Name()

	_, err = f.WriteTo(tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return apperr.IO("write", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		if isLocked(err) {
			return apperr.IO("save", path, apperr.ErrFileLocked)
		}
		return apperr.IO("save", path, err)
	}
	return nil
}

// recoverable reports the read failures that are repaired by recreating the file.
func recoverable(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, apperr.ErrCorruptFile)
}

// isLocked recognizes the errors an OS returns when another program holds the file.
func isLocked(err error) bool {
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.ETXTBSY) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "being used by another process") || strings.Contains(msg, "locked")
}

// newSheetFile returns an empty workbook whose only sheet is named sheet.
func newSheetFile(sheet string) (*excelize.File, error) {
	f := excelize.NewFile()
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// writeTable saves a plain header + rows workbook.
func writeTable(path, sheet string, header []string, rows [][]any, widths map[string]float64) error {
	f, err := newSheetFile(sheet)
	if err != nil {
		return apperr.IO("create", path, err)
	}
	defer f.Close()

	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return apperr.IO("write", path, err)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return apperr.IO("write", path, err)
		}
	}
	for col, w := range widths {
		f.SetColWidth(sheet, col, col, w)
	}
	return saveWorkbook(f, path)
}

// cell returns row[i] trimmed, or "" past the end of a short row.
func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

// Sheet is one tab of an exported workbook.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]any
	Widths map[string]float64
	// Wrap turns on text wrapping for the data rows.
	Wrap bool
}

// ExportWorkbook renders sheets into an in-memory xlsx file for download.
func ExportWorkbook(sheets ...Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, errors.New("no sheets to export")
	}
	f, err := newSheetFile(sheets[0].Name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	headStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"14B8A6"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, err
	}
	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true},
	})
	if err != nil {
		return nil, err
	}

	for i, sh := range sheets {
		if i > 0 {
			if _, err := f.NewSheet(sh.Name); err != nil {
				return nil, fmt.Errorf("sheet %s: %w", sh.Name, err)
			}
		}
		head := make([]any, len(sh.Header))
		for j, h := range sh.Header {
			head[j] = h
		}
		if err := f.SetSheetRow(sh.Name, "A1", &head); err != nil {
			return nil, err
		}
		lastCol, _ := excelize.CoordinatesToCellName(max(len(sh.Header), 1), 1)
		f.SetCellStyle(sh.Name, "A1", lastCol, headStyle)

		for r, row := range sh.Rows {
			cellName, _ := excelize.CoordinatesToCellName(1, r+2)
			vals := row
			if err := f.SetSheetRow(sh.Name, cellName, &vals); err != nil {
				return nil, err
			}
		}
		if sh.Wrap && len(sh.Rows) > 0 {
			end, _ := excelize.CoordinatesToCellName(max(len(sh.Header), 1), len(sh.Rows)+1)
			f.SetCellStyle(sh.Name, "A2", end, wrapStyle)
		}
		for col, w := range sh.Widths {
			f.SetColWidth(sh.Name, col, col, w)
		}
		f.SetPanes(sh.Name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
