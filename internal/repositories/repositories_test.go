package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dairy-billing/internal/apperr"
	"dairy-billing/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func TestRosterRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewCustomerRepository(t.TempDir(), zap.NewNop())

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.FileExists(t, repo.ActivePath())

	in := []models.Customer{
		{ID: "C_1", Name: "Asha", Phone: "9876543210", Address: "Lane 1"},
		{ID: "C_3", Name: "Ravi", Phone: "9123456780", Address: "Lane 2", Cluster: "North"},
	}
	require.NoError(t, repo.SaveActive(ctx, in))

	out, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].SNo)
	assert.Equal(t, 2, out[1].SNo)
	assert.Equal(t, "C_3", out[1].ID)
	assert.Equal(t, "9123456780", out[1].Phone)
	assert.Equal(t, models.DefaultCluster, out[0].Cluster)
	assert.Equal(t, "North", out[1].Cluster)
	assert.Equal(t, models.CustomerActive, out[0].Status)
}

func TestRosterCorruptFileIsQuarantined(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := NewCustomerRepository(dir, zap.NewNop())

	require.NoError(t, writeTable(repo.ActivePath(), "Sheet1", []string{"foo", "bar"}, [][]any{{"x", "y"}}, nil))

	out, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, out)

	matches, err := filepath.Glob(filepath.Join(dir, "customers.xlsx.corrupt-*"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.FileExists(t, repo.ActivePath())
}

func TestRosterGarbageFileIsQuarantined(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := NewCustomerRepository(dir, zap.NewNop())
	require.NoError(t, os.WriteFile(repo.DeletedPath(), []byte("not a workbook"), 0o644))

	out, err := repo.ListDeleted(ctx)
	require.NoError(t, err)
	assert.Empty(t, out)

	matches, _ := filepath.Glob(filepath.Join(dir, "deleted_customers.xlsx.corrupt-*"))
	assert.Len(t, matches, 1)
}

func TestRosterReadsDuringSavesSeeWholeFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := NewCustomerRepository(dir, zap.NewNop())

	roster := make([]models.Customer, 30)
	for i := range roster {
		roster[i] = models.Customer{
			ID:      fmt.Sprintf("C_%d", i+1),
			Name:    fmt.Sprintf("Customer %d", i+1),
			Phone:   fmt.Sprintf("98765%05d", i),
			Address: "Lane",
		}
	}
	require.NoError(t, repo.SaveActive(ctx, roster))

	// a second instance shares no lock and relies on the rename alone
	readers := []*CustomerRepository{repo, NewCustomerRepository(dir, zap.NewNop())}

	var wg sync.WaitGroup
	wg.Add(1 + len(readers))
	go func() {
		defer wg.Done()
		edited := append([]models.Customer(nil), roster...)
		for i := 0; i < 40; i++ {
			edited[i%len(edited)].Name = fmt.Sprintf("Renamed %d", i)
			assert.NoError(t, repo.SaveActive(ctx, edited))
		}
	}()
	for _, r := range readers {
		go func(r *CustomerRepository) {
			defer wg.Done()
			for i := 0; i < 40; i++ {
				got, err := r.ListActive(ctx)
				assert.NoError(t, err)
				assert.Len(t, got, 30)
			}
		}(r)
	}
	wg.Wait()

	quarantined, _ := filepath.Glob(filepath.Join(dir, "*.corrupt-*"))
	assert.Empty(t, quarantined)
	leftovers, _ := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	assert.Empty(t, leftovers)

	got, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 30)
}

func TestLastAssignedSeedsFromBothRosters(t *testing.T) {
	ctx := context.Background()
	repo := NewCustomerRepository(t.TempDir(), zap.NewNop())
	require.NoError(t, repo.SaveActive(ctx, []models.Customer{{ID: "C_2", Name: "A", Phone: "1111111111", Address: "x"}}))
	require.NoError(t, repo.SaveDeleted(ctx, []models.Customer{{ID: "C_7", Name: "B", Phone: "2222222222", Address: "y"}}))

	n, err := repo.LastAssigned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.FileExists(t, repo.CounterPath())

	require.NoError(t, repo.SaveLastAssigned(9))
	n, err = repo.LastAssigned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}

func TestCustomerNumber(t *testing.T) {
	n, ok := CustomerNumber("C_12")
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	_, ok = CustomerNumber("X_1")
	assert.False(t, ok)
	_, ok = CustomerNumber("C_abc")
	assert.False(t, ok)
}

func TestLedgerFormulasEvaluate(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository(t.TempDir(), zap.NewNop())
	p := models.Period{Year: 2024, Month: time.March}
	days := p.Days()

	row := models.LedgerRow{SNo: 1, CustomerID: "C_1", Name: "Asha", Phone: "9876543210", Days: make([]string, days)}
	for i := 0; i < 15; i++ {
		row.Days[i] = "2"
	}
	row.QuantityFormula = QuantityFormula(2, days)
	row.AmountFormula = AmountFormula(2, days)
	require.NoError(t, repo.Save(ctx, &models.MonthlyLedger{Period: p, Rate: 50, Rows: []models.LedgerRow{row}}))

	f, err := excelize.OpenFile(repo.Path(p))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"2024_03"}, f.GetSheetList())
	e1, _ := f.GetCellValue("2024_03", "E1")
	assert.Equal(t, "50", e1)
	f1, _ := f.GetCellValue("2024_03", "F1")
	assert.Equal(t, "01/03/24", f1)

	amtCell, _ := excelize.CoordinatesToCellName(AmountColumn(days), 2)
	amount, err := f.CalcCellValue("2024_03", amtCell)
	require.NoError(t, err)
	assert.Equal(t, "1500", amount)

	got, err := repo.Load(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.Rate)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "SUM(F2:AJ2)", got.Rows[0].QuantityFormula)
	assert.Equal(t, "IF(ISNUMBER(AK2),AK2*$E$1,0)", got.Rows[0].AmountFormula)
	assert.Equal(t, "2", got.Rows[0].Days[0])
	assert.Equal(t, "", got.Rows[0].Days[20])
}

func TestLedgerTotalsFollowRowsAfterBlankRow(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository(t.TempDir(), zap.NewNop())
	p := models.Period{Year: 2024, Month: time.March}
	days := p.Days()

	filled := func(id, qty string) models.LedgerRow {
		row := models.LedgerRow{CustomerID: id, Name: id, Phone: "9876543210", Days: make([]string, days)}
		for d := range row.Days {
			row.Days[d] = qty
		}
		return row
	}
	blank := models.LedgerRow{Days: make([]string, days)}
	require.NoError(t, repo.Save(ctx, &models.MonthlyLedger{Period: p, Rate: 50,
		Rows: []models.LedgerRow{filled("C_1", "1"), blank, filled("C_2", "2")}}))

	l, err := repo.Load(ctx, p)
	require.NoError(t, err)
	require.Len(t, l.Rows, 2)
	assert.Equal(t, "SUM(F4:AJ4)", l.Rows[1].QuantityFormula, "formula as found on the original row")
	require.NoError(t, repo.Save(ctx, l))

	f, err := excelize.OpenFile(repo.Path(p))
	require.NoError(t, err)
	defer f.Close()

	formula, _ := f.GetCellFormula("2024_03", "AK3")
	assert.Equal(t, "SUM(F3:AJ3)", formula)
	qty, err := f.CalcCellValue("2024_03", "AK3")
	require.NoError(t, err)
	assert.Equal(t, "62", qty)
	amount, err := f.CalcCellValue("2024_03", "AL3")
	require.NoError(t, err)
	assert.Equal(t, "3100", amount)
}

func TestLedgerLoadsDuringSaves(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository(t.TempDir(), zap.NewNop())
	p := models.Period{Year: 2024, Month: time.March}
	days := p.Days()

	ledger := &models.MonthlyLedger{Period: p, Rate: 50}
	for i := 1; i <= 20; i++ {
		ledger.Rows = append(ledger.Rows, models.LedgerRow{
			SNo: i, CustomerID: fmt.Sprintf("C_%d", i), Name: "x", Phone: "9876543210", Days: make([]string, days),
		})
	}
	require.NoError(t, repo.Save(ctx, ledger))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 30; i++ {
			ledger.Rows[0].Days[i%days] = "1"
			assert.NoError(t, repo.Save(ctx, ledger))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 30; i++ {
			got, err := repo.Load(ctx, p)
			if assert.NoError(t, err) {
				assert.Len(t, got.Rows, 20)
			}
		}
	}()
	wg.Wait()

	assert.True(t, repo.Exists(p))
	quarantined, _ := filepath.Glob(filepath.Join(repo.Dir, "*.corrupt-*"))
	assert.Empty(t, quarantined)
}

func TestLedgerLoadMissingAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository(t.TempDir(), zap.NewNop())

	_, err := repo.Load(ctx, models.Period{Year: 2024, Month: time.January})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	for _, p := range []models.Period{{Year: 2024, Month: time.March}, {Year: 2023, Month: time.December}} {
		require.NoError(t, repo.Save(ctx, &models.MonthlyLedger{Period: p, Rate: 40}))
	}
	require.NoError(t, os.WriteFile(filepath.Join(repo.Dir, "notes.txt"), []byte("x"), 0o644))

	periods, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Period{{Year: 2023, Month: time.December}, {Year: 2024, Month: time.March}}, periods)
}

func TestLedgerCorruptIsQuarantined(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository(t.TempDir(), zap.NewNop())
	p := models.Period{Year: 2024, Month: time.May}
	require.NoError(t, writeTable(repo.Path(p), "2024_05", []string{"S.No", "CID", "Name", "Phone", "50"}, nil, nil))

	_, err := repo.Load(ctx, p)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.False(t, repo.Exists(p))
}

func TestSendStatusFiles(t *testing.T) {
	ctx := context.Background()
	repo := NewSendStatusRepository(t.TempDir(), zap.NewNop())
	p := models.Period{Year: 2024, Month: time.March}

	assert.Equal(t, filepath.Join(repo.Dir, "March_2024", "Sent_March_2024.xlsx"), repo.SentPath(p))

	sent, err := repo.LoadSent(ctx, p)
	require.NoError(t, err)
	assert.Empty(t, sent)

	require.NoError(t, repo.SaveSent(ctx, p, []models.SentRecord{
		{CustomerID: "C_1", Name: "Asha", Phone: "9876543210", TotalQuantity: 30, TotalAmount: 1500},
		{CustomerID: "C_1", Name: "Asha again", Phone: "9876543210", TotalQuantity: 1, TotalAmount: 1},
	}))
	sent, err = repo.LoadSent(ctx, p)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "Asha", sent[0].Name)
	assert.Equal(t, 1500.0, sent[0].TotalAmount)

	require.NoError(t, repo.SaveUnsent(ctx, p, []models.UnsentRecord{{CustomerID: "C_2", Reason: "Invalid number"}}))
	assert.True(t, repo.UnsentExists(p))
	unsent, err := repo.LoadUnsent(ctx, p)
	require.NoError(t, err)
	require.Len(t, unsent, 1)
	assert.Equal(t, "Invalid number", unsent[0].Reason)

	require.NoError(t, repo.SaveUnsent(ctx, p, nil))
	assert.False(t, repo.UnsentExists(p))
	require.NoError(t, repo.SaveUnsent(ctx, p, nil))
}

func TestProfileRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewProfileRepository(filepath.Join(t.TempDir(), "profile.yaml"))

	empty, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, &models.BusinessProfile{}, empty)

	want := &models.BusinessProfile{
		UserName: "Ramesh", BusinessName: "Shree Dairy",
		ContactNumber: "9876543210", PaymentInfo: "UPI shree@upi",
	}
	require.NoError(t, repo.Save(ctx, want))
	got, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
