package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmaflow/pharmacy-backend/pkg/errors"
	"github.com/pharmaflow/pharmacy-backend/pkg/testutil"
)

type integrationEnv struct {
	suite    *testutil.IntegrationSuite
	dispense *DispenseService
	stock    *StockService
	reports  *ReportService
	scanner  *AlertScanner

	medicineRepo *repository.MedicineRepository
	batchRepo    *repository.BatchRepository
	ledgerRepo   *repository.LedgerRepository
	alertRepo    *repository.AlertRepository
}

func setupEnv(t *testing.T) *integrationEnv {
	t.Helper()
	suite := testutil.SetupIntegration(t)

	medicineRepo := repository.NewMedicineRepository(suite.DB)
	batchRepo := repository.NewBatchRepository(suite.DB)
	ledgerRepo := repository.NewLedgerRepository(suite.DB)
	sequenceRepo := repository.NewSequenceRepository(suite.DB)
	patientRepo := repository.NewPatientCacheRepository(suite.DB)
	alertRepo := repository.NewAlertRepository(suite.DB)
	reportRepo := repository.NewReportRepository(suite.DB)

	return &integrationEnv{
		suite: suite,
		dispense: NewDispenseService(
			suite.DB, medicineRepo, batchRepo, ledgerRepo, sequenceRepo, patientRepo, nil, suite.Logger),
		stock: NewStockService(
			suite.DB, medicineRepo, batchRepo, ledgerRepo, sequenceRepo, nil, suite.Logger),
		reports:      NewReportService(reportRepo, batchRepo, suite.Logger),
		scanner:      NewAlertScanner(medicineRepo, batchRepo, alertRepo, nil, 30, suite.Logger),
		medicineRepo: medicineRepo,
		batchRepo:    batchRepo,
		ledgerRepo:   ledgerRepo,
		alertRepo:    alertRepo,
	}
}

func (e *integrationEnv) seedMedicine(t *testing.T, opts ...func(*testutil.MedicineFixture)) testutil.MedicineFixture {
	t.Helper()
	m := e.suite.Fixtures.Medicine(opts...)
	require.NoError(t, testutil.InsertMedicine(context.Background(), e.suite.RawDB, m))
	return m
}

func (e *integrationEnv) seedBatch(t *testing.T, medicineID string, opts ...func(*testutil.BatchFixture)) testutil.BatchFixture {
	t.Helper()
	b := e.suite.Fixtures.Batch(medicineID, opts...)
	require.NoError(t, testutil.InsertBatch(context.Background(), e.suite.RawDB, b))
	return b
}

func TestDispenseIntegration_AllocatesFirstExpiringFirst(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	m := env.seedMedicine(t)
	late := env.seedBatch(t, m.ID, testutil.WithExpiryIn(365), testutil.WithQuantity(100))
	soon := env.seedBatch(t, m.ID, testutil.WithExpiryIn(30), testutil.WithQuantity(40))

	entry, err := env.dispense.Dispense(ctx, &DispenseRequest{
		Items: []DispenseItemRequest{
			{MedicineID: m.ID, Quantity: 60},
		},
		PatientName: "Walk In",
	})
	require.NoError(t, err)
	require.Len(t, entry.Items, 2)

	// The soon-expiring batch drains first, the rest comes from the later one
	assert.Equal(t, soon.ID, entry.Items[0].BatchID)
	assert.Equal(t, 40, entry.Items[0].Quantity)
	assert.Equal(t, late.ID, entry.Items[1].BatchID)
	assert.Equal(t, 20, entry.Items[1].Quantity)

	soonAfter, err := env.batchRepo.GetByID(ctx, soon.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, soonAfter.Quantity)

	lateAfter, err := env.batchRepo.GetByID(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, lateAfter.Quantity)

	total, err := env.batchRepo.GetTotalStock(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, total)
}

func TestDispenseIntegration_PartialShortageLeavesNoTrace(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	stocked := env.seedMedicine(t)
	env.seedBatch(t, stocked.ID, testutil.WithQuantity(50))
	scarce := env.seedMedicine(t)
	env.seedBatch(t, scarce.ID, testutil.WithQuantity(2))

	_, err := env.dispense.Dispense(ctx, &DispenseRequest{
		Items: []DispenseItemRequest{
			{MedicineID: stocked.ID, Quantity: 10},
			{MedicineID: scarce.ID, Quantity: 5},
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	// The first item's decrement must have rolled back with the rest
	total, err := env.batchRepo.GetTotalStock(ctx, stocked.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, total)

	entries, count, err := env.ledgerRepo.List(ctx, repository.LedgerFilter{})
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, entries)
}

func TestDispenseIntegration_CodesAreSequential(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	m := env.seedMedicine(t)
	env.seedBatch(t, m.ID, testutil.WithQuantity(100))

	first, err := env.dispense.Dispense(ctx, &DispenseRequest{
		Items: []DispenseItemRequest{{MedicineID: m.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	second, err := env.dispense.Dispense(ctx, &DispenseRequest{
		Items: []DispenseItemRequest{{MedicineID: m.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	assert.Regexp(t, `^DSP-\d{6}$`, first.Code)
	assert.Regexp(t, `^DSP-\d{6}$`, second.Code)
	assert.Greater(t, second.Code, first.Code)
}

func TestDispenseIntegration_PinnedBatch(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	m := env.seedMedicine(t, testutil.WithTaxPercent("19"))
	env.seedBatch(t, m.ID, testutil.WithExpiryIn(20), testutil.WithQuantity(50))
	pinned := env.seedBatch(t, m.ID, testutil.WithExpiryIn(200), testutil.WithQuantity(50), testutil.WithSalePrice("10.00"))

	entry, err := env.dispense.Dispense(ctx, &DispenseRequest{
		Items: []DispenseItemRequest{
			{MedicineID: m.ID, BatchID: &pinned.ID, Quantity: 4},
		},
	})
	require.NoError(t, err)
	require.Len(t, entry.Items, 1)

	assert.Equal(t, pinned.ID, entry.Items[0].BatchID)
	// 4 x 10.00; the 19% tax rides on the item, not the total
	assert.True(t, entry.Total.Equal(decimal.RequireFromString("40.00")), "total: %s", entry.Total)
	assert.True(t, entry.Items[0].TaxAmount.Equal(decimal.RequireFromString("7.60")))

	after, err := env.batchRepo.GetByID(ctx, pinned.ID)
	require.NoError(t, err)
	assert.Equal(t, 46, after.Quantity)
}

func TestDispenseIntegration_ConcurrentRequestsSerialize(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	m := env.seedMedicine(t)
	env.seedBatch(t, m.ID, testutil.WithQuantity(10))

	// Two dispenses of 6 against 10 units: the row locks force them to
	// serialize, so exactly one can succeed.
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := env.dispense.Dispense(ctx, &DispenseRequest{
				Items: []DispenseItemRequest{{MedicineID: m.ID, Quantity: 6}},
			})
			results <- err
		}()
	}

	var failures int
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			assert.True(t, errors.Is(err, errors.ErrInsufficientStock), "unexpected error: %v", err)
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	total, err := env.batchRepo.GetTotalStock(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	_, count, err := env.ledgerRepo.List(ctx, repository.LedgerFilter{
		EntryType: repository.EntryTypeDispense,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestDispenseIntegration_UnknownMedicineIDIsNotFound(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	// IDs are opaque text, so a malformed one is just an ID that does not exist
	_, err := env.dispense.Dispense(ctx, &DispenseRequest{
		Items: []DispenseItemRequest{
			{MedicineID: "no-such-medicine", Quantity: 1},
		},
		PatientName: "Walk In",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestStockIntegration_ReceiveWritesLedger(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	m := env.seedMedicine(t)

	expiry := time.Now().AddDate(1, 0, 0)
	entry, err := env.stock.ReceiveBatch(ctx, &repository.MedicineBatch{
		MedicineID:    m.ID,
		BatchNumber:   "LOT-RECV-1",
		ExpiryDate:    &expiry,
		Quantity:      200,
		PurchasePrice: decimal.RequireFromString("3.50"),
		SalePrice:     decimal.RequireFromString("6.00"),
	}, "tester")
	require.NoError(t, err)

	assert.Regexp(t, `^RCV-\d{6}$`, entry.Code)
	assert.Equal(t, repository.EntryTypePurchaseReceive, entry.EntryType)

	total, err := env.batchRepo.GetTotalStock(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 200, total)
}

func TestStockIntegration_AdjustBelowZeroFails(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	m := env.seedMedicine(t)
	b := env.seedBatch(t, m.ID, testutil.WithQuantity(10))

	_, err := env.stock.AdjustBatchQuantity(ctx, b.ID, -15, "stocktake", "tester")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	after, err := env.batchRepo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, after.Quantity)

	_, count, err := env.ledgerRepo.List(ctx, repository.LedgerFilter{
		EntryType: repository.EntryTypeAdjustment,
	})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStockIntegration_AdjustWritesLedger(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	m := env.seedMedicine(t)
	b := env.seedBatch(t, m.ID, testutil.WithQuantity(10))

	entry, err := env.stock.AdjustBatchQuantity(ctx, b.ID, -4, "breakage", "tester")
	require.NoError(t, err)
	assert.Regexp(t, `^ADJ-\d{6}$`, entry.Code)

	after, err := env.batchRepo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, after.Quantity)
}

func TestReportsIntegration_StockLevels(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	low := env.seedMedicine(t, testutil.WithReorderLevel(20))
	env.seedBatch(t, low.ID, testutil.WithQuantity(5))

	healthy := env.seedMedicine(t, testutil.WithReorderLevel(20))
	env.seedBatch(t, healthy.ID, testutil.WithQuantity(50))

	empty := env.seedMedicine(t)

	lowRows, err := env.reports.LowStock(ctx)
	require.NoError(t, err)
	lowIDs := make([]string, len(lowRows))
	for i, r := range lowRows {
		lowIDs[i] = r.MedicineID
	}
	assert.Contains(t, lowIDs, low.ID)
	assert.NotContains(t, lowIDs, healthy.ID)
	assert.NotContains(t, lowIDs, empty.ID)

	outRows, err := env.reports.OutOfStock(ctx)
	require.NoError(t, err)
	outIDs := make([]string, len(outRows))
	for i, r := range outRows {
		outIDs[i] = r.MedicineID
	}
	assert.Contains(t, outIDs, empty.ID)
	assert.NotContains(t, outIDs, healthy.ID)
}

func TestReportsIntegration_DrainedMedicineMovesToOutOfStock(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	m := env.seedMedicine(t, testutil.WithReorderLevel(20))
	env.seedBatch(t, m.ID, testutil.WithQuantity(15))

	lowRows, err := env.reports.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, lowRows, 1)
	assert.Equal(t, m.ID, lowRows[0].MedicineID)

	_, err = env.dispense.Dispense(ctx, &DispenseRequest{
		Items: []DispenseItemRequest{
			{MedicineID: m.ID, Quantity: 15},
		},
		PatientName: "Walk In",
	})
	require.NoError(t, err)

	// At zero the medicine leaves the low stock report and shows as out of stock
	lowRows, err = env.reports.LowStock(ctx)
	require.NoError(t, err)
	assert.Empty(t, lowRows)

	outRows, err := env.reports.OutOfStock(ctx)
	require.NoError(t, err)
	require.Len(t, outRows, 1)
	assert.Equal(t, m.ID, outRows[0].MedicineID)
}

func TestReportsIntegration_RepeatedReadsMatch(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	m := env.seedMedicine(t, testutil.WithReorderLevel(20))
	env.seedBatch(t, m.ID, testutil.WithQuantity(5))

	first, err := env.reports.LowStock(ctx)
	require.NoError(t, err)
	second, err := env.reports.LowStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLedgerIntegration_EntriesSurviveLaterMovements(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	m := env.seedMedicine(t)
	env.seedBatch(t, m.ID, testutil.WithQuantity(30))

	entry, err := env.dispense.Dispense(ctx, &DispenseRequest{
		Items: []DispenseItemRequest{
			{MedicineID: m.ID, Quantity: 10},
		},
		PatientName: "Walk In",
	})
	require.NoError(t, err)

	other := env.seedMedicine(t)
	expiry := time.Now().AddDate(1, 0, 0)
	_, err = env.stock.ReceiveBatch(ctx, &repository.MedicineBatch{
		MedicineID:    other.ID,
		BatchNumber:   "LOT-LATER-1",
		ExpiryDate:    &expiry,
		Quantity:      100,
		PurchasePrice: decimal.RequireFromString("2.00"),
		SalePrice:     decimal.RequireFromString("4.00"),
	}, "tester")
	require.NoError(t, err)

	b := env.seedBatch(t, m.ID, testutil.WithQuantity(8))
	_, err = env.stock.AdjustBatchQuantity(ctx, b.ID, -3, "breakage", "tester")
	require.NoError(t, err)

	reread, err := env.ledgerRepo.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.Code, reread.Code)
	assert.True(t, entry.Total.Equal(reread.Total))
	require.Len(t, reread.Items, len(entry.Items))
	for i, item := range entry.Items {
		assert.Equal(t, item.BatchID, reread.Items[i].BatchID)
		assert.Equal(t, item.Quantity, reread.Items[i].Quantity)
		assert.True(t, item.LineTotal.Equal(reread.Items[i].LineTotal))
	}
}

func TestAlertScannerIntegration_FlagsAndResolves(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	m := env.seedMedicine(t, testutil.WithReorderLevel(20))
	b := env.seedBatch(t, m.ID, testutil.WithQuantity(5))

	require.NoError(t, env.scanner.ScanAll(ctx))

	alerts, _, err := env.alertRepo.List(ctx, false, repository.AlertTypeLowStock, 1, 50)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, m.ID, alerts[0].MedicineID)

	// A second scan must not duplicate the open alert
	require.NoError(t, env.scanner.ScanAll(ctx))
	alerts, _, err = env.alertRepo.List(ctx, false, repository.AlertTypeLowStock, 1, 50)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	// Restocking resolves it on the next scan
	_, err = env.stock.AdjustBatchQuantity(ctx, b.ID, 50, "restock", "tester")
	require.NoError(t, err)
	require.NoError(t, env.scanner.ScanAll(ctx))

	alerts, _, err = env.alertRepo.List(ctx, false, repository.AlertTypeLowStock, 1, 50)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestAlertScannerIntegration_ExpiringBatch(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	m := env.seedMedicine(t)
	env.seedBatch(t, m.ID, testutil.WithExpiryIn(10), testutil.WithQuantity(100))

	require.NoError(t, env.scanner.ScanAll(ctx))

	alerts, _, err := env.alertRepo.List(ctx, false, repository.AlertTypeExpiring, 1, 50)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "critical", alerts[0].Severity)
	require.NotNil(t, alerts[0].BatchID)
}
