package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmaflow/pharmacy-backend/pkg/database"
	"github.com/pharmaflow/pharmacy-backend/pkg/errors"
	"github.com/pharmaflow/pharmacy-backend/pkg/logger"
	"github.com/pharmaflow/pharmacy-backend/pkg/testutil"
)

func tb(id string, expiry *time.Time, qty int, createdAt time.Time) *repository.MedicineBatch {
	return &repository.MedicineBatch{
		ID:         id,
		Quantity:   qty,
		ExpiryDate: expiry,
		CreatedAt:  createdAt,
	}
}

func datePtr(t time.Time) *time.Time { return &t }

func TestPlanAllocation_FirstExpiringFirst(t *testing.T) {
	now := time.Now()
	late := datePtr(now.AddDate(1, 0, 0))
	soon := datePtr(now.AddDate(0, 0, 10))

	candidates := []*repository.MedicineBatch{
		tb("late", late, 50, now),
		tb("soon", soon, 50, now),
	}

	draws, short := planAllocation(candidates, 30)
	require.Zero(t, short)
	require.Len(t, draws, 1)
	assert.Equal(t, "soon", draws[0].Batch.ID)
	assert.Equal(t, 30, draws[0].Quantity)
}

func TestPlanAllocation_SplitsAcrossBatches(t *testing.T) {
	now := time.Now()
	candidates := []*repository.MedicineBatch{
		tb("b", datePtr(now.AddDate(0, 6, 0)), 20, now),
		tb("a", datePtr(now.AddDate(0, 1, 0)), 5, now),
	}

	draws, short := planAllocation(candidates, 15)
	require.Zero(t, short)
	require.Len(t, draws, 2)
	assert.Equal(t, "a", draws[0].Batch.ID)
	assert.Equal(t, 5, draws[0].Quantity)
	assert.Equal(t, "b", draws[1].Batch.ID)
	assert.Equal(t, 10, draws[1].Quantity)
}

func TestPlanAllocation_NoExpirySortsLast(t *testing.T) {
	now := time.Now()
	candidates := []*repository.MedicineBatch{
		tb("no-expiry", nil, 100, now.Add(-time.Hour)),
		tb("dated", datePtr(now.AddDate(2, 0, 0)), 10, now),
	}

	draws, short := planAllocation(candidates, 20)
	require.Zero(t, short)
	require.Len(t, draws, 2)
	assert.Equal(t, "dated", draws[0].Batch.ID)
	assert.Equal(t, 10, draws[0].Quantity)
	assert.Equal(t, "no-expiry", draws[1].Batch.ID)
	assert.Equal(t, 10, draws[1].Quantity)
}

func TestPlanAllocation_TieBreaksOnCreation(t *testing.T) {
	now := time.Now()
	expiry := datePtr(now.AddDate(0, 3, 0))
	candidates := []*repository.MedicineBatch{
		tb("newer", expiry, 50, now),
		tb("older", expiry, 50, now.Add(-24*time.Hour)),
	}

	draws, _ := planAllocation(candidates, 10)
	require.Len(t, draws, 1)
	assert.Equal(t, "older", draws[0].Batch.ID)
}

func TestPlanAllocation_Shortfall(t *testing.T) {
	now := time.Now()
	candidates := []*repository.MedicineBatch{
		tb("a", datePtr(now.AddDate(0, 1, 0)), 4, now),
		tb("b", datePtr(now.AddDate(0, 2, 0)), 3, now),
	}

	draws, short := planAllocation(candidates, 10)
	assert.Equal(t, 3, short)
	require.Len(t, draws, 2)
	assert.Equal(t, 4, draws[0].Quantity)
	assert.Equal(t, 3, draws[1].Quantity)
}

func TestPlanAllocation_SkipsEmptyBatches(t *testing.T) {
	now := time.Now()
	candidates := []*repository.MedicineBatch{
		tb("empty", datePtr(now.AddDate(0, 0, 5)), 0, now),
		tb("stocked", datePtr(now.AddDate(0, 1, 0)), 10, now),
	}

	draws, short := planAllocation(candidates, 5)
	require.Zero(t, short)
	require.Len(t, draws, 1)
	assert.Equal(t, "stocked", draws[0].Batch.ID)
}

func TestPlanAllocation_DoesNotMutateInput(t *testing.T) {
	now := time.Now()
	candidates := []*repository.MedicineBatch{
		tb("z", datePtr(now.AddDate(1, 0, 0)), 10, now),
		tb("a", datePtr(now.AddDate(0, 1, 0)), 10, now),
	}

	planAllocation(candidates, 5)
	assert.Equal(t, "z", candidates[0].ID)
	assert.Equal(t, "a", candidates[1].ID)
}

var medicineColumns = []string{
	"id", "name", "generic_name", "sku", "form", "strength", "unit",
	"manufacturer", "brand", "category", "description", "reorder_level",
	"tax_percent", "status", "archived_at", "created_at", "updated_at",
}

var batchColumns = []string{
	"id", "medicine_id", "batch_number", "expiry_date", "quantity",
	"purchase_price", "sale_price", "supplier", "location", "created_at", "updated_at",
}

func newDispenseService(t *testing.T) (*DispenseService, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	log := logger.New("test", "test")
	db := database.NewFromSqlx(mockDB.DB, log)

	svc := NewDispenseService(
		db,
		repository.NewMedicineRepository(db),
		repository.NewBatchRepository(db),
		repository.NewLedgerRepository(db),
		repository.NewSequenceRepository(db),
		repository.NewPatientCacheRepository(db),
		nil,
		log,
	)
	return svc, mockDB
}

func addMedicineRow(rows *sqlmock.Rows, id, name string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(
		id, name, "", "MED-0001", "tablet", "500mg", "strip",
		"Test Pharma", "", "Analgesic", "", 20,
		"19.00", "In Stock", nil, now, now,
	)
}

func addBatchRow(rows *sqlmock.Rows, id, medicineID string, qty int) *sqlmock.Rows {
	now := time.Now()
	expiry := now.AddDate(1, 0, 0)
	return rows.AddRow(
		id, medicineID, "LOT-0001", expiry, qty,
		"5.00", "8.00", "Test Supplier", "", now, now,
	)
}

func TestDispense_PinnedBatchCommits(t *testing.T) {
	svc, mockDB := newDispenseService(t)
	defer mockDB.Close()

	medicineID := "2a9e6a72-1f15-4bfd-8f6e-000000000001"
	batchID := "2a9e6a72-1f15-4bfd-8f6e-000000000002"

	mockDB.ExpectBegin()
	mockDB.Mock.ExpectQuery(`SELECT \* FROM medicines WHERE id = \$1`).
		WithArgs(medicineID).
		WillReturnRows(addMedicineRow(sqlmock.NewRows(medicineColumns), medicineID, "Paracetamol"))
	mockDB.Mock.ExpectQuery(`SELECT \* FROM medicine_batches WHERE id = \$1 FOR UPDATE`).
		WithArgs(batchID).
		WillReturnRows(addBatchRow(sqlmock.NewRows(batchColumns), batchID, medicineID, 50))
	mockDB.Mock.ExpectExec(`UPDATE medicine_batches`).
		WithArgs(batchID, 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.Mock.ExpectQuery(`INSERT INTO pharmacy_sequences`).
		WithArgs(repository.SequenceDispense).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(42))
	mockDB.Mock.ExpectQuery(`INSERT INTO ledger_entries`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mockDB.Mock.ExpectExec(`INSERT INTO ledger_items`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	entry, err := svc.Dispense(context.Background(), &DispenseRequest{
		Items: []DispenseItemRequest{
			{MedicineID: medicineID, BatchID: &batchID, Quantity: 10},
		},
		PatientName: "Walk In",
	})
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, "DSP-000042", entry.Code)
	assert.Equal(t, repository.EntryTypeDispense, entry.EntryType)
	require.Len(t, entry.Items, 1)
	assert.Equal(t, 10, entry.Items[0].Quantity)

	// 10 units at the batch sale price of 8.00; 19% tax carried separately
	assert.True(t, entry.Items[0].LineTotal.Equal(decimal.RequireFromString("80.00")),
		"line total: %s", entry.Items[0].LineTotal)
	assert.True(t, entry.Items[0].TaxAmount.Equal(decimal.RequireFromString("15.20")),
		"tax amount: %s", entry.Items[0].TaxAmount)
	assert.True(t, entry.Total.Equal(decimal.RequireFromString("80.00")))

	mockDB.ExpectationsWereMet(t)
}

func TestDispense_PinnedBatchInsufficientRollsBack(t *testing.T) {
	svc, mockDB := newDispenseService(t)
	defer mockDB.Close()

	medicineID := "2a9e6a72-1f15-4bfd-8f6e-000000000001"
	batchID := "2a9e6a72-1f15-4bfd-8f6e-000000000002"

	mockDB.ExpectBegin()
	mockDB.Mock.ExpectQuery(`SELECT \* FROM medicines WHERE id = \$1`).
		WithArgs(medicineID).
		WillReturnRows(addMedicineRow(sqlmock.NewRows(medicineColumns), medicineID, "Paracetamol"))
	mockDB.Mock.ExpectQuery(`SELECT \* FROM medicine_batches WHERE id = \$1 FOR UPDATE`).
		WithArgs(batchID).
		WillReturnRows(addBatchRow(sqlmock.NewRows(batchColumns), batchID, medicineID, 3))
	mockDB.ExpectRollback()

	_, err := svc.Dispense(context.Background(), &DispenseRequest{
		Items: []DispenseItemRequest{
			{MedicineID: medicineID, BatchID: &batchID, Quantity: 5},
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	mockDB.ExpectationsWereMet(t)
}

func TestDispense_PinnedBatchWrongMedicine(t *testing.T) {
	svc, mockDB := newDispenseService(t)
	defer mockDB.Close()

	medicineID := "2a9e6a72-1f15-4bfd-8f6e-000000000001"
	otherMedicine := "2a9e6a72-1f15-4bfd-8f6e-00000000000f"
	batchID := "2a9e6a72-1f15-4bfd-8f6e-000000000002"

	mockDB.ExpectBegin()
	mockDB.Mock.ExpectQuery(`SELECT \* FROM medicines WHERE id = \$1`).
		WithArgs(medicineID).
		WillReturnRows(addMedicineRow(sqlmock.NewRows(medicineColumns), medicineID, "Paracetamol"))
	mockDB.Mock.ExpectQuery(`SELECT \* FROM medicine_batches WHERE id = \$1 FOR UPDATE`).
		WithArgs(batchID).
		WillReturnRows(addBatchRow(sqlmock.NewRows(batchColumns), batchID, otherMedicine, 50))
	mockDB.ExpectRollback()

	_, err := svc.Dispense(context.Background(), &DispenseRequest{
		Items: []DispenseItemRequest{
			{MedicineID: medicineID, BatchID: &batchID, Quantity: 5},
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))

	mockDB.ExpectationsWereMet(t)
}

func TestDispense_UnknownPatientFailsBeforeStock(t *testing.T) {
	svc, mockDB := newDispenseService(t)
	defer mockDB.Close()

	medicineID := "2a9e6a72-1f15-4bfd-8f6e-000000000001"
	patientID := "2a9e6a72-1f15-4bfd-8f6e-0000000000aa"

	mockDB.ExpectBegin()
	mockDB.Mock.ExpectQuery(`SELECT patient_id, full_name, phone FROM patient_refs`).
		WithArgs(patientID).
		WillReturnRows(sqlmock.NewRows([]string{"patient_id", "full_name", "phone"}))
	mockDB.ExpectRollback()

	_, err := svc.Dispense(context.Background(), &DispenseRequest{
		Items: []DispenseItemRequest{
			{MedicineID: medicineID, Quantity: 5},
		},
		PatientID: &patientID,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	mockDB.ExpectationsWereMet(t)
}

func TestDispense_NoCandidates(t *testing.T) {
	svc, mockDB := newDispenseService(t)
	defer mockDB.Close()

	medicineID := "2a9e6a72-1f15-4bfd-8f6e-000000000001"

	mockDB.ExpectBegin()
	mockDB.Mock.ExpectQuery(`SELECT \* FROM medicines WHERE id = \$1`).
		WithArgs(medicineID).
		WillReturnRows(addMedicineRow(sqlmock.NewRows(medicineColumns), medicineID, "Paracetamol"))
	mockDB.Mock.ExpectQuery(`SELECT \* FROM medicine_batches`).
		WithArgs(medicineID).
		WillReturnRows(sqlmock.NewRows(batchColumns))
	mockDB.ExpectRollback()

	_, err := svc.Dispense(context.Background(), &DispenseRequest{
		Items: []DispenseItemRequest{
			{MedicineID: medicineID, Quantity: 5},
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoStockAvailable))

	mockDB.ExpectationsWereMet(t)
}

func TestDispense_RejectsEmptyItems(t *testing.T) {
	svc, mockDB := newDispenseService(t)
	defer mockDB.Close()

	_, err := svc.Dispense(context.Background(), &DispenseRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestDispense_RejectsNonPositiveQuantity(t *testing.T) {
	svc, mockDB := newDispenseService(t)
	defer mockDB.Close()

	_, err := svc.Dispense(context.Background(), &DispenseRequest{
		Items: []DispenseItemRequest{
			{MedicineID: "2a9e6a72-1f15-4bfd-8f6e-000000000001", Quantity: 0},
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}
