package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaflow/pharmacy-backend/pkg/database"
	"github.com/pharmaflow/pharmacy-backend/pkg/errors"
	"github.com/pharmaflow/pharmacy-backend/pkg/logger"
	"github.com/pharmaflow/pharmacy-backend/pkg/testutil"
)

func newMedicineRepo(t *testing.T) (*MedicineRepository, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	db := database.NewFromSqlx(mockDB.DB, logger.New("test", "test"))
	return NewMedicineRepository(db), mockDB
}

func TestMedicineCreate_AssignsDefaults(t *testing.T) {
	repo, mockDB := newMedicineRepo(t)
	defer mockDB.Close()

	now := time.Now()
	mockDB.Mock.ExpectQuery(`INSERT INTO medicines`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	m := &Medicine{Name: "Paracetamol"}
	err := repo.Create(context.Background(), m)
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, StatusInStock, m.Status)
	assert.Equal(t, now, m.CreatedAt)

	mockDB.ExpectationsWereMet(t)
}

func TestMedicineCreate_DuplicateSKU(t *testing.T) {
	repo, mockDB := newMedicineRepo(t)
	defer mockDB.Close()

	mockDB.Mock.ExpectQuery(`INSERT INTO medicines`).
		WillReturnError(&pq.Error{
			Code:       "23505",
			Constraint: "medicines_sku_key",
			Detail:     "Key (sku)=(MED-0001) already exists.",
		})

	sku := "MED-0001"
	err := repo.Create(context.Background(), &Medicine{Name: "Paracetamol", SKU: &sku})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDuplicateSKU))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "DUPLICATE_SKU", appErr.Code)

	mockDB.ExpectationsWereMet(t)
}

func TestMedicineGetByID_NotFound(t *testing.T) {
	repo, mockDB := newMedicineRepo(t)
	defer mockDB.Close()

	mockDB.Mock.ExpectQuery(`SELECT \* FROM medicines WHERE id = \$1 AND archived_at IS NULL`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	mockDB.ExpectationsWereMet(t)
}

func TestExistsBySKU(t *testing.T) {
	repo, mockDB := newMedicineRepo(t)
	defer mockDB.Close()

	mockDB.Mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("MED-0001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsBySKU(context.Background(), "MED-0001")
	require.NoError(t, err)
	assert.True(t, exists)

	mockDB.ExpectationsWereMet(t)
}
