package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/pharmaflow/pharmacy-backend/pkg/database"
	"github.com/pharmaflow/pharmacy-backend/pkg/errors"
)

// MedicineBatch represents one received lot of a medicine
type MedicineBatch struct {
	ID            string          `db:"id" json:"id"`
	MedicineID    string          `db:"medicine_id" json:"medicine_id"`
	BatchNumber   string          `db:"batch_number" json:"batch_number,omitempty"`
	ExpiryDate    *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	Quantity      int             `db:"quantity" json:"quantity"`
	PurchasePrice decimal.Decimal `db:"purchase_price" json:"purchase_price"`
	SalePrice     decimal.Decimal `db:"sale_price" json:"sale_price"`
	Supplier      string          `db:"supplier" json:"supplier,omitempty"`
	Location      string          `db:"location" json:"location,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`

	// Joined for list responses
	MedicineName string `db:"medicine_name" json:"medicine_name,omitempty"`
}

// BatchFilter narrows ListBatches results
type BatchFilter struct {
	MedicineID   string
	ExpiryBefore *time.Time
	ExpiryAfter  *time.Time
	InStockOnly  bool
	Page         int
	PerPage      int
}

// BatchRepository handles batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create creates a new batch
func (r *BatchRepository) Create(ctx context.Context, batch *MedicineBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}

	query := `
		INSERT INTO medicine_batches (
			id, medicine_id, batch_number, expiry_date, quantity,
			purchase_price, sale_price, supplier, location
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	return r.db.QueryRowxContext(ctx, query,
		batch.ID, batch.MedicineID, batch.BatchNumber, batch.ExpiryDate,
		batch.Quantity, batch.PurchasePrice, batch.SalePrice,
		batch.Supplier, batch.Location,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
}

// CreateTx creates a batch inside an existing transaction
func (r *BatchRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, batch *MedicineBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}

	query := `
		INSERT INTO medicine_batches (
			id, medicine_id, batch_number, expiry_date, quantity,
			purchase_price, sale_price, supplier, location
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	return tx.QueryRowxContext(ctx, query,
		batch.ID, batch.MedicineID, batch.BatchNumber, batch.ExpiryDate,
		batch.Quantity, batch.PurchasePrice, batch.SalePrice,
		batch.Supplier, batch.Location,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*MedicineBatch, error) {
	var batch MedicineBatch
	query := `SELECT * FROM medicine_batches WHERE id = $1`
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// ListByMedicine lists a medicine's batches in first-expiring-first order.
// Batches without an expiry date sort last.
func (r *BatchRepository) ListByMedicine(ctx context.Context, medicineID string) ([]*MedicineBatch, error) {
	var batches []*MedicineBatch
	query := `
		SELECT * FROM medicine_batches
		WHERE medicine_id = $1
		ORDER BY expiry_date ASC NULLS LAST, created_at ASC
	`
	if err := r.db.SelectContext(ctx, &batches, query, medicineID); err != nil {
		return nil, err
	}
	return batches, nil
}

// List lists batches with filtering and pagination
func (r *BatchRepository) List(ctx context.Context, filter BatchFilter) ([]*MedicineBatch, int64, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	argIndex := 1

	if filter.MedicineID != "" {
		where = append(where, fmt.Sprintf("b.medicine_id = $%d", argIndex))
		args = append(args, filter.MedicineID)
		argIndex++
	}
	if filter.ExpiryBefore != nil {
		where = append(where, fmt.Sprintf("b.expiry_date <= $%d", argIndex))
		args = append(args, *filter.ExpiryBefore)
		argIndex++
	}
	if filter.ExpiryAfter != nil {
		where = append(where, fmt.Sprintf("b.expiry_date >= $%d", argIndex))
		args = append(args, *filter.ExpiryAfter)
		argIndex++
	}
	if filter.InStockOnly {
		where = append(where, "b.quantity > 0")
	}

	whereClause := strings.Join(where, " AND ")

	var total int64
	countQuery := `SELECT COUNT(*) FROM medicine_batches b WHERE ` + whereClause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT b.*, m.name AS medicine_name
		FROM medicine_batches b
		JOIN medicines m ON m.id = b.medicine_id
		WHERE ` + whereClause + `
		ORDER BY b.expiry_date ASC NULLS LAST, b.created_at ASC`

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 20
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, perPage, (page-1)*perPage)

	var batches []*MedicineBatch
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, 0, err
	}

	return batches, total, nil
}

// UpdateMetadata updates batch fields other than quantity. Quantity only
// moves through AdjustQuantityTx and DecrementQuantityTx.
func (r *BatchRepository) UpdateMetadata(ctx context.Context, batch *MedicineBatch) error {
	query := `
		UPDATE medicine_batches SET
			batch_number = $2, expiry_date = $3, purchase_price = $4,
			sale_price = $5, supplier = $6, location = $7, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		batch.ID, batch.BatchNumber, batch.ExpiryDate, batch.PurchasePrice,
		batch.SalePrice, batch.Supplier, batch.Location,
	)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}

	return nil
}

// GetTotalStock gets the total stock across a medicine's batches
func (r *BatchRepository) GetTotalStock(ctx context.Context, medicineID string) (int, error) {
	var total sql.NullInt64
	query := `SELECT SUM(quantity) FROM medicine_batches WHERE medicine_id = $1`
	if err := r.db.GetContext(ctx, &total, query, medicineID); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// GetNearestExpiry returns the earliest expiry among batches with stock,
// or nil when no dated stock remains.
func (r *BatchRepository) GetNearestExpiry(ctx context.Context, medicineID string) (*time.Time, error) {
	var expiry sql.NullTime
	query := `
		SELECT MIN(expiry_date) FROM medicine_batches
		WHERE medicine_id = $1 AND quantity > 0 AND expiry_date IS NOT NULL
	`
	if err := r.db.GetContext(ctx, &expiry, query, medicineID); err != nil {
		return nil, err
	}
	if !expiry.Valid {
		return nil, nil
	}
	return &expiry.Time, nil
}

// GetExpiringBatches gets batches with stock expiring within days
func (r *BatchRepository) GetExpiringBatches(ctx context.Context, withinDays int) ([]*MedicineBatch, error) {
	var batches []*MedicineBatch
	query := `
		SELECT b.*, m.name AS medicine_name
		FROM medicine_batches b
		JOIN medicines m ON m.id = b.medicine_id
		WHERE b.quantity > 0
		AND b.expiry_date IS NOT NULL
		AND b.expiry_date >= NOW()
		AND b.expiry_date <= NOW() + INTERVAL '1 day' * $1
		ORDER BY b.expiry_date
	`
	if err := r.db.SelectContext(ctx, &batches, query, withinDays); err != nil {
		return nil, err
	}
	return batches, nil
}

// GetExpiredBatches gets batches past expiry that still hold stock
func (r *BatchRepository) GetExpiredBatches(ctx context.Context) ([]*MedicineBatch, error) {
	var batches []*MedicineBatch
	query := `
		SELECT b.*, m.name AS medicine_name
		FROM medicine_batches b
		JOIN medicines m ON m.id = b.medicine_id
		WHERE b.quantity > 0 AND b.expiry_date IS NOT NULL AND b.expiry_date < NOW()
		ORDER BY b.expiry_date
	`
	if err := r.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, err
	}
	return batches, nil
}

// CandidatesForAllocationTx selects batches with stock for a medicine in
// first-expiring-first order, row-locked for the duration of the
// transaction so concurrent dispenses serialize on them.
func (r *BatchRepository) CandidatesForAllocationTx(ctx context.Context, tx *sqlx.Tx, medicineID string) ([]*MedicineBatch, error) {
	var batches []*MedicineBatch
	query := `
		SELECT * FROM medicine_batches
		WHERE medicine_id = $1 AND quantity > 0
		ORDER BY expiry_date ASC NULLS LAST, created_at ASC
		FOR UPDATE
	`
	if err := tx.SelectContext(ctx, &batches, query, medicineID); err != nil {
		return nil, err
	}
	return batches, nil
}

// GetForUpdateTx loads a single batch under a row lock
func (r *BatchRepository) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, batchID string) (*MedicineBatch, error) {
	var batch MedicineBatch
	query := `SELECT * FROM medicine_batches WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &batch, query, batchID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// DecrementQuantityTx conditionally subtracts stock from a batch. The
// quantity guard keeps the row from going negative even under races; zero
// rows affected means the batch no longer holds enough.
func (r *BatchRepository) DecrementQuantityTx(ctx context.Context, tx *sqlx.Tx, batchID string, qty int) error {
	query := `
		UPDATE medicine_batches
		SET quantity = quantity - $2, updated_at = NOW()
		WHERE id = $1 AND quantity >= $2
	`
	result, err := tx.ExecContext(ctx, query, batchID, qty)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.InsufficientStock(fmt.Sprintf("batch %s has fewer than %d units", batchID, qty))
	}

	return nil
}

// AdjustQuantityTx applies a signed delta to a batch's quantity with the
// same non-negative guard. Returns the new quantity.
func (r *BatchRepository) AdjustQuantityTx(ctx context.Context, tx *sqlx.Tx, batchID string, delta int) (int, error) {
	var newQty int
	query := `
		UPDATE medicine_batches
		SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1 AND quantity + $2 >= 0
		RETURNING quantity
	`
	err := tx.QueryRowxContext(ctx, query, batchID, delta).Scan(&newQty)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, errors.InsufficientStock(fmt.Sprintf("adjustment would take batch %s below zero", batchID))
		}
		return 0, err
	}
	return newQty, nil
}
