package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pharmaflow/pharmacy-backend/pkg/database"
	"github.com/pharmaflow/pharmacy-backend/pkg/errors"
)

// Medicine statuses derived from stock levels
const (
	StatusInStock    = "In Stock"
	StatusLowStock   = "Low Stock"
	StatusOutOfStock = "Out of Stock"
	StatusExpiring   = "Expiring"
	StatusArchived   = "Archived"
)

// DefaultReorderLevel applies when a medicine is created without one.
const DefaultReorderLevel = 20

// Medicine represents a catalog entry. Quantity never lives here; stock is
// the sum of the medicine's batches.
type Medicine struct {
	ID           string           `db:"id" json:"id"`
	Name         string           `db:"name" json:"name"`
	GenericName  string           `db:"generic_name" json:"generic_name,omitempty"`
	SKU          *string          `db:"sku" json:"sku,omitempty"`
	Form         string           `db:"form" json:"form,omitempty"`
	Strength     string           `db:"strength" json:"strength,omitempty"`
	Unit         string           `db:"unit" json:"unit,omitempty"`
	Manufacturer string           `db:"manufacturer" json:"manufacturer,omitempty"`
	Brand        string           `db:"brand" json:"brand,omitempty"`
	Category     string           `db:"category" json:"category,omitempty"`
	Description  string           `db:"description" json:"description,omitempty"`
	ReorderLevel int              `db:"reorder_level" json:"reorder_level"`
	TaxPercent   *decimal.Decimal `db:"tax_percent" json:"tax_percent,omitempty"`
	Status       string           `db:"status" json:"status"`
	ArchivedAt   *time.Time       `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// MedicineFilter narrows ListMedicines results
type MedicineFilter struct {
	Search   string
	Category string
	LowStock bool
	Page     int
	PerPage  int
}

// MedicineRepository handles medicine catalog persistence
type MedicineRepository struct {
	db *database.DB
}

// NewMedicineRepository creates a new medicine repository
func NewMedicineRepository(db *database.DB) *MedicineRepository {
	return &MedicineRepository{db: db}
}

// Create creates a new medicine
func (r *MedicineRepository) Create(ctx context.Context, m *Medicine) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Status == "" {
		m.Status = StatusInStock
	}

	query := `
		INSERT INTO medicines (
			id, name, generic_name, sku, form, strength, unit, manufacturer,
			brand, category, description, reorder_level, tax_percent, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		m.ID, m.Name, m.GenericName, m.SKU, m.Form, m.Strength, m.Unit,
		m.Manufacturer, m.Brand, m.Category, m.Description, m.ReorderLevel,
		m.TaxPercent, m.Status,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a medicine by ID
func (r *MedicineRepository) GetByID(ctx context.Context, id string) (*Medicine, error) {
	var m Medicine
	query := `SELECT * FROM medicines WHERE id = $1 AND archived_at IS NULL`
	if err := r.db.GetContext(ctx, &m, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("medicine")
		}
		return nil, err
	}
	return &m, nil
}

// GetBySKU gets a medicine by SKU
func (r *MedicineRepository) GetBySKU(ctx context.Context, sku string) (*Medicine, error) {
	var m Medicine
	query := `SELECT * FROM medicines WHERE sku = $1 AND archived_at IS NULL`
	if err := r.db.GetContext(ctx, &m, query, sku); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("medicine")
		}
		return nil, err
	}
	return &m, nil
}

// ExistsBySKU reports whether an unarchived medicine with this SKU exists.
func (r *MedicineRepository) ExistsBySKU(ctx context.Context, sku string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM medicines WHERE sku = $1 AND archived_at IS NULL)`
	if err := r.db.GetContext(ctx, &exists, query, sku); err != nil {
		return false, err
	}
	return exists, nil
}

// GetAllActive returns every non-archived medicine, for scan jobs
func (r *MedicineRepository) GetAllActive(ctx context.Context) ([]*Medicine, error) {
	medicines := []*Medicine{}
	query := `SELECT * FROM medicines WHERE archived_at IS NULL ORDER BY name ASC`
	if err := r.db.SelectContext(ctx, &medicines, query); err != nil {
		return nil, err
	}
	return medicines, nil
}

// List lists medicines with filtering and pagination
func (r *MedicineRepository) List(ctx context.Context, filter MedicineFilter) ([]*Medicine, int64, error) {
	where := []string{"m.archived_at IS NULL"}
	args := []interface{}{}
	argIndex := 1

	if filter.Search != "" {
		where = append(where, fmt.Sprintf(
			"(m.name ILIKE $%d OR m.sku ILIKE $%d OR m.generic_name ILIKE $%d OR m.brand ILIKE $%d)",
			argIndex, argIndex, argIndex, argIndex))
		args = append(args, "%"+filter.Search+"%")
		argIndex++
	}

	if filter.Category != "" {
		where = append(where, fmt.Sprintf("m.category = $%d", argIndex))
		args = append(args, filter.Category)
		argIndex++
	}

	if filter.LowStock {
		// low stock means some stock remains but below the reorder level
		where = append(where, `
			COALESCE((SELECT SUM(b.quantity) FROM medicine_batches b WHERE b.medicine_id = m.id), 0) > 0
			AND COALESCE((SELECT SUM(b.quantity) FROM medicine_batches b WHERE b.medicine_id = m.id), 0) < m.reorder_level`)
	}

	whereClause := strings.Join(where, " AND ")

	var total int64
	countQuery := `SELECT COUNT(*) FROM medicines m WHERE ` + whereClause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT m.* FROM medicines m WHERE ` + whereClause + ` ORDER BY m.name`

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

	var medicines []*Medicine
	if err := r.db.SelectContext(ctx, &medicines, query, args...); err != nil {
		return nil, 0, err
	}

	return medicines, total, nil
}

// Update updates catalog fields of a medicine. Stock is never touched here.
func (r *MedicineRepository) Update(ctx context.Context, m *Medicine) error {
	query := `
		UPDATE medicines SET
			name = $2, generic_name = $3, sku = $4, form = $5, strength = $6,
			unit = $7, manufacturer = $8, brand = $9, category = $10,
			description = $11, reorder_level = $12, tax_percent = $13,
			updated_at = NOW()
		WHERE id = $1 AND archived_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		m.ID, m.Name, m.GenericName, m.SKU, m.Form, m.Strength, m.Unit,
		m.Manufacturer, m.Brand, m.Category, m.Description, m.ReorderLevel,
		m.TaxPercent,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("medicine")
	}

	return nil
}

// Archive soft archives a medicine
func (r *MedicineRepository) Archive(ctx context.Context, id string) error {
	query := `
		UPDATE medicines SET archived_at = NOW(), status = $2, updated_at = NOW()
		WHERE id = $1 AND archived_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id, StatusArchived)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("medicine")
	}

	return nil
}

// HasOpenBatches reports whether the medicine has batches with remaining stock.
func (r *MedicineRepository) HasOpenBatches(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM medicine_batches WHERE medicine_id = $1 AND quantity > 0)`
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		return false, err
	}
	return exists, nil
}

// HasLedgerReferences reports whether any ledger item references the medicine.
func (r *MedicineRepository) HasLedgerReferences(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM ledger_items WHERE medicine_id = $1)`
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		return false, err
	}
	return exists, nil
}

// SetStatus updates the derived status field
func (r *MedicineRepository) SetStatus(ctx context.Context, id, status string) error {
	query := `UPDATE medicines SET status = $2, updated_at = NOW() WHERE id = $1 AND archived_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, id, status)
	return err
}

// ListCategories returns the distinct categories in the catalog
func (r *MedicineRepository) ListCategories(ctx context.Context) ([]string, error) {
	var categories []string
	query := `SELECT DISTINCT category FROM medicines WHERE archived_at IS NULL AND category <> '' ORDER BY category`
	if err := r.db.SelectContext(ctx, &categories, query); err != nil {
		return nil, err
	}
	return categories, nil
}
