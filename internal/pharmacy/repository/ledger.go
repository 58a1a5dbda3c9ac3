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

// Ledger entry types
const (
	EntryTypeDispense        = "Dispense"
	EntryTypePurchaseReceive = "PurchaseReceive"
	EntryTypeAdjustment      = "Adjustment"
)

// LedgerEntry is an append-only record of a stock movement. Once written,
// only the payment fields may change.
type LedgerEntry struct {
	ID            string          `db:"id" json:"id"`
	Code          string          `db:"code" json:"code"`
	EntryType     string          `db:"entry_type" json:"entry_type"`
	PatientID     *string         `db:"patient_id" json:"patient_id,omitempty"`
	PatientName   string          `db:"patient_name" json:"patient_name,omitempty"`
	AppointmentID *string         `db:"appointment_id" json:"appointment_id,omitempty"`
	Total         decimal.Decimal `db:"total" json:"total"`
	Paid          bool            `db:"paid" json:"paid"`
	PaymentMethod *string         `db:"payment_method" json:"payment_method,omitempty"`
	Notes         string          `db:"notes" json:"notes,omitempty"`
	CreatedBy     string          `db:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`

	Items []*LedgerItem `db:"-" json:"items,omitempty"`
}

// LedgerItem is one line of a ledger entry. Name and SKU are denormalized
// at write time so the ledger stays readable after catalog edits.
type LedgerItem struct {
	ID         string          `db:"id" json:"id"`
	EntryID    string          `db:"entry_id" json:"entry_id"`
	MedicineID string          `db:"medicine_id" json:"medicine_id"`
	BatchID    string          `db:"batch_id" json:"batch_id"`
	SKU        string          `db:"sku" json:"sku,omitempty"`
	Name       string          `db:"name" json:"name"`
	Quantity   int             `db:"quantity" json:"quantity"`
	UnitPrice  decimal.Decimal `db:"unit_price" json:"unit_price"`
	TaxPercent decimal.Decimal `db:"tax_percent" json:"tax_percent"`
	TaxAmount  decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	LineTotal  decimal.Decimal `db:"line_total" json:"line_total"`
}

// LedgerFilter narrows ListEntries results
type LedgerFilter struct {
	PatientID string
	EntryType string
	From      *time.Time
	To        *time.Time
	Search    string
	Page      int
	PerPage   int
}

// LedgerRepository handles ledger persistence
type LedgerRepository struct {
	db *database.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// CreateEntryTx inserts a ledger entry and its items inside an existing
// transaction, so the entry commits or rolls back with the stock movement
// it records.
func (r *LedgerRepository) CreateEntryTx(ctx context.Context, tx *sqlx.Tx, entry *LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO ledger_entries (
			id, code, entry_type, patient_id, patient_name, appointment_id,
			total, paid, payment_method, notes, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`

	err := tx.QueryRowxContext(ctx, query,
		entry.ID, entry.Code, entry.EntryType, entry.PatientID, entry.PatientName,
		entry.AppointmentID, entry.Total, entry.Paid, entry.PaymentMethod,
		entry.Notes, entry.CreatedBy,
	).Scan(&entry.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	itemQuery := `
		INSERT INTO ledger_items (
			id, entry_id, medicine_id, batch_id, sku, name, quantity,
			unit_price, tax_percent, tax_amount, line_total
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	for _, item := range entry.Items {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.EntryID = entry.ID
		if _, err := tx.ExecContext(ctx, itemQuery,
			item.ID, item.EntryID, item.MedicineID, item.BatchID, item.SKU,
			item.Name, item.Quantity, item.UnitPrice, item.TaxPercent,
			item.TaxAmount, item.LineTotal,
		); err != nil {
			return err
		}
	}

	return nil
}

// GetByID gets a ledger entry with its items
func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*LedgerEntry, error) {
	var entry LedgerEntry
	query := `SELECT * FROM ledger_entries WHERE id = $1`
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("ledger entry")
		}
		return nil, err
	}

	itemQuery := `SELECT * FROM ledger_items WHERE entry_id = $1 ORDER BY name`
	if err := r.db.SelectContext(ctx, &entry.Items, itemQuery, id); err != nil {
		return nil, err
	}

	return &entry, nil
}

// List lists ledger entries with filtering and pagination, newest first
func (r *LedgerRepository) List(ctx context.Context, filter LedgerFilter) ([]*LedgerEntry, int64, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	argIndex := 1

	if filter.PatientID != "" {
		where = append(where, fmt.Sprintf("e.patient_id = $%d", argIndex))
		args = append(args, filter.PatientID)
		argIndex++
	}
	if filter.EntryType != "" {
		where = append(where, fmt.Sprintf("e.entry_type = $%d", argIndex))
		args = append(args, filter.EntryType)
		argIndex++
	}
	if filter.From != nil {
		where = append(where, fmt.Sprintf("e.created_at >= $%d", argIndex))
		args = append(args, *filter.From)
		argIndex++
	}
	if filter.To != nil {
		where = append(where, fmt.Sprintf("e.created_at <= $%d", argIndex))
		args = append(args, *filter.To)
		argIndex++
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf(`(e.notes ILIKE $%d OR e.patient_name ILIKE $%d OR EXISTS(
			SELECT 1 FROM ledger_items i WHERE i.entry_id = e.id AND i.name ILIKE $%d))`,
			argIndex, argIndex, argIndex))
		args = append(args, "%"+filter.Search+"%")
		argIndex++
	}

	whereClause := strings.Join(where, " AND ")

	var total int64
	countQuery := `SELECT COUNT(*) FROM ledger_entries e WHERE ` + whereClause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT e.* FROM ledger_entries e WHERE ` + whereClause + ` ORDER BY e.created_at DESC`

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

	var entries []*LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// UpdatePayment updates the only mutable ledger fields
func (r *LedgerRepository) UpdatePayment(ctx context.Context, id string, paid bool, paymentMethod *string) error {
	query := `UPDATE ledger_entries SET paid = $2, payment_method = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, paid, paymentMethod)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("ledger entry")
	}

	return nil
}
