package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pharmaflow/pharmacy-backend/pkg/database"
	"github.com/pharmaflow/pharmacy-backend/pkg/errors"
)

// Alert types produced by the scanner
const (
	AlertTypeLowStock   = "low_stock"
	AlertTypeOutOfStock = "out_of_stock"
	AlertTypeExpiring   = "expiring"
	AlertTypeExpired    = "expired"
)

// StockAlert represents a stored stock alert
type StockAlert struct {
	ID             string     `db:"id" json:"id"`
	AlertType      string     `db:"alert_type" json:"alert_type"`
	MedicineID     string     `db:"medicine_id" json:"medicine_id"`
	MedicineName   string     `db:"medicine_name" json:"medicine_name"`
	BatchID        *string    `db:"batch_id" json:"batch_id,omitempty"`
	BatchNumber    *string    `db:"batch_number" json:"batch_number,omitempty"`
	Severity       string     `db:"severity" json:"severity"`
	Message        string     `db:"message" json:"message"`
	CurrentStock   *int       `db:"current_stock" json:"current_stock,omitempty"`
	ReorderLevel   *int       `db:"reorder_level" json:"reorder_level,omitempty"`
	ExpiryDate     *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	ResolvedAt     *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	AcknowledgedBy *string    `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// AlertRepository handles alert persistence
type AlertRepository struct {
	db *database.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create creates a new alert
func (r *AlertRepository) Create(ctx context.Context, alert *StockAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_alerts (
			id, alert_type, medicine_id, medicine_name, batch_id, batch_number,
			severity, message, current_stock, reorder_level, expiry_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`

	return r.db.QueryRowxContext(ctx, query,
		alert.ID, alert.AlertType, alert.MedicineID, alert.MedicineName,
		alert.BatchID, alert.BatchNumber, alert.Severity, alert.Message,
		alert.CurrentStock, alert.ReorderLevel, alert.ExpiryDate,
	).Scan(&alert.CreatedAt)
}

// GetByID gets an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*StockAlert, error) {
	var alert StockAlert
	query := `SELECT * FROM stock_alerts WHERE id = $1`
	if err := r.db.GetContext(ctx, &alert, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("alert")
		}
		return nil, err
	}
	return &alert, nil
}

// ExistsByTypeAndEntity checks if an open alert already exists for the
// given alert type and entity (medicine + optional batch). Used for
// deduplication in the scanner.
func (r *AlertRepository) ExistsByTypeAndEntity(ctx context.Context, alertType, medicineID string, batchID *string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM stock_alerts
			WHERE alert_type = $1
			AND medicine_id = $2
			AND ($3::TEXT IS NULL AND batch_id IS NULL OR batch_id = $3)
			AND resolved_at IS NULL
		)
	`
	if err := r.db.GetContext(ctx, &exists, query, alertType, medicineID, batchID); err != nil {
		return false, err
	}
	return exists, nil
}

// List lists alerts with filtering, open alerts and critical first
func (r *AlertRepository) List(ctx context.Context, includeResolved bool, alertType string, page, perPage int) ([]*StockAlert, int64, error) {
	args := []interface{}{}
	argIndex := 1

	whereClause := ` WHERE 1=1`
	if !includeResolved {
		whereClause += ` AND resolved_at IS NULL`
	}
	if alertType != "" {
		whereClause += fmt.Sprintf(` AND alert_type = $%d`, argIndex)
		args = append(args, alertType)
		argIndex++
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM stock_alerts` + whereClause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT * FROM stock_alerts` + whereClause +
		` ORDER BY CASE severity WHEN 'critical' THEN 0 ELSE 1 END, created_at DESC`

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, argIndex, argIndex+1)
	args = append(args, perPage, (page-1)*perPage)

	var alerts []*StockAlert
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, 0, err
	}

	return alerts, total, nil
}

// Acknowledge acknowledges an open alert
func (r *AlertRepository) Acknowledge(ctx context.Context, id, actor string) error {
	query := `
		UPDATE stock_alerts
		SET acknowledged_at = NOW(), acknowledged_by = $2
		WHERE id = $1 AND resolved_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id, actor)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("alert")
	}

	return nil
}

// ResolveByTypeAndEntity resolves all open alerts matching the given type
// and medicine. The scanner calls this when a condition has cleared.
func (r *AlertRepository) ResolveByTypeAndEntity(ctx context.Context, alertType, medicineID string) error {
	query := `
		UPDATE stock_alerts
		SET resolved_at = NOW()
		WHERE alert_type = $1 AND medicine_id = $2 AND resolved_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, alertType, medicineID)
	return err
}

// DeleteOld deletes resolved alerts older than the given age
func (r *AlertRepository) DeleteOld(ctx context.Context, olderThan time.Duration) error {
	query := `DELETE FROM stock_alerts WHERE resolved_at IS NOT NULL AND resolved_at < $1`
	_, err := r.db.ExecContext(ctx, query, time.Now().Add(-olderThan))
	return err
}

// GetOpenCount gets the count of unresolved alerts
func (r *AlertRepository) GetOpenCount(ctx context.Context) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM stock_alerts WHERE resolved_at IS NULL`
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, err
	}
	return count, nil
}
