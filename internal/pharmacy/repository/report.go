package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmaflow/pharmacy-backend/pkg/database"
)

// StockLevelRow is one medicine with its aggregated stock
type StockLevelRow struct {
	MedicineID   string  `db:"medicine_id" json:"medicine_id"`
	Name         string  `db:"name" json:"name"`
	SKU          *string `db:"sku" json:"sku,omitempty"`
	Category     string  `db:"category" json:"category,omitempty"`
	TotalStock   int     `db:"total_stock" json:"total_stock"`
	ReorderLevel int     `db:"reorder_level" json:"reorder_level"`
}

// ValuationRow is one medicine's stock valued at purchase price
type ValuationRow struct {
	MedicineID string          `db:"medicine_id" json:"medicine_id"`
	Name       string          `db:"name" json:"name"`
	TotalStock int             `db:"total_stock" json:"total_stock"`
	Value      decimal.Decimal `db:"value" json:"value"`
}

// TopMoverRow is one medicine ranked by dispensed quantity
type TopMoverRow struct {
	MedicineID    string          `db:"medicine_id" json:"medicine_id"`
	Name          string          `db:"name" json:"name"`
	TotalQuantity int             `db:"total_quantity" json:"total_quantity"`
	TotalRevenue  decimal.Decimal `db:"total_revenue" json:"total_revenue"`
	EntryCount    int             `db:"entry_count" json:"entry_count"`
}

// DashboardStats is the aggregate snapshot for the dashboard endpoint
type DashboardStats struct {
	TotalMedicines  int64           `json:"total_medicines"`
	InStockCount    int64           `json:"in_stock_count"`
	LowStockCount   int64           `json:"low_stock_count"`
	OutOfStockCount int64           `json:"out_of_stock_count"`
	ExpiringBatches int64           `json:"expiring_batches"`
	StockValue      decimal.Decimal `json:"stock_value"`
	RecentDispenses int64           `json:"recent_dispenses"`
	RecentRevenue   decimal.Decimal `json:"recent_revenue"`
	TopMovers       []*TopMoverRow  `json:"top_movers"`
}

// ReportRepository serves read-only aggregates over the live tables. It
// never mutates stock.
type ReportRepository struct {
	db *database.DB
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *database.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// LowStock lists medicines whose remaining stock is above zero but below
// their reorder level (or the given threshold when they have none).
func (r *ReportRepository) LowStock(ctx context.Context, fallbackThreshold int) ([]*StockLevelRow, error) {
	var rows []*StockLevelRow
	query := `
		SELECT m.id AS medicine_id, m.name, m.sku, m.category,
		       COALESCE(SUM(b.quantity), 0) AS total_stock,
		       COALESCE(m.reorder_level, $1) AS reorder_level
		FROM medicines m
		LEFT JOIN medicine_batches b ON b.medicine_id = m.id
		WHERE m.archived_at IS NULL
		GROUP BY m.id
		HAVING COALESCE(SUM(b.quantity), 0) > 0
		   AND COALESCE(SUM(b.quantity), 0) < COALESCE(m.reorder_level, $1)
		ORDER BY total_stock ASC
	`
	if err := r.db.SelectContext(ctx, &rows, query, fallbackThreshold); err != nil {
		return nil, err
	}
	return rows, nil
}

// OutOfStock lists medicines with no remaining stock at all
func (r *ReportRepository) OutOfStock(ctx context.Context) ([]*StockLevelRow, error) {
	var rows []*StockLevelRow
	query := `
		SELECT m.id AS medicine_id, m.name, m.sku, m.category,
		       COALESCE(SUM(b.quantity), 0) AS total_stock,
		       m.reorder_level
		FROM medicines m
		LEFT JOIN medicine_batches b ON b.medicine_id = m.id
		WHERE m.archived_at IS NULL
		GROUP BY m.id
		HAVING COALESCE(SUM(b.quantity), 0) = 0
		ORDER BY m.name
	`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	return rows, nil
}

// Valuation values each medicine's remaining stock at purchase price
func (r *ReportRepository) Valuation(ctx context.Context) ([]*ValuationRow, decimal.Decimal, error) {
	var rows []*ValuationRow
	query := `
		SELECT m.id AS medicine_id, m.name,
		       COALESCE(SUM(b.quantity), 0) AS total_stock,
		       COALESCE(SUM(b.quantity * b.purchase_price), 0) AS value
		FROM medicines m
		LEFT JOIN medicine_batches b ON b.medicine_id = m.id
		WHERE m.archived_at IS NULL
		GROUP BY m.id
		ORDER BY value DESC
	`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, decimal.Zero, err
	}

	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Value)
	}
	return rows, total, nil
}

// TopMovers ranks medicines by dispensed quantity within a window
func (r *ReportRepository) TopMovers(ctx context.Context, since time.Time, limit int) ([]*TopMoverRow, error) {
	if limit < 1 {
		limit = 10
	}

	var rows []*TopMoverRow
	query := `
		SELECT i.medicine_id, m.name,
		       SUM(i.quantity) AS total_quantity,
		       COALESCE(SUM(i.line_total), 0) AS total_revenue,
		       COUNT(DISTINCT e.id) AS entry_count
		FROM ledger_items i
		JOIN ledger_entries e ON e.id = i.entry_id
		JOIN medicines m ON m.id = i.medicine_id
		WHERE e.entry_type = 'Dispense' AND e.created_at >= $1
		GROUP BY i.medicine_id, m.name
		ORDER BY total_quantity DESC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &rows, query, since, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

// Dashboard collects the counters the dashboard endpoint serves
func (r *ReportRepository) Dashboard(ctx context.Context, expiringDays int) (*DashboardStats, error) {
	stats := &DashboardStats{
		StockValue:    decimal.Zero,
		RecentRevenue: decimal.Zero,
	}

	countsQuery := `
		WITH stock AS (
			SELECT m.id, m.reorder_level, COALESCE(SUM(b.quantity), 0) AS total
			FROM medicines m
			LEFT JOIN medicine_batches b ON b.medicine_id = m.id
			WHERE m.archived_at IS NULL
			GROUP BY m.id
		)
		SELECT COUNT(*) AS total_medicines,
		       COUNT(*) FILTER (WHERE total >= reorder_level) AS in_stock,
		       COUNT(*) FILTER (WHERE total > 0 AND total < reorder_level) AS low_stock,
		       COUNT(*) FILTER (WHERE total = 0) AS out_of_stock
		FROM stock
	`
	var counts struct {
		TotalMedicines int64 `db:"total_medicines"`
		InStock        int64 `db:"in_stock"`
		LowStock       int64 `db:"low_stock"`
		OutOfStock     int64 `db:"out_of_stock"`
	}
	if err := r.db.GetContext(ctx, &counts, countsQuery); err != nil {
		return nil, err
	}
	stats.TotalMedicines = counts.TotalMedicines
	stats.InStockCount = counts.InStock
	stats.LowStockCount = counts.LowStock
	stats.OutOfStockCount = counts.OutOfStock

	expiringQuery := `
		SELECT COUNT(*) FROM medicine_batches
		WHERE quantity > 0 AND expiry_date IS NOT NULL
		AND expiry_date >= NOW() AND expiry_date <= NOW() + INTERVAL '1 day' * $1
	`
	if err := r.db.GetContext(ctx, &stats.ExpiringBatches, expiringQuery, expiringDays); err != nil {
		return nil, err
	}

	valueQuery := `SELECT COALESCE(SUM(quantity * purchase_price), 0) FROM medicine_batches`
	if err := r.db.GetContext(ctx, &stats.StockValue, valueQuery); err != nil {
		return nil, err
	}

	recentQuery := `
		SELECT COUNT(*) AS cnt, COALESCE(SUM(total), 0) AS revenue
		FROM ledger_entries
		WHERE entry_type = 'Dispense' AND created_at >= NOW() - INTERVAL '30 days'
	`
	var recent struct {
		Cnt     int64           `db:"cnt"`
		Revenue decimal.Decimal `db:"revenue"`
	}
	if err := r.db.GetContext(ctx, &recent, recentQuery); err != nil {
		return nil, err
	}
	stats.RecentDispenses = recent.Cnt
	stats.RecentRevenue = recent.Revenue

	movers, err := r.TopMovers(ctx, time.Now().AddDate(0, 0, -30), 5)
	if err != nil {
		return nil, err
	}
	stats.TopMovers = movers

	return stats, nil
}
