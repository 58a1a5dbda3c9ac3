package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmaflow/pharmacy-backend/pkg/logger"
)

const defaultTopMoversLimit = 10

// ReportService serves read-only analytics over the catalog, batches and
// ledger. Nothing here writes.
type ReportService struct {
	reportRepo *repository.ReportRepository
	batchRepo  *repository.BatchRepository
	logger     *logger.Logger
}

// NewReportService creates a new report service
func NewReportService(reportRepo *repository.ReportRepository, batchRepo *repository.BatchRepository, log *logger.Logger) *ReportService {
	return &ReportService{reportRepo: reportRepo, batchRepo: batchRepo, logger: log}
}

// LowStock lists medicines whose total stock is above zero but under
// their reorder level
func (s *ReportService) LowStock(ctx context.Context) ([]*repository.StockLevelRow, error) {
	return s.reportRepo.LowStock(ctx, repository.DefaultReorderLevel)
}

// OutOfStock lists active medicines with zero total stock
func (s *ReportService) OutOfStock(ctx context.Context) ([]*repository.StockLevelRow, error) {
	return s.reportRepo.OutOfStock(ctx)
}

// ExpiringBatches lists batches with remaining stock expiring within the
// given window
func (s *ReportService) ExpiringBatches(ctx context.Context, withinDays int) ([]*repository.MedicineBatch, error) {
	if withinDays <= 0 {
		withinDays = 30
	}
	return s.batchRepo.GetExpiringBatches(ctx, withinDays)
}

// ExpiredBatches lists batches past their expiry date that still hold stock
func (s *ReportService) ExpiredBatches(ctx context.Context) ([]*repository.MedicineBatch, error) {
	return s.batchRepo.GetExpiredBatches(ctx)
}

// Valuation totals on-hand stock at purchase price per medicine
func (s *ReportService) Valuation(ctx context.Context) ([]*repository.ValuationRow, decimal.Decimal, error) {
	return s.reportRepo.Valuation(ctx)
}

// TopMovers ranks medicines by dispensed quantity within the window
func (s *ReportService) TopMovers(ctx context.Context, days, limit int) ([]*repository.TopMoverRow, error) {
	if days <= 0 {
		days = 30
	}
	if limit <= 0 {
		limit = defaultTopMoversLimit
	}
	since := time.Now().AddDate(0, 0, -days)
	return s.reportRepo.TopMovers(ctx, since, limit)
}

// Dashboard aggregates the headline numbers shown on the landing screen
func (s *ReportService) Dashboard(ctx context.Context, expiringDays int) (*repository.DashboardStats, error) {
	if expiringDays <= 0 {
		expiringDays = 30
	}
	return s.reportRepo.Dashboard(ctx, expiringDays)
}
