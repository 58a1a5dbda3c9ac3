package service

import (
	"context"

	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmaflow/pharmacy-backend/pkg/logger"
)

// AlertService exposes stored alerts to the API. Alerts are created by
// the scanner only; the API can read and acknowledge them.
type AlertService struct {
	alertRepo *repository.AlertRepository
	scanner   *AlertScanner
	logger    *logger.Logger
}

// NewAlertService creates a new alert service
func NewAlertService(alertRepo *repository.AlertRepository, scanner *AlertScanner, log *logger.Logger) *AlertService {
	return &AlertService{alertRepo: alertRepo, scanner: scanner, logger: log}
}

// ListAlerts lists alerts, open ones first
func (s *AlertService) ListAlerts(ctx context.Context, includeResolved bool, alertType string, page, perPage int) ([]*repository.StockAlert, int64, error) {
	return s.alertRepo.List(ctx, includeResolved, alertType, page, perPage)
}

// GetAlert gets an alert by ID
func (s *AlertService) GetAlert(ctx context.Context, id string) (*repository.StockAlert, error) {
	return s.alertRepo.GetByID(ctx, id)
}

// AcknowledgeAlert marks an open alert as seen by the given actor
func (s *AlertService) AcknowledgeAlert(ctx context.Context, id, actor string) (*repository.StockAlert, error) {
	if err := s.alertRepo.Acknowledge(ctx, id, actor); err != nil {
		return nil, err
	}
	return s.alertRepo.GetByID(ctx, id)
}

// OpenCount returns the number of unresolved alerts
func (s *AlertService) OpenCount(ctx context.Context) (int64, error) {
	return s.alertRepo.GetOpenCount(ctx)
}

// TriggerScan runs a full scan immediately
func (s *AlertService) TriggerScan(ctx context.Context) error {
	return s.scanner.ScanAll(ctx)
}
