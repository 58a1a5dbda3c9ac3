package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmaflow/pharmacy-backend/pkg/logger"
)

// ExpiringWindowDays is how far ahead the expiry scan looks
const ExpiringWindowDays = 30

// AlertScanner derives stock alerts from the catalog, batches and their
// expiry dates. Scans never mutate stock; they only create and resolve
// alert rows, with deduplication against the open set.
type AlertScanner struct {
	medicineRepo *repository.MedicineRepository
	batchRepo    *repository.BatchRepository
	alertRepo    *repository.AlertRepository
	publisher    *events.PharmacyEventPublisher
	expiringDays int
	logger       *logger.Logger
}

// NewAlertScanner creates a new alert scanner
func NewAlertScanner(
	medicineRepo *repository.MedicineRepository,
	batchRepo *repository.BatchRepository,
	alertRepo *repository.AlertRepository,
	publisher *events.PharmacyEventPublisher,
	expiringDays int,
	log *logger.Logger,
) *AlertScanner {
	if expiringDays <= 0 {
		expiringDays = ExpiringWindowDays
	}
	return &AlertScanner{
		medicineRepo: medicineRepo,
		batchRepo:    batchRepo,
		alertRepo:    alertRepo,
		publisher:    publisher,
		expiringDays: expiringDays,
		logger:       log,
	}
}

// ScanAll runs all alert scans. Logs errors but continues scanning.
func (s *AlertScanner) ScanAll(ctx context.Context) error {
	scanners := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"low_stock", s.scanLowStock},
		{"expiry", s.scanExpiry},
		{"resolve_cleared", s.resolveCleared},
	}

	var lastErr error
	for _, scanner := range scanners {
		if err := scanner.fn(ctx); err != nil {
			s.logger.Error().Err(err).Str("scanner", scanner.name).Msg("alert scan failed")
			lastErr = err
		}
	}

	return lastErr
}

// scanLowStock checks for low stock and out of stock conditions
func (s *AlertScanner) scanLowStock(ctx context.Context) error {
	medicines, err := s.medicineRepo.GetAllActive(ctx)
	if err != nil {
		return fmt.Errorf("scanLowStock: get active medicines: %w", err)
	}

	for _, medicine := range medicines {
		totalStock, err := s.batchRepo.GetTotalStock(ctx, medicine.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("medicine_id", medicine.ID).Msg("scanLowStock: failed to get total stock")
			continue
		}

		reorderLevel := medicine.ReorderLevel
		if reorderLevel <= 0 {
			reorderLevel = repository.DefaultReorderLevel
		}
		if totalStock >= reorderLevel {
			continue
		}

		alertType := repository.AlertTypeLowStock
		severity := "warning"
		if totalStock == 0 {
			alertType = repository.AlertTypeOutOfStock
			severity = "critical"
		} else if totalStock < reorderLevel/2 {
			severity = "critical"
		}

		// Dedup: check if an open alert already exists
		exists, err := s.alertRepo.ExistsByTypeAndEntity(ctx, alertType, medicine.ID, nil)
		if err != nil {
			s.logger.Error().Err(err).Str("medicine_id", medicine.ID).Msg("scanLowStock: failed to check existing alert")
			continue
		}
		if exists {
			continue
		}

		alert := &repository.StockAlert{
			AlertType:    alertType,
			MedicineID:   medicine.ID,
			MedicineName: medicine.Name,
			Severity:     severity,
			Message:      fmt.Sprintf("%s is %s (%d/%d)", medicine.Name, alertType, totalStock, reorderLevel),
			CurrentStock: &totalStock,
			ReorderLevel: &reorderLevel,
		}

		if err := s.alertRepo.Create(ctx, alert); err != nil {
			s.logger.Error().Err(err).Str("medicine_id", medicine.ID).Msg("scanLowStock: failed to create alert")
			continue
		}
		s.publisher.PublishAlertGenerated(ctx, alert)
	}

	return nil
}

// scanExpiry checks for expiring and expired batches with remaining stock
func (s *AlertScanner) scanExpiry(ctx context.Context) error {
	batches, err := s.batchRepo.GetExpiringBatches(ctx, s.expiringDays)
	if err != nil {
		return fmt.Errorf("scanExpiry: get expiring batches: %w", err)
	}

	expired, err := s.batchRepo.GetExpiredBatches(ctx)
	if err != nil {
		return fmt.Errorf("scanExpiry: get expired batches: %w", err)
	}
	batches = append(batches, expired...)

	for _, batch := range batches {
		if batch.ExpiryDate == nil || batch.Quantity == 0 {
			continue
		}

		medicine, err := s.medicineRepo.GetByID(ctx, batch.MedicineID)
		if err != nil {
			continue
		}

		daysUntil := int(time.Until(*batch.ExpiryDate).Hours() / 24)

		alertType := repository.AlertTypeExpiring
		if daysUntil < 0 {
			alertType = repository.AlertTypeExpired
		}

		// Dedup: check if an open alert already exists for this batch
		exists, err := s.alertRepo.ExistsByTypeAndEntity(ctx, alertType, medicine.ID, &batch.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("scanExpiry: failed to check existing alert")
			continue
		}
		if exists {
			continue
		}

		var message string
		if daysUntil < 0 {
			message = fmt.Sprintf("%s batch %s expired %d days ago with %d units remaining", medicine.Name, batch.BatchNumber, -daysUntil, batch.Quantity)
		} else {
			message = fmt.Sprintf("%s batch %s expires in %d days with %d units remaining", medicine.Name, batch.BatchNumber, daysUntil, batch.Quantity)
		}

		alert := &repository.StockAlert{
			AlertType:    alertType,
			MedicineID:   medicine.ID,
			MedicineName: medicine.Name,
			BatchID:      &batch.ID,
			BatchNumber:  &batch.BatchNumber,
			Severity:     "critical",
			Message:      message,
			CurrentStock: &batch.Quantity,
			ExpiryDate:   batch.ExpiryDate,
		}

		if err := s.alertRepo.Create(ctx, alert); err != nil {
			s.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("scanExpiry: failed to create alert")
			continue
		}
		s.publisher.PublishAlertGenerated(ctx, alert)
		s.publisher.PublishBatchExpiring(ctx, medicine, batch, daysUntil)
	}

	return nil
}

// resolveCleared closes open stock alerts whose condition no longer holds,
// so a restock clears the alert on the next scan without manual action.
func (s *AlertScanner) resolveCleared(ctx context.Context) error {
	medicines, err := s.medicineRepo.GetAllActive(ctx)
	if err != nil {
		return fmt.Errorf("resolveCleared: get active medicines: %w", err)
	}

	for _, medicine := range medicines {
		totalStock, err := s.batchRepo.GetTotalStock(ctx, medicine.ID)
		if err != nil {
			continue
		}

		reorderLevel := medicine.ReorderLevel
		if reorderLevel <= 0 {
			reorderLevel = repository.DefaultReorderLevel
		}

		if totalStock > 0 {
			if err := s.alertRepo.ResolveByTypeAndEntity(ctx, repository.AlertTypeOutOfStock, medicine.ID); err != nil {
				s.logger.Error().Err(err).Str("medicine_id", medicine.ID).Msg("resolveCleared: failed to resolve out of stock alert")
			}
		}
		if totalStock >= reorderLevel {
			if err := s.alertRepo.ResolveByTypeAndEntity(ctx, repository.AlertTypeLowStock, medicine.ID); err != nil {
				s.logger.Error().Err(err).Str("medicine_id", medicine.ID).Msg("resolveCleared: failed to resolve low stock alert")
			}
		}
	}

	return nil
}
