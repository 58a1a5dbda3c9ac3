package service

import (
	"context"
	"strings"
	"time"

	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmaflow/pharmacy-backend/pkg/errors"
	"github.com/pharmaflow/pharmacy-backend/pkg/logger"
)

// CatalogService handles the medicine catalog. It never moves stock;
// quantities belong to batches and only change through the stock service.
type CatalogService struct {
	medicineRepo *repository.MedicineRepository
	batchRepo    *repository.BatchRepository
	publisher    *events.PharmacyEventPublisher
	logger       *logger.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(
	medicineRepo *repository.MedicineRepository,
	batchRepo *repository.BatchRepository,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *CatalogService {
	return &CatalogService{
		medicineRepo: medicineRepo,
		batchRepo:    batchRepo,
		publisher:    publisher,
		logger:       log,
	}
}

// MedicineWithStock is a catalog entry enriched with its batches and
// derived stock state
type MedicineWithStock struct {
	*repository.Medicine
	Batches       []*repository.MedicineBatch `json:"batches,omitempty"`
	TotalStock    int                         `json:"total_stock"`
	DerivedStatus string                      `json:"derived_status"`
	NearestExpiry *time.Time                  `json:"nearest_expiry,omitempty"`
}

// BulkImportResult reports the outcome of a bulk import
type BulkImportResult struct {
	Imported int              `json:"imported"`
	Skipped  int              `json:"skipped"`
	Failed   int              `json:"failed"`
	Rows     []*BulkImportRow `json:"rows"`
}

// BulkImportRow is the per-row outcome of a bulk import
type BulkImportRow struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Status     string `json:"status"` // imported, skipped, failed
	MedicineID string `json:"medicine_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// CreateMedicine creates a new medicine
func (s *CatalogService) CreateMedicine(ctx context.Context, m *repository.Medicine) error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.Validation(map[string]string{"name": "this field is required"})
	}
	if m.ReorderLevel == 0 {
		m.ReorderLevel = repository.DefaultReorderLevel
	}
	if m.SKU != nil && *m.SKU != "" {
		exists, err := s.medicineRepo.ExistsBySKU(ctx, *m.SKU)
		if err != nil {
			return err
		}
		if exists {
			return errors.DuplicateSKU(*m.SKU)
		}
	}

	if err := s.medicineRepo.Create(ctx, m); err != nil {
		return err
	}

	s.publisher.PublishMedicineCreated(ctx, m)
	return nil
}

// GetMedicine gets a medicine enriched with batches and stock state
func (s *CatalogService) GetMedicine(ctx context.Context, id string) (*MedicineWithStock, error) {
	m, err := s.medicineRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	batches, err := s.batchRepo.ListByMedicine(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.enrichMedicine(m, batches), nil
}

// ListMedicines lists medicines with stock enrichment
func (s *CatalogService) ListMedicines(ctx context.Context, filter repository.MedicineFilter) ([]*MedicineWithStock, int64, error) {
	medicines, total, err := s.medicineRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	result := make([]*MedicineWithStock, len(medicines))
	for i, m := range medicines {
		batches, _ := s.batchRepo.ListByMedicine(ctx, m.ID)
		result[i] = s.enrichMedicine(m, batches)
	}

	return result, total, nil
}

// UpdateMedicine updates catalog fields
func (s *CatalogService) UpdateMedicine(ctx context.Context, m *repository.Medicine) error {
	existing, err := s.medicineRepo.GetByID(ctx, m.ID)
	if err != nil {
		return err
	}

	if m.SKU != nil && *m.SKU != "" {
		skuChanged := existing.SKU == nil || *existing.SKU != *m.SKU
		if skuChanged {
			exists, err := s.medicineRepo.ExistsBySKU(ctx, *m.SKU)
			if err != nil {
				return err
			}
			if exists {
				return errors.DuplicateSKU(*m.SKU)
			}
		}
	}

	if err := s.medicineRepo.Update(ctx, m); err != nil {
		return err
	}

	fields := map[string]any{"name": m.Name, "category": m.Category}
	if m.SKU != nil {
		fields["sku"] = *m.SKU
	}
	s.publisher.PublishMedicineUpdated(ctx, m.ID, fields)
	return nil
}

// ArchiveMedicine archives a medicine unless batches or ledger records
// still depend on it
func (s *CatalogService) ArchiveMedicine(ctx context.Context, id string) error {
	if _, err := s.medicineRepo.GetByID(ctx, id); err != nil {
		return err
	}

	open, err := s.medicineRepo.HasOpenBatches(ctx, id)
	if err != nil {
		return err
	}
	if open {
		return errors.HasDependentRecords("medicine has batches with remaining stock")
	}

	referenced, err := s.medicineRepo.HasLedgerReferences(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return errors.HasDependentRecords("medicine is referenced by ledger entries")
	}

	if err := s.medicineRepo.Archive(ctx, id); err != nil {
		return err
	}

	s.publisher.PublishMedicineArchived(ctx, id, false)
	return nil
}

// BulkImportMedicines creates medicines best effort, one row at a time.
// Rows with a duplicate SKU are skipped, invalid rows fail; neither stops
// the rest of the import.
func (s *CatalogService) BulkImportMedicines(ctx context.Context, medicines []*repository.Medicine) (*BulkImportResult, error) {
	result := &BulkImportResult{Rows: make([]*BulkImportRow, 0, len(medicines))}

	for i, m := range medicines {
		row := &BulkImportRow{Index: i, Name: m.Name}

		if strings.TrimSpace(m.Name) == "" {
			row.Status = "failed"
			row.Reason = "name is required"
			result.Failed++
			result.Rows = append(result.Rows, row)
			continue
		}

		if m.SKU != nil && *m.SKU != "" {
			exists, err := s.medicineRepo.ExistsBySKU(ctx, *m.SKU)
			if err != nil {
				return nil, err
			}
			if exists {
				row.Status = "skipped"
				row.Reason = "sku already exists"
				result.Skipped++
				result.Rows = append(result.Rows, row)
				continue
			}
		}

		if m.ReorderLevel == 0 {
			m.ReorderLevel = repository.DefaultReorderLevel
		}

		if err := s.medicineRepo.Create(ctx, m); err != nil {
			row.Status = "failed"
			row.Reason = err.Error()
			result.Failed++
			result.Rows = append(result.Rows, row)
			continue
		}

		row.Status = "imported"
		row.MedicineID = m.ID
		result.Imported++
		result.Rows = append(result.Rows, row)
	}

	s.logger.Info().
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("bulk import completed")

	return result, nil
}

// ListCategories returns the distinct catalog categories
func (s *CatalogService) ListCategories(ctx context.Context) ([]string, error) {
	return s.medicineRepo.ListCategories(ctx)
}

func (s *CatalogService) enrichMedicine(m *repository.Medicine, batches []*repository.MedicineBatch) *MedicineWithStock {
	result := &MedicineWithStock{
		Medicine: m,
		Batches:  batches,
	}

	for _, b := range batches {
		result.TotalStock += b.Quantity
	}

	// Find nearest expiry among batches with stock
	var nearestExpiry *time.Time
	for _, b := range batches {
		if b.Quantity > 0 && b.ExpiryDate != nil {
			if nearestExpiry == nil || b.ExpiryDate.Before(*nearestExpiry) {
				nearestExpiry = b.ExpiryDate
			}
		}
	}
	result.NearestExpiry = nearestExpiry

	expiringSoon := nearestExpiry != nil && time.Until(*nearestExpiry) <= 30*24*time.Hour

	switch {
	case result.TotalStock == 0:
		result.DerivedStatus = repository.StatusOutOfStock
	case result.TotalStock < m.ReorderLevel:
		result.DerivedStatus = repository.StatusLowStock
	case expiringSoon:
		result.DerivedStatus = repository.StatusExpiring
	default:
		result.DerivedStatus = repository.StatusInStock
	}

	return result
}
