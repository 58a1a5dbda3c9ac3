package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmaflow/pharmacy-backend/pkg/database"
	"github.com/pharmaflow/pharmacy-backend/pkg/errors"
	"github.com/pharmaflow/pharmacy-backend/pkg/logger"
)

// StockService handles batch intake and manual quantity adjustments.
// Every quantity movement writes a ledger entry in the same transaction.
type StockService struct {
	db           *database.DB
	medicineRepo *repository.MedicineRepository
	batchRepo    *repository.BatchRepository
	ledgerRepo   *repository.LedgerRepository
	sequenceRepo *repository.SequenceRepository
	publisher    *events.PharmacyEventPublisher
	logger       *logger.Logger
}

// NewStockService creates a new stock service
func NewStockService(
	db *database.DB,
	medicineRepo *repository.MedicineRepository,
	batchRepo *repository.BatchRepository,
	ledgerRepo *repository.LedgerRepository,
	sequenceRepo *repository.SequenceRepository,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *StockService {
	return &StockService{
		db:           db,
		medicineRepo: medicineRepo,
		batchRepo:    batchRepo,
		ledgerRepo:   ledgerRepo,
		sequenceRepo: sequenceRepo,
		publisher:    publisher,
		logger:       log,
	}
}

// ReceiveBatch records an incoming lot. The batch row and its
// PurchaseReceive ledger entry commit together.
func (s *StockService) ReceiveBatch(ctx context.Context, batch *repository.MedicineBatch, createdBy string) (*repository.LedgerEntry, error) {
	medicine, err := s.medicineRepo.GetByID(ctx, batch.MedicineID)
	if err != nil {
		return nil, err
	}
	if batch.Quantity < 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must be at least 0"})
	}

	var entry *repository.LedgerEntry
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.batchRepo.CreateTx(ctx, tx, batch); err != nil {
			return err
		}

		seq, err := s.sequenceRepo.NextTx(ctx, tx, repository.SequenceReceive)
		if err != nil {
			return err
		}

		lineTotal := batch.PurchasePrice.Mul(decimal.NewFromInt(int64(batch.Quantity)))
		sku := ""
		if medicine.SKU != nil {
			sku = *medicine.SKU
		}

		entry = &repository.LedgerEntry{
			Code:      repository.FormatLedgerCode(repository.EntryTypePurchaseReceive, seq),
			EntryType: repository.EntryTypePurchaseReceive,
			Total:     lineTotal,
			Paid:      true,
			Notes:     fmt.Sprintf("received batch %s", batch.BatchNumber),
			CreatedBy: createdBy,
			Items: []*repository.LedgerItem{{
				MedicineID: medicine.ID,
				BatchID:    batch.ID,
				SKU:        sku,
				Name:       medicine.Name,
				Quantity:   batch.Quantity,
				UnitPrice:  batch.PurchasePrice,
				TaxPercent: decimal.Zero,
				TaxAmount:  decimal.Zero,
				LineTotal:  lineTotal,
			}},
		}

		return s.ledgerRepo.CreateEntryTx(ctx, tx, entry)
	})
	if err != nil {
		return nil, wrapStorage(err)
	}

	s.publisher.PublishBatchReceived(ctx, batch, entry.ID)
	return entry, nil
}

// AdjustBatchQuantity applies a signed correction to one batch. This is
// the only quantity primitive outside dispensing; the guard in the UPDATE
// keeps the batch from going negative. An Adjustment ledger entry commits
// with the change.
func (s *StockService) AdjustBatchQuantity(ctx context.Context, batchID string, delta int, reason, createdBy string) (*repository.LedgerEntry, error) {
	if delta == 0 {
		return nil, errors.Validation(map[string]string{"delta": "must not be zero"})
	}

	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	medicine, err := s.medicineRepo.GetByID(ctx, batch.MedicineID)
	if err != nil {
		return nil, err
	}

	var entry *repository.LedgerEntry
	var newQty int
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		newQty, err = s.batchRepo.AdjustQuantityTx(ctx, tx, batchID, delta)
		if err != nil {
			return err
		}

		seq, err := s.sequenceRepo.NextTx(ctx, tx, repository.SequenceAdjust)
		if err != nil {
			return err
		}

		sku := ""
		if medicine.SKU != nil {
			sku = *medicine.SKU
		}

		entry = &repository.LedgerEntry{
			Code:      repository.FormatLedgerCode(repository.EntryTypeAdjustment, seq),
			EntryType: repository.EntryTypeAdjustment,
			Total:     decimal.Zero,
			Paid:      true,
			Notes:     reason,
			CreatedBy: createdBy,
			Items: []*repository.LedgerItem{{
				MedicineID: medicine.ID,
				BatchID:    batch.ID,
				SKU:        sku,
				Name:       medicine.Name,
				Quantity:   delta,
				UnitPrice:  decimal.Zero,
				TaxPercent: decimal.Zero,
				TaxAmount:  decimal.Zero,
				LineTotal:  decimal.Zero,
			}},
		}

		return s.ledgerRepo.CreateEntryTx(ctx, tx, entry)
	})
	if err != nil {
		return nil, wrapStorage(err)
	}

	s.publisher.PublishStockAdjusted(ctx, medicine.ID, batchID, delta, newQty, reason, entry.ID)
	return entry, nil
}

// GetBatch gets a batch by ID
func (s *StockService) GetBatch(ctx context.Context, id string) (*repository.MedicineBatch, error) {
	return s.batchRepo.GetByID(ctx, id)
}

// ListBatches lists batches with filtering
func (s *StockService) ListBatches(ctx context.Context, filter repository.BatchFilter) ([]*repository.MedicineBatch, int64, error) {
	return s.batchRepo.List(ctx, filter)
}

// UpdateBatch updates batch metadata. Quantity is rejected upstream; it
// only moves through AdjustBatchQuantity and dispensing.
func (s *StockService) UpdateBatch(ctx context.Context, batch *repository.MedicineBatch) error {
	return s.batchRepo.UpdateMetadata(ctx, batch)
}

// TotalStock returns the summed quantity across a medicine's batches
func (s *StockService) TotalStock(ctx context.Context, medicineID string) (int, error) {
	if _, err := s.medicineRepo.GetByID(ctx, medicineID); err != nil {
		return 0, err
	}
	return s.batchRepo.GetTotalStock(ctx, medicineID)
}
