package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmaflow/pharmacy-backend/pkg/database"
	"github.com/pharmaflow/pharmacy-backend/pkg/errors"
	"github.com/pharmaflow/pharmacy-backend/pkg/logger"
)

// DispenseService executes dispense requests. A request either commits
// fully, with every batch decrement and the ledger entry in one
// transaction, or leaves no trace.
type DispenseService struct {
	db           *database.DB
	medicineRepo *repository.MedicineRepository
	batchRepo    *repository.BatchRepository
	ledgerRepo   *repository.LedgerRepository
	sequenceRepo *repository.SequenceRepository
	patientRepo  *repository.PatientCacheRepository
	publisher    *events.PharmacyEventPublisher
	logger       *logger.Logger
}

// NewDispenseService creates a new dispense service
func NewDispenseService(
	db *database.DB,
	medicineRepo *repository.MedicineRepository,
	batchRepo *repository.BatchRepository,
	ledgerRepo *repository.LedgerRepository,
	sequenceRepo *repository.SequenceRepository,
	patientRepo *repository.PatientCacheRepository,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *DispenseService {
	return &DispenseService{
		db:           db,
		medicineRepo: medicineRepo,
		batchRepo:    batchRepo,
		ledgerRepo:   ledgerRepo,
		sequenceRepo: sequenceRepo,
		patientRepo:  patientRepo,
		publisher:    publisher,
		logger:       log,
	}
}

// DispenseItemRequest is one requested line. BatchID pins the draw to a
// single batch; when empty the engine picks batches first-expiring-first.
// UnitPrice overrides the batch sale price when set.
type DispenseItemRequest struct {
	MedicineID string
	BatchID    *string
	Quantity   int
	UnitPrice  *decimal.Decimal
}

// DispenseRequest describes a full dispense
type DispenseRequest struct {
	Items         []DispenseItemRequest
	PatientID     *string
	PatientName   string
	AppointmentID *string
	Paid          bool
	PaymentMethod *string
	Notes         string
	CreatedBy     string
}

// batchDraw is one slice of a planned allocation
type batchDraw struct {
	Batch    *repository.MedicineBatch
	Quantity int
}

// planAllocation walks batches first-expiring-first and draws up to qty
// units, splitting across batches as needed. Batches without an expiry
// date sort last; ties break on creation time. Returns the draws and the
// shortfall still uncovered.
func planAllocation(candidates []*repository.MedicineBatch, qty int) ([]batchDraw, int) {
	ordered := make([]*repository.MedicineBatch, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate == nil:
			return a.CreatedAt.Before(b.CreatedAt)
		case a.ExpiryDate == nil:
			return false
		case b.ExpiryDate == nil:
			return true
		case a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
	})

	remaining := qty
	var draws []batchDraw
	for _, b := range ordered {
		if remaining == 0 {
			break
		}
		if b.Quantity <= 0 {
			continue
		}
		take := b.Quantity
		if take > remaining {
			take = remaining
		}
		draws = append(draws, batchDraw{Batch: b, Quantity: take})
		remaining -= take
	}
	return draws, remaining
}

// Dispense runs the whole request in a single transaction. The patient
// reference is checked before any stock is touched, each pinned batch is
// verified and decremented, unpinned items are allocated first-expiring-
// first across locked candidate rows, and the sequence bump plus ledger
// entry land in the same commit.
func (s *DispenseService) Dispense(ctx context.Context, req *DispenseRequest) (*repository.LedgerEntry, error) {
	if len(req.Items) == 0 {
		return nil, errors.Validation(map[string]string{"items": "at least one item is required"})
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, errors.Validation(map[string]string{
				fmt.Sprintf("items[%d].quantity", i): "must be greater than 0",
			})
		}
	}

	patientID := req.PatientID
	if patientID != nil && *patientID == "" {
		patientID = nil
	}

	var entry *repository.LedgerEntry
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		patientName := req.PatientName
		if patientID != nil {
			ref, err := s.patientRepo.Get(ctx, *patientID)
			if err != nil {
				return err
			}
			if ref == nil {
				return errors.NotFound("patient")
			}
			if patientName == "" {
				patientName = ref.FullName
			}
		}

		total := decimal.Zero
		var lines []*repository.LedgerItem
		for _, item := range req.Items {
			medicine, err := s.medicineRepo.GetByID(ctx, item.MedicineID)
			if err != nil {
				return err
			}

			var draws []batchDraw
			if item.BatchID != nil && *item.BatchID != "" {
				batch, err := s.batchRepo.GetForUpdateTx(ctx, tx, *item.BatchID)
				if err != nil {
					return err
				}
				if batch.MedicineID != item.MedicineID {
					return errors.BadRequest(fmt.Sprintf("batch %s does not belong to medicine %s", batch.ID, item.MedicineID))
				}
				if batch.Quantity < item.Quantity {
					return errors.InsufficientStock(fmt.Sprintf("batch %s holds %d units, %d requested", batch.BatchNumber, batch.Quantity, item.Quantity))
				}
				draws = []batchDraw{{Batch: batch, Quantity: item.Quantity}}
			} else {
				candidates, err := s.batchRepo.CandidatesForAllocationTx(ctx, tx, item.MedicineID)
				if err != nil {
					return err
				}
				if len(candidates) == 0 {
					return errors.NoStockAvailable(item.MedicineID)
				}

				var short int
				draws, short = planAllocation(candidates, item.Quantity)
				if short > 0 {
					return errors.InsufficientStock(fmt.Sprintf("%s: %d of %d units available", medicine.Name, item.Quantity-short, item.Quantity))
				}
			}

			taxPercent := decimal.Zero
			if medicine.TaxPercent != nil {
				taxPercent = *medicine.TaxPercent
			}
			sku := ""
			if medicine.SKU != nil {
				sku = *medicine.SKU
			}

			for _, draw := range draws {
				if err := s.batchRepo.DecrementQuantityTx(ctx, tx, draw.Batch.ID, draw.Quantity); err != nil {
					return err
				}

				unitPrice := draw.Batch.SalePrice
				if item.UnitPrice != nil {
					unitPrice = *item.UnitPrice
				}
				// Tax is carried alongside the line, never folded into it
				lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(draw.Quantity)))
				taxAmount := lineTotal.Mul(taxPercent).Div(decimal.NewFromInt(100)).Round(2)

				lines = append(lines, &repository.LedgerItem{
					MedicineID: medicine.ID,
					BatchID:    draw.Batch.ID,
					SKU:        sku,
					Name:       medicine.Name,
					Quantity:   draw.Quantity,
					UnitPrice:  unitPrice,
					TaxPercent: taxPercent,
					TaxAmount:  taxAmount,
					LineTotal:  lineTotal,
				})
				total = total.Add(lineTotal)
			}
		}

		seq, err := s.sequenceRepo.NextTx(ctx, tx, repository.SequenceDispense)
		if err != nil {
			return err
		}

		entry = &repository.LedgerEntry{
			Code:          repository.FormatLedgerCode(repository.EntryTypeDispense, seq),
			EntryType:     repository.EntryTypeDispense,
			PatientID:     patientID,
			PatientName:   patientName,
			AppointmentID: req.AppointmentID,
			Total:         total,
			Paid:          req.Paid,
			PaymentMethod: req.PaymentMethod,
			Notes:         req.Notes,
			CreatedBy:     req.CreatedBy,
			Items:         lines,
		}

		return s.ledgerRepo.CreateEntryTx(ctx, tx, entry)
	})
	if err != nil {
		return nil, wrapStorage(err)
	}

	s.logger.Info().
		Str("ledger_code", entry.Code).
		Int("items", len(entry.Items)).
		Str("total", entry.Total.String()).
		Msg("dispense completed")
	s.publisher.PublishDispenseCompleted(ctx, entry)
	return entry, nil
}

// wrapStorage keeps domain errors as-is and wraps anything else, dropped
// connections and failed commits included, as a storage failure the
// caller can retry.
func wrapStorage(err error) error {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return errors.StorageUnavailable(err)
}
