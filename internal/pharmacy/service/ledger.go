package service

import (
	"context"

	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmaflow/pharmacy-backend/pkg/logger"
)

// LedgerService reads the immutable movement ledger. Payment state is the
// only thing it ever changes.
type LedgerService struct {
	ledgerRepo *repository.LedgerRepository
	logger     *logger.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(ledgerRepo *repository.LedgerRepository, log *logger.Logger) *LedgerService {
	return &LedgerService{ledgerRepo: ledgerRepo, logger: log}
}

// GetEntry gets a ledger entry with its items
func (s *LedgerService) GetEntry(ctx context.Context, id string) (*repository.LedgerEntry, error) {
	return s.ledgerRepo.GetByID(ctx, id)
}

// ListEntries lists ledger entries with filtering
func (s *LedgerService) ListEntries(ctx context.Context, filter repository.LedgerFilter) ([]*repository.LedgerEntry, int64, error) {
	return s.ledgerRepo.List(ctx, filter)
}

// UpdatePayment marks an entry paid or unpaid. Every other ledger field
// is immutable once written.
func (s *LedgerService) UpdatePayment(ctx context.Context, id string, paid bool, paymentMethod *string) (*repository.LedgerEntry, error) {
	if err := s.ledgerRepo.UpdatePayment(ctx, id, paid, paymentMethod); err != nil {
		return nil, err
	}
	return s.ledgerRepo.GetByID(ctx, id)
}
