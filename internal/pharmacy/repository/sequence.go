package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pharmaflow/pharmacy-backend/pkg/database"
)

// Sequence names for ledger codes
const (
	SequenceDispense = "dispense"
	SequenceReceive  = "receive"
	SequenceAdjust   = "adjust"
)

// SequenceRepository hands out monotonic counters stored alongside the
// ledger rows they number.
type SequenceRepository struct {
	db *database.DB
}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository(db *database.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// NextTx bumps the named counter inside the caller's transaction and
// returns the new value. The upsert takes a row lock, so concurrent
// transactions serialize and committed values are strictly increasing.
func (r *SequenceRepository) NextTx(ctx context.Context, tx *sqlx.Tx, name string) (int64, error) {
	var value int64
	query := `
		INSERT INTO pharmacy_sequences (name, value)
		VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = pharmacy_sequences.value + 1
		RETURNING value
	`
	if err := tx.QueryRowxContext(ctx, query, name).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}

// FormatLedgerCode renders a sequence value as a ledger code
func FormatLedgerCode(entryType string, value int64) string {
	switch entryType {
	case EntryTypeDispense:
		return fmt.Sprintf("DSP-%06d", value)
	case EntryTypePurchaseReceive:
		return fmt.Sprintf("RCV-%06d", value)
	case EntryTypeAdjustment:
		return fmt.Sprintf("ADJ-%06d", value)
	default:
		return fmt.Sprintf("LED-%06d", value)
	}
}

// SequenceNameFor maps an entry type to its counter
func SequenceNameFor(entryType string) string {
	switch entryType {
	case EntryTypeDispense:
		return SequenceDispense
	case EntryTypePurchaseReceive:
		return SequenceReceive
	case EntryTypeAdjustment:
		return SequenceAdjust
	default:
		return "ledger"
	}
}
