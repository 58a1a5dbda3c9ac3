package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/pharmaflow/pharmacy-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return mapUniqueConstraint(pqErr)

	// Foreign key violation (23503)
	case "23503":
		return mapForeignKey(pqErr)

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_non_negative"):
		return errors.InsufficientStock("batch quantity would go below zero")

	case strings.Contains(constraint, "price_non_negative"):
		return errors.Validation(map[string]string{
			"price": "must not be negative",
		})

	case strings.Contains(constraint, "entry_type_valid"):
		return errors.Validation(map[string]string{
			"entry_type": "must be one of: Dispense, PurchaseReceive, Adjustment",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// mapUniqueConstraint maps unique violations to domain errors.
func mapUniqueConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "sku"):
		return errors.DuplicateSKU(pqErr.Detail)
	case strings.Contains(constraint, "ledger_code"):
		return errors.Conflict("a ledger entry with this code already exists")
	default:
		return errors.Conflict("a record with these values already exists")
	}
}

// mapForeignKey maps FK violations. A delete blocked by dependents maps to
// a conflict the caller can act on; a bad reference on insert is a 400.
func mapForeignKey(pqErr *pq.Error) *errors.AppError {
	if strings.Contains(pqErr.Message, "is still referenced") ||
		strings.Contains(pqErr.Constraint, "medicine_id") && strings.Contains(pqErr.Message, "update or delete") {
		return errors.HasDependentRecords("record is referenced by batches or ledger entries")
	}
	return errors.BadRequest("referenced record does not exist")
}
