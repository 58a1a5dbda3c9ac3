package events

import (
	"context"
	"testing"
	"time"

	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/repository"
)

// The service runs without RabbitMQ when messaging is not configured, so
// every publish method must be a no-op on a nil publisher.
func TestPublisher_NilReceiverIsNoOp(t *testing.T) {
	ctx := context.Background()
	var pub *PharmacyEventPublisher

	expiry := time.Now().AddDate(0, 0, 14)
	medicine := &repository.Medicine{ID: "med-1", Name: "Amoxicillin 500mg"}
	batch := &repository.MedicineBatch{
		ID:          "batch-1",
		MedicineID:  "med-1",
		BatchNumber: "AMX-2026-01",
		Quantity:    30,
		ExpiryDate:  &expiry,
	}

	pub.PublishMedicineCreated(ctx, medicine)
	pub.PublishMedicineUpdated(ctx, "med-1", map[string]any{"name": "Amoxicillin"})
	pub.PublishMedicineArchived(ctx, "med-1", false)
	pub.PublishBatchReceived(ctx, batch, "ledger-1")
	pub.PublishStockAdjusted(ctx, "med-1", "batch-1", -5, 25, "damaged", "ledger-2")
	pub.PublishBatchExpiring(ctx, medicine, batch, 14)
	pub.PublishAlertGenerated(ctx, &repository.StockAlert{ID: "alert-1"})
}
