package events

import (
	"context"

	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmaflow/pharmacy-backend/pkg/logger"
	"github.com/pharmaflow/pharmacy-backend/pkg/messaging"
)

// PharmacyEventPublisher publishes pharmacy events. All publishes happen
// after the owning transaction commits and are best effort; a publish
// failure never undoes a committed stock movement.
type PharmacyEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewPharmacyEventPublisher creates a new pharmacy event publisher
func NewPharmacyEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*PharmacyEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePharmacyEvents, "pharmacy-service", log)
	if err != nil {
		return nil, err
	}

	return &PharmacyEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishMedicineCreated publishes a medicine created event
func (p *PharmacyEventPublisher) PublishMedicineCreated(ctx context.Context, m *repository.Medicine) {
	if p == nil {
		return
	}
	sku := ""
	if m.SKU != nil {
		sku = *m.SKU
	}

	data := messaging.MedicineCreatedEvent{
		MedicineID: m.ID,
		Name:       m.Name,
		SKU:        sku,
		Category:   m.Category,
	}

	if err := p.publisher.Publish(ctx, messaging.EventMedicineCreated, data); err != nil {
		p.logger.Error().Err(err).Str("medicine_id", m.ID).Msg("failed to publish medicine created event")
	}
}

// PublishMedicineUpdated publishes a medicine updated event
func (p *PharmacyEventPublisher) PublishMedicineUpdated(ctx context.Context, medicineID string, fields map[string]any) {
	if p == nil {
		return
	}

	data := messaging.MedicineUpdatedEvent{
		MedicineID: medicineID,
		Fields:     fields,
	}

	if err := p.publisher.Publish(ctx, messaging.EventMedicineUpdated, data); err != nil {
		p.logger.Error().Err(err).Str("medicine_id", medicineID).Msg("failed to publish medicine updated event")
	}
}

// PublishMedicineArchived publishes a medicine archived event
func (p *PharmacyEventPublisher) PublishMedicineArchived(ctx context.Context, medicineID string, deleted bool) {
	if p == nil {
		return
	}

	data := messaging.MedicineArchivedEvent{
		MedicineID: medicineID,
		Deleted:    deleted,
	}

	if err := p.publisher.Publish(ctx, messaging.EventMedicineArchived, data); err != nil {
		p.logger.Error().Err(err).Str("medicine_id", medicineID).Msg("failed to publish medicine archived event")
	}
}

// PublishBatchReceived publishes a batch received event
func (p *PharmacyEventPublisher) PublishBatchReceived(ctx context.Context, batch *repository.MedicineBatch, ledgerID string) {
	if p == nil {
		return
	}

	data := messaging.BatchReceivedEvent{
		MedicineID:  batch.MedicineID,
		BatchID:     batch.ID,
		BatchNumber: batch.BatchNumber,
		Quantity:    batch.Quantity,
		ExpiryDate:  batch.ExpiryDate,
		LedgerID:    ledgerID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchReceived, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to publish batch received event")
	}
}

// PublishStockAdjusted publishes a stock adjusted event
func (p *PharmacyEventPublisher) PublishStockAdjusted(ctx context.Context, medicineID, batchID string, adjustment, newQuantity int, reason, ledgerID string) {
	if p == nil {
		return
	}

	data := messaging.StockAdjustedEvent{
		MedicineID:  medicineID,
		BatchID:     batchID,
		Adjustment:  adjustment,
		NewQuantity: newQuantity,
		Reason:      reason,
		LedgerID:    ledgerID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockAdjusted, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batchID).Msg("failed to publish stock adjusted event")
	}
}

// PublishDispenseCompleted publishes a dispense completed event
func (p *PharmacyEventPublisher) PublishDispenseCompleted(ctx context.Context, entry *repository.LedgerEntry) {
	if p == nil {
		return
	}

	items := make([]messaging.DispensedItemData, 0, len(entry.Items))
	for _, item := range entry.Items {
		items = append(items, messaging.DispensedItemData{
			MedicineID: item.MedicineID,
			BatchID:    item.BatchID,
			Quantity:   item.Quantity,
		})
	}

	data := messaging.DispenseCompletedEvent{
		LedgerID:    entry.ID,
		LedgerCode:  entry.Code,
		PatientID:   entry.PatientID,
		PatientName: entry.PatientName,
		TotalAmount: entry.Total.String(),
		Items:       items,
	}

	if err := p.publisher.Publish(ctx, messaging.EventDispenseCompleted, data); err != nil {
		p.logger.Error().Err(err).Str("ledger_id", entry.ID).Msg("failed to publish dispense completed event")
	}
}

// PublishAlertGenerated publishes an alert generated event
func (p *PharmacyEventPublisher) PublishAlertGenerated(ctx context.Context, alert *repository.StockAlert) {
	if p == nil {
		return
	}
	batchID := ""
	if alert.BatchID != nil {
		batchID = *alert.BatchID
	}

	data := messaging.AlertGeneratedEvent{
		AlertID:    alert.ID,
		AlertType:  alert.AlertType,
		Severity:   alert.Severity,
		Message:    alert.Message,
		MedicineID: alert.MedicineID,
		BatchID:    batchID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventAlertGenerated, data); err != nil {
		p.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to publish alert generated event")
	}
}

// PublishBatchExpiring publishes a batch expiring event
func (p *PharmacyEventPublisher) PublishBatchExpiring(ctx context.Context, medicine *repository.Medicine, batch *repository.MedicineBatch, daysUntil int) {
	if p == nil || batch.ExpiryDate == nil {
		return
	}

	data := messaging.BatchExpiringEvent{
		MedicineID:   medicine.ID,
		BatchID:      batch.ID,
		MedicineName: medicine.Name,
		BatchNumber:  batch.BatchNumber,
		ExpiryDate:   *batch.ExpiryDate,
		DaysUntil:    daysUntil,
		Quantity:     batch.Quantity,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchExpiring, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to publish batch expiring event")
	}
}
