package consumers

import (
	"context"

	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmaflow/pharmacy-backend/pkg/logger"
	"github.com/pharmaflow/pharmacy-backend/pkg/messaging"
)

// PatientEventConsumer keeps the local patient reference cache in sync
// with the patient service. Dispenses validate patient IDs against this
// cache, so it only stores what the ledger needs.
type PatientEventConsumer struct {
	consumer         *messaging.Consumer
	patientCacheRepo *repository.PatientCacheRepository
	logger           *logger.Logger
}

// NewPatientEventConsumer creates a new patient event consumer
func NewPatientEventConsumer(rmq *messaging.RabbitMQ, patientCacheRepo *repository.PatientCacheRepository, log *logger.Logger) (*PatientEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "pharmacy-service.patient-events", log)
	if err != nil {
		return nil, err
	}

	// Subscribe to patient events
	if err := consumer.Subscribe(messaging.ExchangePatientEvents, "patient.#"); err != nil {
		return nil, err
	}

	c := &PatientEventConsumer{
		consumer:         consumer,
		patientCacheRepo: patientCacheRepo,
		logger:           log,
	}

	// Register handlers
	consumer.RegisterHandler(messaging.EventPatientCreated, c.handlePatientCreated)
	consumer.RegisterHandler(messaging.EventPatientUpdated, c.handlePatientUpdated)
	consumer.RegisterHandler(messaging.EventPatientDeleted, c.handlePatientDeleted)

	return c, nil
}

// Start starts consuming messages
func (c *PatientEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *PatientEventConsumer) handlePatientCreated(ctx context.Context, event *messaging.Event) error {
	var data messaging.PatientCreatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("patient_id", data.PatientID).
		Msg("received patient created event")

	return c.patientCacheRepo.Set(ctx, &repository.PatientRef{
		PatientID: data.PatientID,
		FullName:  data.FullName(),
		Phone:     data.Phone,
	})
}

func (c *PatientEventConsumer) handlePatientUpdated(ctx context.Context, event *messaging.Event) error {
	var data messaging.PatientUpdatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("patient_id", data.PatientID).
		Msg("received patient updated event")

	return c.patientCacheRepo.Set(ctx, &repository.PatientRef{
		PatientID: data.PatientID,
		FullName:  data.FirstName + " " + data.LastName,
		Phone:     data.Phone,
	})
}

func (c *PatientEventConsumer) handlePatientDeleted(ctx context.Context, event *messaging.Event) error {
	var data messaging.PatientDeletedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("patient_id", data.PatientID).
		Msg("received patient deleted event")

	return c.patientCacheRepo.Delete(ctx, data.PatientID)
}
