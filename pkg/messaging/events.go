package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// Pharmacy events
	EventMedicineCreated   = "pharmacy.medicine.created"
	EventMedicineUpdated   = "pharmacy.medicine.updated"
	EventMedicineArchived  = "pharmacy.medicine.archived"
	EventBatchReceived     = "pharmacy.batch.received"
	EventStockAdjusted     = "pharmacy.stock.adjusted"
	EventDispenseCompleted = "pharmacy.dispense.completed"
	EventBatchExpiring     = "pharmacy.batch.expiring"
	EventAlertGenerated    = "pharmacy.alert.generated"

	// Patient events (consumed from the patient service)
	EventPatientCreated = "patient.created"
	EventPatientUpdated = "patient.updated"
	EventPatientDeleted = "patient.deleted"
)

// Exchange names
const (
	ExchangePharmacyEvents = "pharmacy.events"
	ExchangePatientEvents  = "patient.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Pharmacy Events

// MedicineCreatedEvent is published when a medicine is added to the catalog
type MedicineCreatedEvent struct {
	MedicineID string `json:"medicine_id"`
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	Category   string `json:"category"`
}

// MedicineUpdatedEvent is published when catalog fields change
type MedicineUpdatedEvent struct {
	MedicineID string         `json:"medicine_id"`
	Fields     map[string]any `json:"fields"` // Changed fields
}

// MedicineArchivedEvent is published when a medicine is archived or deleted
type MedicineArchivedEvent struct {
	MedicineID string `json:"medicine_id"`
	Deleted    bool   `json:"deleted"`
}

// BatchReceivedEvent is published when new stock arrives
type BatchReceivedEvent struct {
	MedicineID  string     `json:"medicine_id"`
	BatchID     string     `json:"batch_id"`
	BatchNumber string     `json:"batch_number"`
	Quantity    int        `json:"quantity"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	LedgerID    string     `json:"ledger_id"`
}

// StockAdjustedEvent is published on a manual batch quantity adjustment
type StockAdjustedEvent struct {
	MedicineID  string `json:"medicine_id"`
	BatchID     string `json:"batch_id"`
	Adjustment  int    `json:"adjustment"`
	NewQuantity int    `json:"new_quantity"`
	Reason      string `json:"reason"`
	LedgerID    string `json:"ledger_id"`
}

// DispenseCompletedEvent is published after a dispense transaction commits
type DispenseCompletedEvent struct {
	LedgerID    string              `json:"ledger_id"`
	LedgerCode  string              `json:"ledger_code"`
	PatientID   *string             `json:"patient_id,omitempty"`
	PatientName string              `json:"patient_name"`
	TotalAmount string              `json:"total_amount"`
	Items       []DispensedItemData `json:"items"`
}

// DispensedItemData describes one line of a completed dispense
type DispensedItemData struct {
	MedicineID string `json:"medicine_id"`
	BatchID    string `json:"batch_id"`
	Quantity   int    `json:"quantity"`
}

// BatchExpiringEvent is published when a batch is nearing expiry
type BatchExpiringEvent struct {
	MedicineID   string    `json:"medicine_id"`
	BatchID      string    `json:"batch_id"`
	MedicineName string    `json:"medicine_name"`
	BatchNumber  string    `json:"batch_number"`
	ExpiryDate   time.Time `json:"expiry_date"`
	DaysUntil    int       `json:"days_until"`
	Quantity     int       `json:"quantity"`
}

// AlertGeneratedEvent is published when a stock alert is generated
type AlertGeneratedEvent struct {
	AlertID    string `json:"alert_id"`
	AlertType  string `json:"alert_type"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	MedicineID string `json:"medicine_id,omitempty"`
	BatchID    string `json:"batch_id,omitempty"`
}

// Patient Events

// PatientCreatedEvent is consumed when the patient service registers a patient
type PatientCreatedEvent struct {
	PatientID string `json:"patient_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
}

// FullName returns the patient's full name
func (e *PatientCreatedEvent) FullName() string {
	return e.FirstName + " " + e.LastName
}

// PatientUpdatedEvent is consumed when patient demographics change
type PatientUpdatedEvent struct {
	PatientID string `json:"patient_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
}

// PatientDeletedEvent is consumed when a patient record is removed
type PatientDeletedEvent struct {
	PatientID string `json:"patient_id"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
