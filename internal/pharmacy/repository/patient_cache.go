package repository

import (
	"context"
	"database/sql"

	"github.com/pharmaflow/pharmacy-backend/pkg/database"
)

// PatientRef is a cached reference to a patient owned by the patient
// service. The dispense path only needs existence and a display name.
type PatientRef struct {
	PatientID string `db:"patient_id" json:"patient_id"`
	FullName  string `db:"full_name" json:"full_name"`
	Phone     string `db:"phone" json:"phone,omitempty"`
}

// PatientCacheRepository maintains the patient reference cache fed by the
// patient events consumer
type PatientCacheRepository struct {
	db *database.DB
}

// NewPatientCacheRepository creates a new patient cache repository
func NewPatientCacheRepository(db *database.DB) *PatientCacheRepository {
	return &PatientCacheRepository{db: db}
}

// Set creates or updates a patient reference
func (r *PatientCacheRepository) Set(ctx context.Context, ref *PatientRef) error {
	query := `
		INSERT INTO patient_refs (patient_id, full_name, phone, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (patient_id)
		DO UPDATE SET full_name = $2, phone = $3, updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, ref.PatientID, ref.FullName, ref.Phone)
	return err
}

// Get gets a patient reference by ID, nil when unknown
func (r *PatientCacheRepository) Get(ctx context.Context, patientID string) (*PatientRef, error) {
	var ref PatientRef
	query := `SELECT patient_id, full_name, phone FROM patient_refs WHERE patient_id = $1`
	if err := r.db.GetContext(ctx, &ref, query, patientID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &ref, nil
}

// Delete deletes a patient reference
func (r *PatientCacheRepository) Delete(ctx context.Context, patientID string) error {
	query := `DELETE FROM patient_refs WHERE patient_id = $1`
	_, err := r.db.ExecContext(ctx, query, patientID)
	return err
}
