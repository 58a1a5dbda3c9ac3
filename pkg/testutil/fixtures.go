package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// MedicineFixture represents test medicine catalog data
type MedicineFixture struct {
	ID           string
	Name         string
	GenericName  string
	SKU          *string
	Form         string
	Strength     string
	Unit         string
	Manufacturer string
	Brand        string
	Category     string
	ReorderLevel int
	TaxPercent   *decimal.Decimal
	CreatedAt    time.Time
}

// BatchFixture represents test batch data
type BatchFixture struct {
	ID            string
	MedicineID    string
	BatchNumber   string
	ExpiryDate    *time.Time
	Quantity      int
	PurchasePrice decimal.Decimal
	SalePrice     decimal.Decimal
	Supplier      string
	CreatedAt     time.Time
}

// PatientRefFixture represents test cached patient data
type PatientRefFixture struct {
	PatientID string
	FullName  string
	Phone     string
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Medicine creates a medicine fixture with defaults
func (f *FixtureFactory) Medicine(opts ...func(*MedicineFixture)) MedicineFixture {
	seq := f.nextSeq()
	sku := fmt.Sprintf("MED-%04d", seq)

	m := MedicineFixture{
		ID:           uuid.New().String(),
		Name:         fmt.Sprintf("Test Medicine %d", seq),
		GenericName:  fmt.Sprintf("generic-%d", seq),
		SKU:          &sku,
		Form:         "tablet",
		Strength:     "500mg",
		Unit:         "strip",
		Manufacturer: "Test Pharma",
		Category:     "Analgesic",
		ReorderLevel: 20,
		CreatedAt:    time.Now(),
	}

	for _, opt := range opts {
		opt(&m)
	}

	return m
}

// WithSKU sets the medicine SKU. Pass empty to clear it.
func WithSKU(sku string) func(*MedicineFixture) {
	return func(m *MedicineFixture) {
		if sku == "" {
			m.SKU = nil
			return
		}
		m.SKU = &sku
	}
}

// WithReorderLevel sets the reorder level
func WithReorderLevel(level int) func(*MedicineFixture) {
	return func(m *MedicineFixture) {
		m.ReorderLevel = level
	}
}

// WithTaxPercent sets the tax percentage
func WithTaxPercent(pct string) func(*MedicineFixture) {
	return func(m *MedicineFixture) {
		d := decimal.RequireFromString(pct)
		m.TaxPercent = &d
	}
}

// WithCategory sets the medicine category
func WithCategory(category string) func(*MedicineFixture) {
	return func(m *MedicineFixture) {
		m.Category = category
	}
}

// Batch creates a batch fixture with defaults. The batch expires in a
// year and holds 100 units.
func (f *FixtureFactory) Batch(medicineID string, opts ...func(*BatchFixture)) BatchFixture {
	seq := f.nextSeq()
	expiry := time.Now().AddDate(1, 0, 0)

	b := BatchFixture{
		ID:            uuid.New().String(),
		MedicineID:    medicineID,
		BatchNumber:   fmt.Sprintf("LOT-%04d", seq),
		ExpiryDate:    &expiry,
		Quantity:      100,
		PurchasePrice: decimal.NewFromInt(5),
		SalePrice:     decimal.NewFromInt(8),
		Supplier:      "Test Supplier",
		CreatedAt:     time.Now(),
	}

	for _, opt := range opts {
		opt(&b)
	}

	return b
}

// WithQuantity sets the batch quantity
func WithQuantity(qty int) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.Quantity = qty
	}
}

// WithExpiry sets the batch expiry date. Pass zero time to clear it.
func WithExpiry(t time.Time) func(*BatchFixture) {
	return func(b *BatchFixture) {
		if t.IsZero() {
			b.ExpiryDate = nil
			return
		}
		b.ExpiryDate = &t
	}
}

// WithExpiryIn sets the expiry a number of days from now
func WithExpiryIn(days int) func(*BatchFixture) {
	return func(b *BatchFixture) {
		t := time.Now().AddDate(0, 0, days)
		b.ExpiryDate = &t
	}
}

// WithSalePrice sets the batch sale price
func WithSalePrice(price string) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.SalePrice = decimal.RequireFromString(price)
	}
}

// PatientRef creates a patient reference fixture
func (f *FixtureFactory) PatientRef(opts ...func(*PatientRefFixture)) PatientRefFixture {
	seq := f.nextSeq()

	p := PatientRefFixture{
		PatientID: uuid.New().String(),
		FullName:  fmt.Sprintf("Test Patient %d", seq),
		Phone:     fmt.Sprintf("+49 170 %07d", seq),
	}

	for _, opt := range opts {
		opt(&p)
	}

	return p
}

// InsertMedicine writes a medicine fixture straight to the database
func InsertMedicine(ctx context.Context, db *sqlx.DB, m MedicineFixture) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO medicines (
			id, name, generic_name, sku, form, strength, unit,
			manufacturer, brand, category, reorder_level, tax_percent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		m.ID, m.Name, m.GenericName, m.SKU, m.Form, m.Strength, m.Unit,
		m.Manufacturer, m.Brand, m.Category, m.ReorderLevel, m.TaxPercent,
	)
	return err
}

// InsertBatch writes a batch fixture straight to the database
func InsertBatch(ctx context.Context, db *sqlx.DB, b BatchFixture) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO medicine_batches (
			id, medicine_id, batch_number, expiry_date, quantity,
			purchase_price, sale_price, supplier
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.MedicineID, b.BatchNumber, b.ExpiryDate, b.Quantity,
		b.PurchasePrice, b.SalePrice, b.Supplier,
	)
	return err
}

// InsertPatientRef writes a patient reference fixture straight to the database
func InsertPatientRef(ctx context.Context, db *sqlx.DB, p PatientRefFixture) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO patient_refs (patient_id, full_name, phone)
		VALUES ($1, $2, $3)
		ON CONFLICT (patient_id) DO UPDATE SET full_name = $2, phone = $3`,
		p.PatientID, p.FullName, p.Phone,
	)
	return err
}
