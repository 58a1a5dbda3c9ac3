package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmaflow/pharmacy-backend/pkg/logger"
)

func TestEnrichMedicine_DerivedStatus(t *testing.T) {
	svc := NewCatalogService(nil, nil, nil, logger.New("test", "test"))
	now := time.Now()

	medicine := func(reorder int) *repository.Medicine {
		return &repository.Medicine{ID: "m1", Name: "Paracetamol", ReorderLevel: reorder}
	}
	batch := func(qty int, expiry *time.Time) *repository.MedicineBatch {
		return &repository.MedicineBatch{MedicineID: "m1", Quantity: qty, ExpiryDate: expiry}
	}

	tests := []struct {
		name       string
		medicine   *repository.Medicine
		batches    []*repository.MedicineBatch
		wantStatus string
		wantStock  int
	}{
		{
			name:       "no batches is out of stock",
			medicine:   medicine(20),
			batches:    nil,
			wantStatus: repository.StatusOutOfStock,
			wantStock:  0,
		},
		{
			name:       "only drained batches is out of stock",
			medicine:   medicine(20),
			batches:    []*repository.MedicineBatch{batch(0, datePtr(now.AddDate(1, 0, 0)))},
			wantStatus: repository.StatusOutOfStock,
			wantStock:  0,
		},
		{
			name:       "below reorder level is low stock",
			medicine:   medicine(20),
			batches:    []*repository.MedicineBatch{batch(19, datePtr(now.AddDate(1, 0, 0)))},
			wantStatus: repository.StatusLowStock,
			wantStock:  19,
		},
		{
			name:       "at reorder level is in stock",
			medicine:   medicine(20),
			batches:    []*repository.MedicineBatch{batch(20, datePtr(now.AddDate(1, 0, 0)))},
			wantStatus: repository.StatusInStock,
			wantStock:  20,
		},
		{
			name:       "expiry within thirty days flags expiring",
			medicine:   medicine(20),
			batches:    []*repository.MedicineBatch{batch(100, datePtr(now.AddDate(0, 0, 14)))},
			wantStatus: repository.StatusExpiring,
			wantStock:  100,
		},
		{
			name:     "low stock wins over expiring",
			medicine: medicine(20),
			batches: []*repository.MedicineBatch{
				batch(5, datePtr(now.AddDate(0, 0, 7))),
			},
			wantStatus: repository.StatusLowStock,
			wantStock:  5,
		},
		{
			name:       "no expiry date is plain in stock",
			medicine:   medicine(20),
			batches:    []*repository.MedicineBatch{batch(100, nil)},
			wantStatus: repository.StatusInStock,
			wantStock:  100,
		},
		{
			name:     "stock sums across batches",
			medicine: medicine(20),
			batches: []*repository.MedicineBatch{
				batch(10, datePtr(now.AddDate(1, 0, 0))),
				batch(15, datePtr(now.AddDate(2, 0, 0))),
			},
			wantStatus: repository.StatusInStock,
			wantStock:  25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.enrichMedicine(tt.medicine, tt.batches)
			assert.Equal(t, tt.wantStatus, got.DerivedStatus)
			assert.Equal(t, tt.wantStock, got.TotalStock)
		})
	}
}

func TestEnrichMedicine_NearestExpiry(t *testing.T) {
	svc := NewCatalogService(nil, nil, nil, logger.New("test", "test"))
	now := time.Now()

	soon := now.AddDate(0, 2, 0)
	later := now.AddDate(1, 0, 0)
	drained := now.AddDate(0, 0, 3)

	got := svc.enrichMedicine(
		&repository.Medicine{ID: "m1", ReorderLevel: 20},
		[]*repository.MedicineBatch{
			{Quantity: 50, ExpiryDate: &later},
			{Quantity: 0, ExpiryDate: &drained}, // empty batches don't count
			{Quantity: 30, ExpiryDate: &soon},
			{Quantity: 10, ExpiryDate: nil},
		},
	)

	require.NotNil(t, got.NearestExpiry)
	assert.True(t, got.NearestExpiry.Equal(soon))
	assert.Equal(t, 90, got.TotalStock)
}
