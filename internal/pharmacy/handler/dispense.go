package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/pharmaflow/pharmacy-backend/pkg/httputil"
	"github.com/pharmaflow/pharmacy-backend/pkg/logger"
)

// DispenseHandler handles dispense endpoints
type DispenseHandler struct {
	service *service.DispenseService
	logger  *logger.Logger
}

// NewDispenseHandler creates a new dispense handler
func NewDispenseHandler(svc *service.DispenseService, log *logger.Logger) *DispenseHandler {
	return &DispenseHandler{
		service: svc,
		logger:  log,
	}
}

type dispenseItemRequest struct {
	MedicineID string           `json:"medicine_id" validate:"required"`
	BatchID    *string          `json:"batch_id"`
	Quantity   int              `json:"quantity" validate:"required,gt=0"`
	UnitPrice  *decimal.Decimal `json:"unit_price"`
}

type dispenseRequest struct {
	Items         []dispenseItemRequest `json:"items" validate:"required,min=1,dive"`
	PatientID     *string               `json:"patient_id"`
	PatientName   string                `json:"patient_name" validate:"max=255"`
	AppointmentID *string               `json:"appointment_id"`
	Paid          bool                  `json:"paid"`
	PaymentMethod *string               `json:"payment_method"`
	Notes         string                `json:"notes" validate:"max=1000"`
	CreatedBy     string                `json:"created_by" validate:"max=255"`
}

// Create executes a dispense. The whole request commits atomically; on a
// STORAGE_UNAVAILABLE response nothing was written and the identical
// request can be retried.
func (h *DispenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dispenseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	items := make([]service.DispenseItemRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = service.DispenseItemRequest{
			MedicineID: item.MedicineID,
			BatchID:    item.BatchID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		}
	}

	entry, err := h.service.Dispense(r.Context(), &service.DispenseRequest{
		Items:         items,
		PatientID:     req.PatientID,
		PatientName:   req.PatientName,
		AppointmentID: req.AppointmentID,
		Paid:          req.Paid,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		CreatedBy:     req.CreatedBy,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, entry)
}
