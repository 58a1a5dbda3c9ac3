package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/pharmaflow/pharmacy-backend/pkg/httputil"
	"github.com/pharmaflow/pharmacy-backend/pkg/logger"
)

// BatchHandler handles batch endpoints
type BatchHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(svc *service.StockService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		service: svc,
		logger:  log,
	}
}

type receiveBatchRequest struct {
	BatchNumber   string          `json:"batch_number" validate:"max=100"`
	ExpiryDate    *time.Time      `json:"expiry_date"`
	Quantity      int             `json:"quantity" validate:"gte=0"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Supplier      string          `json:"supplier" validate:"max=255"`
	Location      string          `json:"location" validate:"max=255"`
	CreatedBy     string          `json:"created_by" validate:"max=255"`
}

// Receive records an incoming batch for a medicine
func (h *BatchHandler) Receive(w http.ResponseWriter, r *http.Request) {
	medicineID := chi.URLParam(r, "id")

	var req receiveBatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch := &repository.MedicineBatch{
		MedicineID:    medicineID,
		BatchNumber:   req.BatchNumber,
		ExpiryDate:    req.ExpiryDate,
		Quantity:      req.Quantity,
		PurchasePrice: req.PurchasePrice,
		SalePrice:     req.SalePrice,
		Supplier:      req.Supplier,
		Location:      req.Location,
	}

	entry, err := h.service.ReceiveBatch(r.Context(), batch, req.CreatedBy)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, map[string]interface{}{
		"batch":        batch,
		"ledger_entry": entry,
	})
}

// ListByMedicine lists a medicine's batches, first-expiring first
func (h *BatchHandler) ListByMedicine(w http.ResponseWriter, r *http.Request) {
	medicineID := chi.URLParam(r, "id")

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	filter := repository.BatchFilter{
		MedicineID:  medicineID,
		InStockOnly: r.URL.Query().Get("in_stock") == "true",
		Page:        page,
		PerPage:     perPage,
	}

	batches, total, err := h.service.ListBatches(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	httputil.JSONWithMeta(w, http.StatusOK, batches, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// List lists batches across medicines
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	filter := repository.BatchFilter{
		MedicineID:  r.URL.Query().Get("medicine_id"),
		InStockOnly: r.URL.Query().Get("in_stock") == "true",
		Page:        page,
		PerPage:     perPage,
	}

	if v := r.URL.Query().Get("expiry_before"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filter.ExpiryBefore = &t
		}
	}
	if v := r.URL.Query().Get("expiry_after"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filter.ExpiryAfter = &t
		}
	}

	batches, total, err := h.service.ListBatches(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	httputil.JSONWithMeta(w, http.StatusOK, batches, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// Get gets a batch by ID
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	batch, err := h.service.GetBatch(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

type updateBatchRequest struct {
	BatchNumber   string          `json:"batch_number" validate:"max=100"`
	ExpiryDate    *time.Time      `json:"expiry_date"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Supplier      string          `json:"supplier" validate:"max=255"`
	Location      string          `json:"location" validate:"max=255"`
}

// Update updates batch metadata. Quantity moves only through receive,
// adjust and dispense.
func (h *BatchHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateBatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch := &repository.MedicineBatch{
		ID:            id,
		BatchNumber:   req.BatchNumber,
		ExpiryDate:    req.ExpiryDate,
		PurchasePrice: req.PurchasePrice,
		SalePrice:     req.SalePrice,
		Supplier:      req.Supplier,
		Location:      req.Location,
	}

	if err := h.service.UpdateBatch(r.Context(), batch); err != nil {
		httputil.Error(w, err)
		return
	}

	updated, err := h.service.GetBatch(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, updated)
}

type adjustBatchRequest struct {
	Delta     int    `json:"delta" validate:"required"`
	Reason    string `json:"reason" validate:"required,max=500"`
	CreatedBy string `json:"created_by" validate:"max=255"`
}

// Adjust applies a signed quantity correction to a batch
func (h *BatchHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req adjustBatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	entry, err := h.service.AdjustBatchQuantity(r.Context(), id, req.Delta, req.Reason, req.CreatedBy)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, entry)
}

// TotalStock returns the summed stock for a medicine
func (h *BatchHandler) TotalStock(w http.ResponseWriter, r *http.Request) {
	medicineID := chi.URLParam(r, "id")

	total, err := h.service.TotalStock(r.Context(), medicineID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]int{"total_stock": total})
}
