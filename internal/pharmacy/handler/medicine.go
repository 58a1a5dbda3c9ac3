package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/pharmaflow/pharmacy-backend/pkg/httputil"
	"github.com/pharmaflow/pharmacy-backend/pkg/logger"
)

// MedicineHandler handles medicine catalog endpoints
type MedicineHandler struct {
	service *service.CatalogService
	logger  *logger.Logger
}

// NewMedicineHandler creates a new medicine handler
func NewMedicineHandler(svc *service.CatalogService, log *logger.Logger) *MedicineHandler {
	return &MedicineHandler{
		service: svc,
		logger:  log,
	}
}

// medicineRequest carries catalog fields only. Stock is never writable
// through the catalog; it moves through batches and the ledger.
type medicineRequest struct {
	Name         string           `json:"name" validate:"required,max=255"`
	GenericName  string           `json:"generic_name" validate:"max=255"`
	SKU          *string          `json:"sku"`
	Form         string           `json:"form" validate:"max=100"`
	Strength     string           `json:"strength" validate:"max=100"`
	Unit         string           `json:"unit" validate:"max=50"`
	Manufacturer string           `json:"manufacturer" validate:"max=255"`
	Brand        string           `json:"brand" validate:"max=255"`
	Category     string           `json:"category" validate:"max=100"`
	Description  string           `json:"description"`
	ReorderLevel int              `json:"reorder_level" validate:"gte=0"`
	TaxPercent   *decimal.Decimal `json:"tax_percent"`
}

func (req *medicineRequest) toMedicine() *repository.Medicine {
	return &repository.Medicine{
		Name:         req.Name,
		GenericName:  req.GenericName,
		SKU:          req.SKU,
		Form:         req.Form,
		Strength:     req.Strength,
		Unit:         req.Unit,
		Manufacturer: req.Manufacturer,
		Brand:        req.Brand,
		Category:     req.Category,
		Description:  req.Description,
		ReorderLevel: req.ReorderLevel,
		TaxPercent:   req.TaxPercent,
	}
}

// List lists medicines with stock enrichment
func (h *MedicineHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	filter := repository.MedicineFilter{
		Search:   r.URL.Query().Get("search"),
		Category: r.URL.Query().Get("category"),
		LowStock: r.URL.Query().Get("low_stock") == "true",
		Page:     page,
		PerPage:  perPage,
	}

	medicines, total, err := h.service.ListMedicines(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	httputil.JSONWithMeta(w, http.StatusOK, medicines, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// Get gets a medicine by ID
func (h *MedicineHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	medicine, err := h.service.GetMedicine(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, medicine)
}

// Create creates a new medicine
func (h *MedicineHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req medicineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	medicine := req.toMedicine()
	if err := h.service.CreateMedicine(r.Context(), medicine); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, medicine)
}

// Update updates catalog fields of a medicine
func (h *MedicineHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req medicineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	medicine := req.toMedicine()
	medicine.ID = id
	if err := h.service.UpdateMedicine(r.Context(), medicine); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, medicine)
}

// Archive archives a medicine
func (h *MedicineHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.ArchiveMedicine(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// BulkImport creates medicines from a list, skipping duplicates
func (h *MedicineHandler) BulkImport(w http.ResponseWriter, r *http.Request) {
	var reqs []medicineRequest
	if err := httputil.DecodeJSON(r, &reqs); err != nil {
		httputil.Error(w, err)
		return
	}

	medicines := make([]*repository.Medicine, len(reqs))
	for i := range reqs {
		medicines[i] = reqs[i].toMedicine()
	}

	result, err := h.service.BulkImportMedicines(r.Context(), medicines)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Categories lists distinct catalog categories
func (h *MedicineHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, categories)
}
