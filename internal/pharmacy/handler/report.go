package handler

import (
	"net/http"
	"strconv"

	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/pharmaflow/pharmacy-backend/pkg/httputil"
	"github.com/pharmaflow/pharmacy-backend/pkg/logger"
)

// ReportHandler handles read-only report endpoints
type ReportHandler struct {
	service *service.ReportService
	logger  *logger.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(svc *service.ReportService, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		service: svc,
		logger:  log,
	}
}

// LowStock lists medicines below their reorder level
func (h *ReportHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.LowStock(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rows)
}

// OutOfStock lists medicines with zero stock
func (h *ReportHandler) OutOfStock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.OutOfStock(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rows)
}

// Expiring lists batches expiring within the window (default 30 days)
func (h *ReportHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	batches, err := h.service.ExpiringBatches(r.Context(), days)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// Expired lists batches past expiry that still hold stock
func (h *ReportHandler) Expired(w http.ResponseWriter, r *http.Request) {
	batches, err := h.service.ExpiredBatches(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// Valuation totals stock at purchase price
func (h *ReportHandler) Valuation(w http.ResponseWriter, r *http.Request) {
	rows, grandTotal, err := h.service.Valuation(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"rows":        rows,
		"grand_total": grandTotal,
	})
}

// TopMovers ranks medicines by dispensed quantity
func (h *ReportHandler) TopMovers(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := h.service.TopMovers(r.Context(), days, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rows)
}

// Dashboard aggregates the headline stats
func (h *ReportHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("expiring_days"))

	stats, err := h.service.Dashboard(r.Context(), days)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}
