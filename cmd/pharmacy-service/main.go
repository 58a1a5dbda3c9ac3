package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/consumers"
	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/handler"
	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/pharmaflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/pharmaflow/pharmacy-backend/pkg/config"
	"github.com/pharmaflow/pharmacy-backend/pkg/database"
	"github.com/pharmaflow/pharmacy-backend/pkg/httputil"
	"github.com/pharmaflow/pharmacy-backend/pkg/logger"
	"github.com/pharmaflow/pharmacy-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("pharmacy-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("pharmacy-service", cfg.Server.Environment)
	log.Info().Msg("starting Pharmacy Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ. Outside production a missing broker is not
	// fatal; the service runs without events and the patient cache stays
	// stale until the broker comes back.
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		if cfg.Server.Environment == "production" {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		log.Warn().Err(err).Msg("RabbitMQ unavailable, continuing without events")
		rmq = nil
	}
	if rmq != nil {
		defer rmq.Close()
	}

	// Initialize event publisher
	var publisher *events.PharmacyEventPublisher
	if rmq != nil {
		publisher, err = events.NewPharmacyEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	}

	// Initialize repositories
	medicineRepo := repository.NewMedicineRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	sequenceRepo := repository.NewSequenceRepository(db)
	reportRepo := repository.NewReportRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	patientCacheRepo := repository.NewPatientCacheRepository(db)

	// Initialize services
	catalogService := service.NewCatalogService(medicineRepo, batchRepo, publisher, log)
	stockService := service.NewStockService(db, medicineRepo, batchRepo, ledgerRepo, sequenceRepo, publisher, log)
	dispenseService := service.NewDispenseService(db, medicineRepo, batchRepo, ledgerRepo, sequenceRepo, patientCacheRepo, publisher, log)
	ledgerService := service.NewLedgerService(ledgerRepo, log)
	reportService := service.NewReportService(reportRepo, batchRepo, log)
	scanner := service.NewAlertScanner(medicineRepo, batchRepo, alertRepo, publisher, cfg.Alerts.ExpiringDays, log)
	alertService := service.NewAlertService(alertRepo, scanner, log)

	// Initialize handlers
	medicineHandler := handler.NewMedicineHandler(catalogService, log)
	batchHandler := handler.NewBatchHandler(stockService, log)
	dispenseHandler := handler.NewDispenseHandler(dispenseService, log)
	ledgerHandler := handler.NewLedgerHandler(ledgerService, log)
	reportHandler := handler.NewReportHandler(reportService, log)
	alertHandler := handler.NewAlertHandler(alertService, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start patient event consumer
	if rmq != nil {
		patientConsumer, err := consumers.NewPatientEventConsumer(rmq, patientCacheRepo, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create patient event consumer")
		}
		if err := patientConsumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start patient event consumer")
		}
	}

	// Start alert scheduler
	if !cfg.Alerts.DisableScheduler {
		scheduler := service.NewAlertScheduler(scanner, cfg.Alerts.ScanInterval, cfg.Alerts.ScanOnStart, log)
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status":   "healthy",
			"service":  "pharmacy-service",
			"database": db.Health(r.Context()),
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	// API routes
	r.Route("/api/v1/pharmacy", func(r chi.Router) {
		// Medicine catalog
		r.Route("/medicines", func(r chi.Router) {
			r.Get("/", medicineHandler.List)
			r.Post("/", medicineHandler.Create)
			r.Post("/bulk-import", medicineHandler.BulkImport)
			r.Get("/categories", medicineHandler.Categories)
			r.Get("/{id}", medicineHandler.Get)
			r.Put("/{id}", medicineHandler.Update)
			r.Delete("/{id}", medicineHandler.Archive)
			r.Get("/{id}/stock", batchHandler.TotalStock)
			r.Get("/{id}/batches", batchHandler.ListByMedicine)
			r.Post("/{id}/batches", batchHandler.Receive)
		})

		// Batches
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", batchHandler.List)
			r.Get("/{id}", batchHandler.Get)
			r.Put("/{id}", batchHandler.Update)
			r.Post("/{id}/adjust", batchHandler.Adjust)
		})

		// Dispense
		r.Post("/dispense", dispenseHandler.Create)

		// Ledger
		r.Route("/ledger", func(r chi.Router) {
			r.Get("/", ledgerHandler.List)
			r.Get("/{id}", ledgerHandler.Get)
			r.Patch("/{id}/payment", ledgerHandler.UpdatePayment)
		})

		// Reports
		r.Route("/reports", func(r chi.Router) {
			r.Get("/low-stock", reportHandler.LowStock)
			r.Get("/out-of-stock", reportHandler.OutOfStock)
			r.Get("/expiring", reportHandler.Expiring)
			r.Get("/expired", reportHandler.Expired)
			r.Get("/valuation", reportHandler.Valuation)
			r.Get("/top-movers", reportHandler.TopMovers)
		})

		// Alerts
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", alertHandler.List)
			r.Get("/open-count", alertHandler.OpenCount)
			r.Post("/scan", alertHandler.Scan)
			r.Get("/{id}", alertHandler.Get)
			r.Put("/{id}/acknowledge", alertHandler.Acknowledge)
		})

		// Dashboard
		r.Get("/dashboard/stats", reportHandler.Dashboard)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers and the scheduler
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
