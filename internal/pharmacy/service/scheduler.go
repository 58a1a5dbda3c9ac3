package service

import (
	"context"
	"time"

	"github.com/pharmaflow/pharmacy-backend/pkg/logger"
)

// AlertScheduler runs alert scans periodically in a background goroutine
type AlertScheduler struct {
	scanner     *AlertScanner
	interval    time.Duration
	scanOnStart bool
	logger      *logger.Logger
	cancel      context.CancelFunc
}

// NewAlertScheduler creates a new alert scheduler
func NewAlertScheduler(scanner *AlertScanner, interval time.Duration, scanOnStart bool, log *logger.Logger) *AlertScheduler {
	return &AlertScheduler{
		scanner:     scanner,
		interval:    interval,
		scanOnStart: scanOnStart,
		logger:      log,
	}
}

// Start starts the scheduler in a background goroutine
func (s *AlertScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		s.logger.Info().Dur("interval", s.interval).Msg("alert scheduler started")

		if s.scanOnStart {
			s.runScanCycle(ctx)
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("alert scheduler stopped")
				return
			case <-ticker.C:
				s.runScanCycle(ctx)
			}
		}
	}()
}

// Stop stops the scheduler goroutine
func (s *AlertScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *AlertScheduler) runScanCycle(ctx context.Context) {
	start := time.Now()
	s.logger.Info().Msg("starting alert scan cycle")

	if err := s.scanner.ScanAll(ctx); err != nil {
		s.logger.Error().Err(err).Msg("alert scan cycle finished with errors")
	}

	s.logger.Info().Dur("duration", time.Since(start)).Msg("alert scan cycle completed")
}
