package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/recordshop/internal/config"
	"github.com/mamadbah2/recordshop/internal/domain/models"
)

const (
	outboxJobTimeout = 30 * time.Second
	salesJobTimeout  = 2 * time.Minute
)

// OutboxFlusher publishes pending order events.
type OutboxFlusher interface {
	Flush(ctx context.Context) (int, error)
}

// SalesExporter writes the daily sales ledger.
type SalesExporter interface {
	ExportDailySales(ctx context.Context, now time.Time) (*models.SalesReport, error)
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	relay    OutboxFlusher
	exporter SalesExporter
	cfg      config.Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewScheduler creates a new scheduler instance. A nil relay or exporter leaves that job unscheduled.
func NewScheduler(cfg config.Config, relay OutboxFlusher, exporter SalesExporter, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc := time.Local
	if cfg.Reporting.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Reporting.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %s: %w", cfg.Reporting.Timezone, err)
		}
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		relay:    relay,
		exporter: exporter,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start registers the configured jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler")

	if s.relay != nil {
		if _, err := s.cron.AddFunc(s.cfg.Kafka.OutboxSchedule, s.flushOutbox); err != nil {
			return fmt.Errorf("schedule outbox relay %q: %w", s.cfg.Kafka.OutboxSchedule, err)
		}
	}
	if s.exporter != nil {
		if _, err := s.cron.AddFunc(s.cfg.Reporting.CronSchedule, s.exportSales); err != nil {
			return fmt.Errorf("schedule sales export %q: %w", s.cfg.Reporting.CronSchedule, err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) flushOutbox() {
	ctx, cancel := context.WithTimeout(context.Background(), outboxJobTimeout)
	defer cancel()

	if _, err := s.relay.Flush(ctx); err != nil {
		s.logger.Error("outbox relay failed", zap.Error(err))
	}
}

func (s *Scheduler) exportSales() {
	s.logger.Info("exporting daily sales")
	ctx, cancel := context.WithTimeout(context.Background(), salesJobTimeout)
	defer cancel()

	if _, err := s.exporter.ExportDailySales(ctx, s.now()); err != nil {
		s.logger.Error("failed to export daily sales", zap.Error(err))
	}
}
