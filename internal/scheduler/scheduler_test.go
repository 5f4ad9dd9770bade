package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mamadbah2/recordshop/internal/config"
	"github.com/mamadbah2/recordshop/internal/domain/models"
)

type countingRelay struct{ calls int }

func (r *countingRelay) Flush(context.Context) (int, error) {
	r.calls++
	return 0, errors.New("broker down")
}

type countingExporter struct {
	calls int
	at    time.Time
}

func (e *countingExporter) ExportDailySales(_ context.Context, now time.Time) (*models.SalesReport, error) {
	e.calls++
	e.at = now
	return &models.SalesReport{}, nil
}

func testConfig() config.Config {
	var cfg config.Config
	cfg.Kafka.OutboxSchedule = "@every 5s"
	cfg.Reporting.CronSchedule = "0 23 * * *"
	cfg.Reporting.Timezone = "UTC"
	return cfg
}

func TestStart_RegistersConfiguredJobs(t *testing.T) {
	tests := []struct {
		name     string
		relay    OutboxFlusher
		exporter SalesExporter
		want     int
	}{
		{name: "none", want: 0},
		{name: "relay only", relay: &countingRelay{}, want: 1},
		{name: "both", relay: &countingRelay{}, exporter: &countingExporter{}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScheduler(testConfig(), tt.relay, tt.exporter, nil)
			if err != nil {
				t.Fatalf("NewScheduler failed: %v", err)
			}
			if err := s.Start(); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			defer s.Stop()

			if got := len(s.cron.Entries()); got != tt.want {
				t.Errorf("expected %d entries, got %d", tt.want, got)
			}
		})
	}
}

func TestStart_InvalidSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Reporting.CronSchedule = "whenever"

	s, err := NewScheduler(cfg, nil, &countingExporter{}, nil)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Fatal("expected invalid schedule to be rejected")
	}
}

func TestNewScheduler_InvalidTimezone(t *testing.T) {
	cfg := testConfig()
	cfg.Reporting.Timezone = "Mars/Olympus"

	if _, err := NewScheduler(cfg, nil, nil, nil); err == nil {
		t.Fatal("expected invalid timezone to be rejected")
	}
}

func TestJobs(t *testing.T) {
	relay := &countingRelay{}
	exporter := &countingExporter{}
	s, err := NewScheduler(testConfig(), relay, exporter, nil)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	fixed := time.Date(2026, 10, 16, 23, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.flushOutbox()
	s.exportSales()

	if relay.calls != 1 {
		t.Errorf("expected relay to run once, got %d", relay.calls)
	}
	if exporter.calls != 1 || !exporter.at.Equal(fixed) {
		t.Errorf("unexpected export calls=%d at=%s", exporter.calls, exporter.at)
	}
}
