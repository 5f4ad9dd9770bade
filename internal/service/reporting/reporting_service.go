package reporting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/mamadbah2/recordshop/internal/domain/models"
	repo "github.com/mamadbah2/recordshop/internal/repository/sheets"
)

const (
	dateLayout      = "2006-01-02"
	salesDataRange  = "Sales!A:F"
	salesDateColumn = "Sales!A:A"
	totalLabel      = "TOTAL"
	reportPeriod    = 24 * time.Hour
)

// SalesStore aggregates confirmed orders.
type SalesStore interface {
	SalesBetween(ctx context.Context, from, to time.Time) ([]models.RecordSales, error)
}

// RecordLookup resolves record titles for report lines.
type RecordLookup interface {
	FindRecordByID(ctx context.Context, id primitive.ObjectID) (*models.Record, error)
}

// Service exports the daily sales ledger to the spreadsheet.
type Service struct {
	sales   SalesStore
	records RecordLookup
	repo    repo.Repository
	logger  *zap.Logger
}

// NewService wires a new reporting service instance.
func NewService(sales SalesStore, records RecordLookup, repository repo.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{sales: sales, records: records, repo: repository, logger: logger}
}

// BuildSalesReport aggregates confirmed orders created in [from, to).
func (s *Service) BuildSalesReport(ctx context.Context, from, to time.Time) (*models.SalesReport, error) {
	lines, err := s.sales.SalesBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load sales: %w", err)
	}

	report := &models.SalesReport{From: from, To: to, Lines: lines}
	revenue := decimal.Zero
	for _, line := range lines {
		report.Orders += line.Orders
		report.Units += line.Units
		revenue = revenue.Add(decimal.NewFromFloat(line.Revenue))
	}
	report.Revenue = revenue.Round(2).InexactFloat64()
	return report, nil
}

// ExportDailySales writes the sales of the 24 hours before now to the Sales tab.
// A day that already has rows in the sheet is not exported twice.
func (s *Service) ExportDailySales(ctx context.Context, now time.Time) (*models.SalesReport, error) {
	to := now
	from := to.Add(-reportPeriod)
	day := from.Format(dateLayout)

	exported, err := s.alreadyExported(ctx, day)
	if err != nil {
		return nil, err
	}
	if exported {
		s.logger.Info("sales already exported, skipping", zap.String("date", day))
		return nil, nil
	}

	report, err := s.BuildSalesReport(ctx, from, to)
	if err != nil {
		return nil, err
	}

	if err := s.repo.AppendRows(ctx, salesDataRange, s.rows(ctx, day, report)); err != nil {
		return nil, fmt.Errorf("export sales: %w", err)
	}

	s.logger.Info("sales exported", zap.String("summary", Summary(report)))
	return report, nil
}

func (s *Service) alreadyExported(ctx context.Context, day string) (bool, error) {
	rows, err := s.repo.ReadRange(ctx, salesDateColumn)
	if err != nil {
		return false, fmt.Errorf("load sales dates: %w", err)
	}
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == day {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) rows(ctx context.Context, day string, report *models.SalesReport) [][]interface{} {
	rows := make([][]interface{}, 0, len(report.Lines)+1)
	for _, line := range report.Lines {
		rows = append(rows, []interface{}{
			day,
			line.RecordID.Hex(),
			s.title(ctx, line.RecordID),
			line.Orders,
			line.Units,
			roundMoney(line.Revenue),
		})
	}
	rows = append(rows, []interface{}{day, totalLabel, "", report.Orders, report.Units, roundMoney(report.Revenue)})
	return rows
}

func (s *Service) title(ctx context.Context, id primitive.ObjectID) string {
	if s.records == nil {
		return ""
	}
	record, err := s.records.FindRecordByID(ctx, id)
	if err != nil {
		s.logger.Debug("skip title for sales line", zap.String("record_id", id.Hex()), zap.Error(err))
		return ""
	}
	if record == nil {
		return ""
	}
	return fmt.Sprintf("%s - %s (%s)", record.Artist, record.Album, record.Format)
}

// Summary renders a one-line description of report.
func Summary(report *models.SalesReport) string {
	if report.Orders == 0 {
		return fmt.Sprintf("Sales (%s-%s): no orders.", report.From.Format(dateLayout), report.To.Format(dateLayout))
	}
	return fmt.Sprintf("Sales (%s-%s): %d orders, %d units across %d records, revenue %s.",
		report.From.Format(dateLayout), report.To.Format(dateLayout),
		report.Orders, report.Units, len(report.Lines), formatMoney(report.Revenue))
}

func roundMoney(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func formatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
