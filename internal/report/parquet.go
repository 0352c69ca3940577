package report

import (
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"stockcast/internal/batch"
)

// RecommendationRow is the Parquet layout of one batch recommendation.
type RecommendationRow struct {
	RunID             string    `parquet:"run_id,snappy"`
	GeneratedAt       time.Time `parquet:"generated_at,snappy"`
	ProductID         string    `parquet:"product_id,snappy"`
	Action            string    `parquet:"action,snappy"`
	Status            string    `parquet:"status,snappy"`
	CurrentStock      float64   `parquet:"current_stock,snappy"`
	SafetyStock       float64   `parquet:"safety_stock,snappy"`
	ReorderPoint      float64   `parquet:"reorder_point,snappy"`
	QuantityToOrder   float64   `parquet:"quantity_to_order,snappy"`
	DaysUntilStockout *int32    `parquet:"days_until_stockout,optional,snappy"`
	AverageDaily      float64   `parquet:"average_daily_demand,snappy"`
	LeadTimeDays      int32     `parquet:"lead_time_days,snappy"`
	ServiceLevel      string    `parquet:"service_level,snappy"`
	StockoutRisk      *float64  `parquet:"stockout_risk_within_lead_time,optional,snappy"`
}

// RecommendationRows flattens a batch result.
func RecommendationRows(res *batch.Result) []RecommendationRow {
	rows := make([]RecommendationRow, 0, len(res.Recommendations))
	for _, r := range res.Recommendations {
		row := RecommendationRow{
			RunID:           res.Summary.RunID,
			GeneratedAt:     res.Summary.GeneratedAt,
			ProductID:       r.ProductID,
			Action:          string(r.Action),
			Status:          r.Status,
			CurrentStock:    r.CurrentStock,
			SafetyStock:     r.SafetyStock,
			ReorderPoint:    r.ReorderPoint,
			QuantityToOrder: r.QuantityToOrder,
			AverageDaily:    r.Metadata.AverageDailyDemand,
			LeadTimeDays:    int32(r.Metadata.LeadTimeDays),
			ServiceLevel:    r.Metadata.ServiceLevel,
		}
		if r.DaysUntilStockout != nil {
			d := int32(*r.DaysUntilStockout)
			row.DaysUntilStockout = &d
		}
		if risk := r.Metadata.StockoutRisk; risk != nil {
			p := risk.ProbabilityWithinLeadTime
			row.StockoutRisk = &p
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteRecommendationsParquet writes a batch result to a Parquet file.
func WriteRecommendationsParquet(res *batch.Result, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// Schema is derived from the RecommendationRow struct tags
	writer := parquet.NewGenericWriter[RecommendationRow](file)
	if _, err := writer.Write(RecommendationRows(res)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}
