package forecast

import (
	"fmt"
	"time"

	"stockcast/internal/model"
	"stockcast/internal/series"
	"stockcast/internal/stats"
)

// Metadata describes a forecast and the history behind it.
type Metadata struct {
	ProductID               string         `json:"product_id"`
	ModelUsed               string         `json:"model_used"`
	TrainingDataPoints      int            `json:"training_data_points"`
	TrainingPeriodStart     string         `json:"training_period_start"`
	TrainingPeriodEnd       string         `json:"training_period_end"`
	DroppedRecords          int            `json:"dropped_records,omitempty"`
	AverageDailyDemand      float64        `json:"average_daily_demand"`
	DemandStdDev            float64        `json:"demand_std_dev"`
	MedianDailyDemand       float64        `json:"median_daily_demand"`
	CoefficientOfVariation  *float64       `json:"coefficient_of_variation"`
	Trend                   string         `json:"trend"`
	ConfidenceLevel         string         `json:"confidence_level"`
	ConfidenceIntervalWidth float64        `json:"confidence_interval_width"`
	QualityMetrics          QualityMetrics `json:"quality_metrics"`
	ModelTrainedAt          time.Time      `json:"model_trained_at"`
	GeneratedAt             time.Time      `json:"forecast_generated_at"`
}

func buildMetadata(productID string, m model.Model, s series.Series, points []model.ForecastPoint, confidence float64, now time.Time) Metadata {
	profile := s.Profile()

	var cv *float64
	if profile.CoefficientOfVariation != nil {
		v := stats.Round(*profile.CoefficientOfVariation, 3)
		cv = &v
	}

	widths := make([]float64, len(points))
	for i, p := range points {
		widths[i] = p.P90 - p.P10
	}

	return Metadata{
		ProductID:               productID,
		ModelUsed:               m.Kind(),
		TrainingDataPoints:      s.Len(),
		TrainingPeriodStart:     s.Start().Format(series.DateLayout),
		TrainingPeriodEnd:       s.End().Format(series.DateLayout),
		DroppedRecords:          s.Dropped(),
		AverageDailyDemand:      stats.Round(profile.DailyMean, 2),
		DemandStdDev:            stats.Round(profile.DailyStdDev, 2),
		MedianDailyDemand:       stats.Round(profile.DailyMedian, 2),
		CoefficientOfVariation:  cv,
		Trend:                   profile.Trend,
		ConfidenceLevel:         fmt.Sprintf("%.0f%%", confidence*100),
		ConfidenceIntervalWidth: stats.Round(stats.Mean(widths), 2),
		QualityMetrics:          Quality(m, s),
		ModelTrainedAt:          m.TrainedAt(),
		GeneratedAt:             now.UTC(),
	}
}
