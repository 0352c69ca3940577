package series

import (
	"slices"

	"stockcast/internal/stats"
)

// Trend labels.
const (
	TrendIncreasing   = "increasing"
	TrendDecreasing   = "decreasing"
	TrendStable       = "stable"
	TrendInsufficient = "insufficient_data"
)

// Profile summarises the shape of a demand series.
type Profile struct {
	Points                 int      `json:"points"`
	DailyMean              float64  `json:"daily_mean"`
	DailyStdDev            float64  `json:"daily_std_dev"`
	DailyMedian            float64  `json:"daily_median"`
	DailyP95               float64  `json:"daily_p95"`
	CoefficientOfVariation *float64 `json:"coefficient_of_variation,omitempty"`
	Trend                  string   `json:"trend"`
}

// Profile compares the last week against the first week of the series to label the trend.
func (s Series) Profile() Profile {
	values := s.Values()
	p := Profile{
		Points:      len(values),
		DailyMean:   stats.Mean(values),
		DailyStdDev: stats.StdDev(values),
		DailyMedian: stats.CalculateMedianContinuous(values),
		Trend:       TrendInsufficient,
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	p.DailyP95 = stats.Quantile(sorted, 0.95)
	if cv, ok := stats.CoefficientOfVariation(values); ok {
		p.CoefficientOfVariation = &cv
	}

	if len(values) < 14 {
		return p
	}

	older := stats.Mean(values[:7])
	recent := stats.Mean(values[len(values)-7:])
	switch {
	case recent > older*1.1:
		p.Trend = TrendIncreasing
	case recent < older*0.9:
		p.Trend = TrendDecreasing
	default:
		p.Trend = TrendStable
	}
	return p
}
