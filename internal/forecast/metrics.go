package forecast

import (
	"encoding/json"
	"math"
	"strconv"

	"stockcast/internal/model"
	"stockcast/internal/series"
	"stockcast/internal/stats"
)

// Metric is a fit statistic that may be undefined. Undefined metrics render as "N/A".
type Metric struct {
	Value   float64
	Defined bool
}

// NA is the undefined metric.
var NA = Metric{}

// Defined wraps a computed value, rounded to two decimals.
func Defined(v float64) Metric {
	return Metric{Value: stats.Round(v, 2), Defined: true}
}

func (m Metric) String() string {
	if !m.Defined {
		return "N/A"
	}
	return strconv.FormatFloat(m.Value, 'f', 2, 64)
}

// MarshalJSON renders a number or "N/A".
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Defined {
		return json.Marshal("N/A")
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON accepts a number or "N/A".
func (m *Metric) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*m = Metric{Value: v, Defined: true}
		return nil
	}
	*m = NA
	return nil
}

// QualityMetrics measures the in-sample fit of a model.
type QualityMetrics struct {
	MAPE Metric `json:"mape"`
	MAE  Metric `json:"mae"`
	RMSE Metric `json:"rmse"`
}

// Quality scores a model against the series it was trained on. Only dates the model has fitted
// values for are compared. MAPE skips days with zero actual demand and is a percentage.
func Quality(m model.Model, s series.Series) QualityMetrics {
	var actual, predicted []float64
	for _, p := range s.Points() {
		if v, ok := m.Fitted(p.Date); ok {
			actual = append(actual, p.Quantity)
			predicted = append(predicted, v)
		}
	}
	return errorMetrics(actual, predicted)
}

func errorMetrics(actual, predicted []float64) QualityMetrics {
	if len(actual) == 0 {
		return QualityMetrics{MAPE: NA, MAE: NA, RMSE: NA}
	}

	var absSum, sqSum, pctSum float64
	pctCount := 0
	for i := range actual {
		diff := actual[i] - predicted[i]
		absSum += math.Abs(diff)
		sqSum += diff * diff
		if actual[i] != 0 {
			pctSum += math.Abs(diff) / actual[i]
			pctCount++
		}
	}

	n := float64(len(actual))
	q := QualityMetrics{
		MAE:  Defined(absSum / n),
		RMSE: Defined(math.Sqrt(sqSum / n)),
		MAPE: NA,
	}
	if pctCount > 0 {
		q.MAPE = Defined(pctSum / float64(pctCount) * 100)
	}
	return q
}
