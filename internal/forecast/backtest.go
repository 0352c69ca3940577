package forecast

import (
	"fmt"

	"stockcast/internal/apperr"
	"stockcast/internal/model"
	"stockcast/internal/series"
	"stockcast/internal/stats"
)

// BacktestConfig defines the walk-forward validation.
type BacktestConfig struct {
	Horizon     int // Days forecast after each cutoff
	Step        int // Days between cutoffs
	Checkpoints int // Maximum number of cutoffs
}

// DefaultBacktestConfig validates two-week forecasts at weekly cutoffs.
func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{Horizon: 14, Step: 7, Checkpoints: 8}
}

// Checkpoint is a single cutoff in the past where a model was trained and scored.
type Checkpoint struct {
	Cutoff         string  `json:"cutoff"`
	TrainingPoints int     `json:"training_points"`
	EvaluatedDays  int     `json:"evaluated_days"`
	ActualTotal    float64 `json:"actual_total"`
	PredictedP10   float64 `json:"predicted_p10_total"`
	PredictedP50   float64 `json:"predicted_p50_total"`
	PredictedP90   float64 `json:"predicted_p90_total"`
	Coverage       float64 `json:"coverage"` // share of days with actual inside [P10, P90]
	MAE            Metric  `json:"mae"`
	MAPE           Metric  `json:"mape"`
}

// BacktestResult aggregates all checkpoints.
type BacktestResult struct {
	ProductID          string       `json:"product_id"`
	CoverageScore      float64      `json:"coverage_score"`
	ExpectedCoverage   float64      `json:"expected_coverage"`
	Checkpoints        []Checkpoint `json:"checkpoints"`
	ValidationMessage  string       `json:"validation_message"`
	SkippedCheckpoints int          `json:"skipped_checkpoints,omitempty"`
}

// Backtest walks backwards from the end of s. At each cutoff a fresh model is trained on the
// days before the cutoff and scored on the following Horizon days. The cache is never touched.
func Backtest(trainer model.Trainer, productID string, s series.Series, cfg BacktestConfig, confidence float64) (BacktestResult, error) {
	const op = "forecast.Backtest"

	if cfg.Horizon < 1 {
		return BacktestResult{}, apperr.Validation(op, "horizon_days", cfg.Horizon, "horizon must be positive")
	}
	if cfg.Step < 1 {
		return BacktestResult{}, apperr.Validation(op, "step_days", cfg.Step, "step must be positive")
	}
	if cfg.Checkpoints < 1 {
		return BacktestResult{}, apperr.Validation(op, "checkpoints", cfg.Checkpoints, "at least one checkpoint is required")
	}

	result := BacktestResult{
		ProductID:        productID,
		ExpectedCoverage: confidence,
		Checkpoints:      make([]Checkpoint, 0, cfg.Checkpoints),
	}
	if s.Len() == 0 {
		result.ValidationMessage = "No demand history to backtest."
		return result, nil
	}

	coveredDays, evaluatedDays := 0, 0
	lastCutoff := s.End().AddDate(0, 0, 1-cfg.Horizon)

	// 1. Iterate backwards
	for i, d := 0, lastCutoff; i < cfg.Checkpoints && d.After(s.Start()); i, d = i+1, d.AddDate(0, 0, -cfg.Step) {
		// 2. Time travel: only history known at d
		past := s.Head(d)
		m, err := trainer.Train(productID, past)
		if err != nil {
			result.SkippedCheckpoints++
			continue
		}

		// 3. Forecast across any gap between the training window and the cutoff
		_, trainedTo := m.TrainingWindow()
		gap := series.DaysBetween(trainedTo, d) - 1
		predicted := make(map[string]model.ForecastPoint, cfg.Horizon)
		for _, p := range model.Enforce(m.Predict(cfg.Horizon + gap)) {
			predicted[p.Date.Format(series.DateLayout)] = p
		}

		// 4. Score against what really happened
		cp := Checkpoint{Cutoff: d.Format(series.DateLayout), TrainingPoints: past.Len()}
		var actual, p50 []float64
		covered := 0
		for _, a := range s.Between(d, d.AddDate(0, 0, cfg.Horizon)) {
			p, ok := predicted[a.Date.Format(series.DateLayout)]
			if !ok {
				continue
			}
			actual = append(actual, a.Quantity)
			p50 = append(p50, p.P50)
			cp.ActualTotal += a.Quantity
			cp.PredictedP10 += p.P10
			cp.PredictedP50 += p.P50
			cp.PredictedP90 += p.P90
			if a.Quantity >= p.P10-0.1 && a.Quantity <= p.P90+0.1 {
				covered++
			}
		}
		if len(actual) == 0 {
			result.SkippedCheckpoints++
			continue
		}

		q := errorMetrics(actual, p50)
		cp.EvaluatedDays = len(actual)
		cp.Coverage = stats.Round(float64(covered)/float64(len(actual)), 3)
		cp.MAE, cp.MAPE = q.MAE, q.MAPE
		cp.ActualTotal = stats.Round(cp.ActualTotal, 2)
		cp.PredictedP10 = stats.Round(cp.PredictedP10, 2)
		cp.PredictedP50 = stats.Round(cp.PredictedP50, 2)
		cp.PredictedP90 = stats.Round(cp.PredictedP90, 2)

		coveredDays += covered
		evaluatedDays += len(actual)
		result.Checkpoints = append(result.Checkpoints, cp)
	}

	if evaluatedDays == 0 {
		result.ValidationMessage = "Insufficient historical data for meaningful backtesting."
		return result, nil
	}

	result.CoverageScore = stats.Round(float64(coveredDays)/float64(evaluatedDays), 3)
	result.ValidationMessage = fmt.Sprintf("Walk-forward backtest: %d/%d (%.0f%%) of actual daily demands fell within the forecast interval (expected %.0f%%).",
		coveredDays, evaluatedDays, result.CoverageScore*100, confidence*100)

	if result.CoverageScore < confidence-0.15 && len(result.Checkpoints) > 3 {
		result.ValidationMessage += " Warning: forecast intervals are narrower than observed variability."
	}
	return result, nil
}

// Backtest validates the engine's model type on s without touching the cache.
func (e *Engine) Backtest(productID string, s series.Series, cfg BacktestConfig) (BacktestResult, error) {
	if s.Len() < e.cfg.MinDataPoints+cfg.Horizon {
		ierr := apperr.InsufficientData("forecast.Backtest", e.cfg.MinDataPoints+cfg.Horizon, s.Len())
		ierr.ProductID = productID
		return BacktestResult{}, ierr
	}
	return Backtest(e.cache.Trainer(), productID, s, cfg, e.cfg.ConfidenceLevel)
}
