package forecast

import (
	"strings"
	"testing"

	"stockcast/internal/apperr"
	"stockcast/internal/model"
)

func TestBacktest_Steady(t *testing.T) {
	trainer := model.NewDecompositionTrainer(0.8, 7)
	s := mustSeries(t, noisy(120))

	res, err := Backtest(trainer, "SKU", s, BacktestConfig{Horizon: 14, Step: 7, Checkpoints: 6}, 0.8)
	if err != nil {
		t.Fatalf("Backtest failed: %v", err)
	}
	if len(res.Checkpoints) != 6 {
		t.Fatalf("Expected 6 checkpoints, got %d", len(res.Checkpoints))
	}

	for _, cp := range res.Checkpoints {
		if cp.EvaluatedDays != 14 {
			t.Errorf("Checkpoint %s: expected 14 evaluated days, got %d", cp.Cutoff, cp.EvaluatedDays)
		}
		if cp.PredictedP10 > cp.PredictedP50 || cp.PredictedP50 > cp.PredictedP90 {
			t.Errorf("Checkpoint %s: totals out of order", cp.Cutoff)
		}
	}
	if res.Checkpoints[0].Cutoff <= res.Checkpoints[1].Cutoff {
		t.Errorf("Expected checkpoints to walk backwards")
	}
	if res.CoverageScore <= 0 || res.CoverageScore > 1 {
		t.Errorf("Coverage out of range: %v", res.CoverageScore)
	}
	if !strings.Contains(res.ValidationMessage, "Walk-forward backtest") {
		t.Errorf("Unexpected message: %s", res.ValidationMessage)
	}
}

func TestBacktest_ConstantSeriesFullyCovered(t *testing.T) {
	res, err := Backtest(model.NewDecompositionTrainer(0.8, 7), "SKU", mustSeries(t, constant(10, 60)), DefaultBacktestConfig(), 0.8)
	if err != nil {
		t.Fatalf("Backtest failed: %v", err)
	}
	if res.CoverageScore != 1 {
		t.Errorf("Expected full coverage, got %v", res.CoverageScore)
	}
	for _, cp := range res.Checkpoints {
		if cp.MAE.Value != 0 {
			t.Errorf("Expected zero error at %s, got %s", cp.Cutoff, cp.MAE)
		}
	}
}

func TestBacktest_SkipsUntrainableCutoffs(t *testing.T) {
	// Early cutoffs leave fewer than 7 days of history
	res, err := Backtest(model.NewDecompositionTrainer(0.8, 7), "SKU", mustSeries(t, constant(10, 30)), BacktestConfig{Horizon: 7, Step: 5, Checkpoints: 10}, 0.8)
	if err != nil {
		t.Fatalf("Backtest failed: %v", err)
	}
	if res.SkippedCheckpoints == 0 {
		t.Errorf("Expected skipped checkpoints")
	}
	if len(res.Checkpoints) == 0 {
		t.Errorf("Expected some checkpoints")
	}
}

func TestBacktest_InvalidConfig(t *testing.T) {
	_, err := Backtest(model.NewDecompositionTrainer(0.8, 7), "SKU", mustSeries(t, constant(10, 30)), BacktestConfig{Horizon: 0, Step: 7, Checkpoints: 1}, 0.8)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestEngineBacktest_RequiresHistory(t *testing.T) {
	e := newEngine(model.NewDecompositionTrainer(0.8, 7))
	_, err := e.Backtest("SKU", mustSeries(t, constant(10, 15)), DefaultBacktestConfig())
	if !apperr.Is(err, apperr.KindInsufficientData) {
		t.Errorf("Expected insufficient data, got %v", err)
	}
}
