package visuals

import (
	"strings"
	"testing"
	"time"

	"stockcast/internal/forecast"
	"stockcast/internal/model"
	"stockcast/internal/optimizer"
	"stockcast/internal/series"
)

func TestGenerateForecastChart(t *testing.T) {
	if got := GenerateForecastChart(nil, nil); got != "" {
		t.Errorf("Expected empty chart without forecast points, got %q", got)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	history := []series.Point{{Date: start, Quantity: 4}, {Date: start.AddDate(0, 0, 1), Quantity: 6}}
	points := []model.ForecastPoint{{Date: start.AddDate(0, 0, 2), P10: 3, P50: 5, P90: 9}}

	chart := GenerateForecastChart(history, points)
	if !strings.HasPrefix(chart, "```mermaid\nxychart-beta") {
		t.Fatalf("Unexpected chart header: %s", chart)
	}
	if !strings.Contains(chart, "x-axis [\"Jan01\", \"Jan02\", \"Jan03\"]") {
		t.Errorf("Expected three labels, got %s", chart)
	}
	if !strings.Contains(chart, "line [4.0, 6.0, 9.0]") {
		t.Errorf("Expected P90 line to continue history, got %s", chart)
	}
	if !strings.Contains(chart, "0 --> 10") {
		t.Errorf("Expected y-axis to scale above P90, got %s", chart)
	}
}

func TestGenerateForecastChart_Subsamples(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]model.ForecastPoint, 365)
	for i := range points {
		points[i] = model.ForecastPoint{Date: start.AddDate(0, 0, i), P10: 1, P50: 2, P90: 3}
	}

	chart := GenerateForecastChart(nil, points)
	axis := chart[strings.Index(chart, "x-axis"):]
	axis = axis[:strings.Index(axis, "\n")]
	if n := strings.Count(axis, "\"") / 2; n > maxPoints+1 {
		t.Errorf("Expected at most %d labels, got %d", maxPoints+1, n)
	}
	if !strings.Contains(axis, "Dec30") {
		t.Errorf("Expected last forecast day to be kept, got %s", axis)
	}
}

func TestGenerateBacktestChart(t *testing.T) {
	if GenerateBacktestChart(forecast.BacktestResult{}) != "" {
		t.Errorf("Expected empty chart without checkpoints")
	}
	chart := GenerateBacktestChart(forecast.BacktestResult{Checkpoints: []forecast.Checkpoint{
		{Cutoff: "2024-02-01", ActualTotal: 70, PredictedP50: 65, PredictedP90: 80},
	}})
	if !strings.Contains(chart, "bar [70.0]") || !strings.Contains(chart, "line [80.0]") {
		t.Errorf("Unexpected backtest chart: %s", chart)
	}
}

func TestGenerateActionPie(t *testing.T) {
	recs := []*optimizer.Recommendation{
		{ProductID: "A", Status: optimizer.StatusCritical},
		{ProductID: "B", Status: optimizer.StatusSufficient},
		{ProductID: "C", Status: optimizer.StatusSufficient},
	}
	pie := GenerateActionPie(recs)
	if !strings.Contains(pie, "\"critical\" : 1") || !strings.Contains(pie, "\"sufficient\" : 2") {
		t.Errorf("Unexpected pie: %s", pie)
	}
	if strings.Contains(pie, "watch") {
		t.Errorf("Empty statuses should be omitted: %s", pie)
	}

	chart := GenerateInventoryChart(recs)
	if !strings.Contains(chart, "x-axis [\"A\", \"B\", \"C\"]") {
		t.Errorf("Unexpected inventory chart: %s", chart)
	}
}
