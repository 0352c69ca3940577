package visuals

import (
	"fmt"
	"math"
	"strings"

	"stockcast/internal/forecast"
	"stockcast/internal/model"
	"stockcast/internal/optimizer"
	"stockcast/internal/series"
)

// maxPoints keeps xychart labels legible; Mermaid starts overlapping text around 60 points.
const maxPoints = 60

func subsampleRate(n int) int {
	if n <= maxPoints {
		return 1
	}
	return int(math.Ceil(float64(n) / float64(maxPoints)))
}

// GenerateForecastChart creates a Mermaid xychart-beta of recent history followed by the P10/P50/P90 bands.
// History lines carry the observed value and the forecast lines start where history ends.
func GenerateForecastChart(history []series.Point, points []model.ForecastPoint) string {
	if len(points) == 0 {
		return ""
	}

	total := len(history) + len(points)
	rate := subsampleRate(total)

	var labels, actual, p10s, p50s, p90s []string
	maxY := 0.0

	for i, p := range history {
		if i%rate != 0 {
			continue
		}
		labels = append(labels, fmt.Sprintf("\"%s\"", p.Date.Format("Jan02")))
		v := fmt.Sprintf("%.1f", p.Quantity)
		// Bands mirror the actual value over history so the lines stay aligned
		actual = append(actual, v)
		p10s = append(p10s, v)
		p50s = append(p50s, v)
		p90s = append(p90s, v)
		maxY = math.Max(maxY, p.Quantity)
	}

	for i, p := range points {
		idx := len(history) + i
		if idx%rate != 0 && i != len(points)-1 {
			continue
		}
		labels = append(labels, fmt.Sprintf("\"%s\"", p.Date.Format("Jan02")))
		actual = append(actual, fmt.Sprintf("%.1f", p.P50))
		p10s = append(p10s, fmt.Sprintf("%.1f", p.P10))
		p50s = append(p50s, fmt.Sprintf("%.1f", p.P50))
		p90s = append(p90s, fmt.Sprintf("%.1f", p.P90))
		maxY = math.Max(maxY, p.P90)
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Daily Demand Forecast (P10 / P50 / P90)\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis \"Units per Day\" 0 --> %d\n", int(math.Ceil(math.Max(1, maxY*1.1)))))
	sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(actual, ", ")))
	sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(p10s, ", ")))
	sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(p50s, ", ")))
	sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(p90s, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// GenerateBacktestChart compares actual checkpoint totals against the predicted median.
func GenerateBacktestChart(result forecast.BacktestResult) string {
	if len(result.Checkpoints) == 0 {
		return ""
	}

	var labels, actuals, medians, uppers []string
	maxY := 0.0
	for _, cp := range result.Checkpoints {
		labels = append(labels, fmt.Sprintf("\"%s\"", cp.Cutoff))
		actuals = append(actuals, fmt.Sprintf("%.1f", cp.ActualTotal))
		medians = append(medians, fmt.Sprintf("%.1f", cp.PredictedP50))
		uppers = append(uppers, fmt.Sprintf("%.1f", cp.PredictedP90))
		maxY = math.Max(maxY, math.Max(cp.ActualTotal, cp.PredictedP90))
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Walk-Forward Backtest (Actual vs Predicted)\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis \"Units per Window\" 0 --> %d\n", int(math.Ceil(math.Max(1, maxY*1.2)))))
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(actuals, ", ")))
	sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(medians, ", ")))
	sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(uppers, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// GenerateInventoryChart shows current stock against the reorder point per product.
func GenerateInventoryChart(recs []*optimizer.Recommendation) string {
	if len(recs) == 0 {
		return ""
	}

	// Limit to 20 products to avoid overwhelming the text chart context
	limit := len(recs)
	if limit > 20 {
		limit = 20
	}

	var labels, stock, reorder []string
	maxVal := 0.0
	for _, r := range recs[:limit] {
		labels = append(labels, fmt.Sprintf("\"%s\"", strings.ReplaceAll(r.ProductID, " ", "_")))
		stock = append(stock, fmt.Sprintf("%.1f", r.CurrentStock))
		reorder = append(reorder, fmt.Sprintf("%.1f", r.ReorderPoint))
		maxVal = math.Max(maxVal, math.Max(r.CurrentStock, r.ReorderPoint))
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Stock vs Reorder Point\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis \"Units\" 0 --> %d\n", int(math.Ceil(math.Max(1, maxVal*1.2)))))
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(stock, ", ")))
	sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(reorder, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// GenerateActionPie creates a Mermaid pie chart of recommendation statuses across a batch.
func GenerateActionPie(recs []*optimizer.Recommendation) string {
	if len(recs) == 0 {
		return ""
	}

	counts := make(map[string]int)
	for _, r := range recs {
		counts[r.Status]++
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("pie title Inventory Status\n")
	for _, status := range []string{optimizer.StatusCritical, optimizer.StatusAttention, optimizer.StatusWatch, optimizer.StatusSufficient} {
		if counts[status] > 0 {
			sb.WriteString(fmt.Sprintf("    \"%s\" : %d\n", status, counts[status]))
		}
	}
	sb.WriteString("```")
	return sb.String()
}
