package report

import (
	"fmt"
	"io"
	"strconv"

	"stockcast/internal/batch"
	"stockcast/internal/demandlog"
	"stockcast/internal/forecast"
	"stockcast/internal/optimizer"
	"stockcast/internal/series"
)

// WriteForecast renders forecast points; tables are followed by a short metadata block.
func WriteForecast(w io.Writer, res *forecast.Result, format Format) error {
	headers := []string{"Date", "P10", "P50", "P90"}
	rows := make([][]string, len(res.Points))
	for i, p := range res.Points {
		rows[i] = []string{p.Date.Format(series.DateLayout), fmtFloat(p.P10), fmtFloat(p.P50), fmtFloat(p.P90)}
	}
	if err := render(w, format, res, headers, rows); err != nil {
		return err
	}
	if format != FormatTable {
		return nil
	}

	m := res.Metadata
	cv := "N/A"
	if m.CoefficientOfVariation != nil {
		cv = strconv.FormatFloat(*m.CoefficientOfVariation, 'f', 3, 64)
	}
	_, err := fmt.Fprintf(w, "\nModel: %s | Training: %s..%s (%d days) | Mean %.2f, σ %.2f, CV %s | Trend: %s\nFit: MAPE %s%%, MAE %s, RMSE %s | Interval: %s, avg width %.2f\n",
		m.ModelUsed, m.TrainingPeriodStart, m.TrainingPeriodEnd, m.TrainingDataPoints,
		m.AverageDailyDemand, m.DemandStdDev, cv, m.Trend,
		m.QualityMetrics.MAPE, m.QualityMetrics.MAE, m.QualityMetrics.RMSE,
		m.ConfidenceLevel, m.ConfidenceIntervalWidth)
	return err
}

var recommendationHeaders = []string{"Product", "Status", "Action", "Stock", "Safety Stock", "Reorder Point", "Order Qty", "Days Left"}

func recommendationRow(r *optimizer.Recommendation, colored bool) []string {
	status := r.Status
	if colored {
		status = statusLabel(r.Status)
	}
	return []string{
		r.ProductID,
		status,
		string(r.Action),
		fmtFloat(r.CurrentStock),
		fmtFloat(r.SafetyStock),
		fmtFloat(r.ReorderPoint),
		fmtFloat(r.QuantityToOrder),
		fmtDays(r.DaysUntilStockout),
	}
}

// WriteRecommendation renders a single recommendation with its rationale.
func WriteRecommendation(w io.Writer, rec *optimizer.Recommendation, format Format) error {
	rows := [][]string{recommendationRow(rec, format == FormatTable)}
	if err := render(w, format, rec, recommendationHeaders, rows); err != nil {
		return err
	}
	if format != FormatTable {
		return nil
	}
	if _, err := fmt.Fprintf(w, "\n%s\n", rec.Metadata.Rationale); err != nil {
		return err
	}
	if risk := rec.Metadata.StockoutRisk; risk != nil {
		_, err := fmt.Fprintf(w, "Simulated stockout risk within lead time: %.1f%% (%d trials)\n", risk.ProbabilityWithinLeadTime*100, risk.Trials)
		return err
	}
	return nil
}

// WriteBatch renders all recommendations of a run followed by the summary and failures.
func WriteBatch(w io.Writer, res *batch.Result, format Format) error {
	rows := make([][]string, len(res.Recommendations))
	for i, r := range res.Recommendations {
		rows[i] = recommendationRow(r, format == FormatTable)
	}
	if err := render(w, format, res, recommendationHeaders, rows); err != nil {
		return err
	}
	if format != FormatTable {
		return nil
	}

	s := res.Summary
	if _, err := fmt.Fprintf(w, "\nRun %s: %d products, %d to order (%.2f units), total safety stock %.2f, service level %s\n",
		s.RunID, s.TotalProducts, s.ProductsToOrder, s.TotalQuantityToOrder, s.TotalSafetyStock, s.ServiceLevel); err != nil {
		return err
	}
	for _, f := range res.Failures {
		if _, err := fmt.Fprintf(w, "  skipped %s: [%s] %s\n", f.ProductID, f.Code, f.Message); err != nil {
			return err
		}
	}
	return nil
}

// WriteBacktest renders walk-forward checkpoints and the validation message.
func WriteBacktest(w io.Writer, res forecast.BacktestResult, format Format) error {
	headers := []string{"Cutoff", "Train Days", "Actual", "P10", "P50", "P90", "Coverage", "MAE", "MAPE"}
	rows := make([][]string, len(res.Checkpoints))
	for i, cp := range res.Checkpoints {
		rows[i] = []string{
			cp.Cutoff,
			strconv.Itoa(cp.TrainingPoints),
			fmtFloat(cp.ActualTotal),
			fmtFloat(cp.PredictedP10),
			fmtFloat(cp.PredictedP50),
			fmtFloat(cp.PredictedP90),
			fmt.Sprintf("%.0f%%", cp.Coverage*100),
			cp.MAE.String(),
			cp.MAPE.String(),
		}
	}
	if err := render(w, format, res, headers, rows); err != nil {
		return err
	}
	if format == FormatTable {
		_, err := fmt.Fprintf(w, "\n%s\n", res.ValidationMessage)
		return err
	}
	return nil
}

// WriteProducts renders the product inventory of the demand log.
func WriteProducts(w io.Writer, products []demandlog.ProductSummary, format Format) error {
	headers := []string{"Product", "Records", "Days", "Start", "End", "Daily Mean", "Trend"}
	rows := make([][]string, len(products))
	for i, p := range products {
		trend := p.Trend
		if p.Error != "" {
			trend = "invalid: " + p.Error
		}
		rows[i] = []string{p.ProductID, strconv.Itoa(p.Records), strconv.Itoa(p.Days), p.Start, p.End, fmtFloat(p.DailyMean), trend}
	}
	return render(w, format, products, headers, rows)
}
