package mcp

import (
	"context"
	"fmt"
	"sort"

	"stockcast/internal/apperr"
	"stockcast/internal/batch"
	"stockcast/internal/forecast"
	"stockcast/internal/optimizer"
	"stockcast/internal/series"
	"stockcast/internal/visuals"
)

// chartHistoryDays is how much observed history precedes the forecast in charts.
const chartHistoryDays = 30

func (s *Server) handleListProducts(_ context.Context, _ ListProductsInput) (any, error) {
	products, err := s.provider.Summaries()
	if err != nil {
		return nil, err
	}

	var guidance []string
	if len(products) == 0 {
		guidance = append(guidance, "The demand log is empty. Demand history must be ingested before forecasts can be generated.")
	}
	var warnings []string
	for _, p := range products {
		if p.Error != "" {
			warnings = append(warnings, fmt.Sprintf("Product %s has invalid records and will be skipped: %s", p.ProductID, p.Error))
		} else if p.Days < s.cfg.MinDataPoints {
			warnings = append(warnings, fmt.Sprintf("Product %s has only %d days of history; at least %d are required to forecast.", p.ProductID, p.Days, s.cfg.MinDataPoints))
		}
	}
	return WrapResponse(map[string]any{"products": products, "count": len(products)}, warnings, guidance), nil
}

func (s *Server) handleGenerateForecast(ctx context.Context, in ForecastInput) (any, error) {
	if in.ProductID == "" {
		return nil, apperr.Validation("generate_forecast", "product_id", in.ProductID, "product_id is required")
	}
	horizon := in.HorizonDays
	if horizon == 0 {
		horizon = s.cfg.DefaultHorizon
	}

	ts, err := s.provider.Series(in.ProductID)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Generate(ctx, in.ProductID, ts, horizon)
	if err != nil {
		return nil, err
	}

	var warnings []string
	if res.Metadata.DroppedRecords > 0 {
		warnings = append(warnings, fmt.Sprintf("DATA INTEGRITY WARNING: %d record(s) without a quantity were ignored.", res.Metadata.DroppedRecords))
	}
	if res.Metadata.TrainingDataPoints < 2*s.cfg.MinDataPoints {
		warnings = append(warnings, "SHORT HISTORY WARNING: the model was trained on very little history; intervals may understate the true uncertainty.")
	}
	if !res.Metadata.QualityMetrics.MAPE.Defined {
		warnings = append(warnings, "MAPE is N/A because the history contains zero-demand days.")
	}

	resp := WrapResponse(res, warnings, []string{
		"P10, P50 and P90 are daily unit quantities. Sum P50 over a period for the expected total demand.",
		"Use 'backtest_forecast' to check how well intervals covered actual demand in the past.",
	})
	if s.cfg.EnableMermaidCharts {
		resp.Chart = visuals.GenerateForecastChart(tail(ts, chartHistoryDays), res.Points)
	}
	return resp, nil
}

func (s *Server) handleGenerateRecommendation(ctx context.Context, in RecommendationInput) (any, error) {
	if in.ProductID == "" {
		return nil, apperr.Validation("generate_recommendation", "product_id", in.ProductID, "product_id is required")
	}

	params := optimizer.Params{
		CurrentStock:        in.CurrentStock,
		LeadTimeDays:        in.LeadTimeDays,
		ServiceLevelPercent: in.ServiceLevelPercent,
	}.WithDefaults(s.optimizer.Policy())
	if err := params.Validate(s.optimizer.Policy()); err != nil {
		return nil, err
	}

	ts, err := s.provider.Series(in.ProductID)
	if err != nil {
		return nil, err
	}
	fc, err := s.engine.Generate(ctx, in.ProductID, ts, 2*params.LeadTimeDays)
	if err != nil {
		return nil, err
	}
	rec, err := s.optimizer.Recommend(in.ProductID, fc.Points, params)
	if err != nil {
		return nil, err
	}

	var warnings []string
	if risk := rec.Metadata.StockoutRisk; risk != nil {
		warnings = append(warnings, risk.Warnings...)
	}
	guidance := []string{"Present the rationale to the user verbatim; it explains every number in the recommendation."}
	if rec.Action == optimizer.ActionOrder {
		guidance = append(guidance, "Stock is at or below the reorder point. Quantity to order restores stock to the target level.")
	}
	return WrapResponse(rec, warnings, guidance), nil
}

func (s *Server) handleRunBatch(ctx context.Context, in BatchInput) (any, error) {
	products, failed, err := s.batchSeries(in.ProductIDs)
	if err != nil {
		return nil, err
	}

	params := optimizer.Params{
		LeadTimeDays:        in.LeadTimeDays,
		ServiceLevelPercent: in.ServiceLevelPercent,
	}.WithDefaults(s.optimizer.Policy())

	res, err := s.batch.Run(ctx, batch.Request{
		Products:            products,
		StockLevels:         in.StockLevels,
		LeadTimeDays:        params.LeadTimeDays,
		ServiceLevelPercent: params.ServiceLevelPercent,
	})
	if err != nil {
		return nil, err
	}
	for _, id := range sortedKeys(failed) {
		res.AddFailure(id, failed[id])
	}

	var warnings []string
	if n := len(res.Failures); n > 0 {
		warnings = append(warnings, fmt.Sprintf("%d product(s) could not be processed; see failures for the reason per product.", n))
	}
	for _, id := range sortedKeys(in.StockLevels) {
		_, ok := products[id]
		_, known := failed[id]
		if !ok && !known {
			warnings = append(warnings, fmt.Sprintf("Stock level given for %s, which is not part of this batch.", id))
		}
	}

	resp := WrapResponse(res, warnings, []string{
		"Recommendations are sorted by product id. Prioritise products with status 'critical', then 'attention'.",
	})
	if s.cfg.EnableMermaidCharts {
		resp.Chart = visuals.GenerateActionPie(res.Recommendations)
	}
	return resp, nil
}

// batchSeries resolves the requested products; an empty list selects every product.
func (s *Server) batchSeries(ids []string) (map[string]series.Series, map[string]error, error) {
	if len(ids) == 0 {
		return s.provider.AllSeries()
	}

	products := make(map[string]series.Series, len(ids))
	failed := make(map[string]error)
	for _, id := range ids {
		ts, err := s.provider.Series(id)
		if err != nil {
			if !apperr.IsUserError(err) {
				return nil, nil, err
			}
			failed[id] = err
			continue
		}
		products[id] = ts
	}
	return products, failed, nil
}

func (s *Server) handleInvalidateModels(ctx context.Context, in InvalidateInput) (any, error) {
	s.engine.Invalidate(ctx, in.ProductID)

	scope := in.ProductID
	if scope == "" {
		scope = "all"
	}
	return WrapResponse(map[string]any{"invalidated": scope}, nil, nil), nil
}

func (s *Server) handleBacktestForecast(_ context.Context, in BacktestInput) (any, error) {
	if in.ProductID == "" {
		return nil, apperr.Validation("backtest_forecast", "product_id", in.ProductID, "product_id is required")
	}

	cfg := forecast.DefaultBacktestConfig()
	if in.HorizonDays != 0 {
		cfg.Horizon = in.HorizonDays
	}
	if in.StepDays != 0 {
		cfg.Step = in.StepDays
	}
	if in.Checkpoints != 0 {
		cfg.Checkpoints = in.Checkpoints
	}

	ts, err := s.provider.Series(in.ProductID)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Backtest(in.ProductID, ts, cfg)
	if err != nil {
		return nil, err
	}

	resp := WrapResponse(res, nil, []string{
		fmt.Sprintf("A well calibrated model keeps the coverage score near %.0f%%. Much lower means the intervals are too narrow.", res.ExpectedCoverage*100),
	})
	if s.cfg.EnableMermaidCharts {
		resp.Chart = visuals.GenerateBacktestChart(res)
	}
	return resp, nil
}

func tail(ts series.Series, n int) []series.Point {
	points := ts.Points()
	if len(points) > n {
		points = points[len(points)-n:]
	}
	return points
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
