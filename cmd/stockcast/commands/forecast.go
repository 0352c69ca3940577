package commands

import (
	"fmt"

	"stockcast/internal/forecast"
	"stockcast/internal/optimizer"
	"stockcast/internal/report"
	"stockcast/internal/visuals"

	"github.com/spf13/cobra"
)

var (
	horizonDays  int
	showChart    bool
	currentStock float64
	leadTimeDays int
	serviceLevel float64

	backtestHorizon     int
	backtestStep        int
	backtestCheckpoints int
)

var forecastCmd = &cobra.Command{
	Use:   "forecast <product-id>",
	Short: "Forecast daily demand (P10/P50/P90) for a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		productID := args[0]
		horizon := horizonDays
		if horizon == 0 {
			horizon = cfg.DefaultHorizon
		}

		ts, err := components.provider.Series(productID)
		if err != nil {
			return err
		}
		res, err := components.engine.Generate(cmd.Context(), productID, ts, horizon)
		if err != nil {
			return err
		}

		format, w, done, err := selectOutput()
		if err != nil {
			return err
		}
		defer done()
		if err := report.WriteForecast(w, res, format); err != nil {
			return err
		}
		if showChart || (cfg.EnableMermaidCharts && format == report.FormatTable) {
			points := ts.Points()
			if len(points) > 30 {
				points = points[len(points)-30:]
			}
			fmt.Fprintln(w, visuals.GenerateForecastChart(points, res.Points))
		}
		return nil
	},
}

var recommendCmd = &cobra.Command{
	Use:   "recommend <product-id>",
	Short: "Recommend safety stock, reorder point and order quantity for a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		productID := args[0]
		policy := components.optimizer.Policy()
		params := optimizer.Params{
			CurrentStock:        currentStock,
			LeadTimeDays:        leadTimeDays,
			ServiceLevelPercent: serviceLevel,
		}.WithDefaults(policy)
		if err := params.Validate(policy); err != nil {
			return err
		}

		ts, err := components.provider.Series(productID)
		if err != nil {
			return err
		}
		fc, err := components.engine.Generate(cmd.Context(), productID, ts, 2*params.LeadTimeDays)
		if err != nil {
			return err
		}
		rec, err := components.optimizer.Recommend(productID, fc.Points, params)
		if err != nil {
			return err
		}

		format, w, done, err := selectOutput()
		if err != nil {
			return err
		}
		defer done()
		return report.WriteRecommendation(w, rec, format)
	},
}

var backtestCmd = &cobra.Command{
	Use:   "backtest <product-id>",
	Short: "Validate the forecast model with a walk-forward backtest on the product's history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		productID := args[0]
		ts, err := components.provider.Series(productID)
		if err != nil {
			return err
		}

		res, err := components.engine.Backtest(productID, ts, forecast.BacktestConfig{
			Horizon:     backtestHorizon,
			Step:        backtestStep,
			Checkpoints: backtestCheckpoints,
		})
		if err != nil {
			return err
		}

		format, w, done, err := selectOutput()
		if err != nil {
			return err
		}
		defer done()
		if err := report.WriteBacktest(w, res, format); err != nil {
			return err
		}
		if showChart {
			fmt.Fprintln(w, visuals.GenerateBacktestChart(res))
		}
		return nil
	},
}

func init() {
	forecastCmd.Flags().IntVar(&horizonDays, "horizon", 0, "forecast horizon in days (default from configuration)")
	forecastCmd.Flags().BoolVar(&showChart, "chart", false, "append a Mermaid chart of the forecast")
	addOutputFlags(forecastCmd)

	recommendCmd.Flags().Float64Var(&currentStock, "stock", 0, "units currently on hand")
	recommendCmd.Flags().IntVar(&leadTimeDays, "lead-time", 0, "supplier lead time in days (default from configuration)")
	recommendCmd.Flags().Float64Var(&serviceLevel, "service-level", 0, "target service level in percent (default from configuration)")
	_ = recommendCmd.MarkFlagRequired("stock")
	addOutputFlags(recommendCmd)

	defaults := forecast.DefaultBacktestConfig()
	backtestCmd.Flags().IntVar(&backtestHorizon, "horizon", defaults.Horizon, "days evaluated after each cutoff")
	backtestCmd.Flags().IntVar(&backtestStep, "step", defaults.Step, "days between cutoffs")
	backtestCmd.Flags().IntVar(&backtestCheckpoints, "checkpoints", defaults.Checkpoints, "maximum number of cutoffs")
	backtestCmd.Flags().BoolVar(&showChart, "chart", false, "append a Mermaid chart of the backtest")
	addOutputFlags(backtestCmd)
}
