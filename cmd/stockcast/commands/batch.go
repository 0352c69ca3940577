package commands

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"stockcast/internal/batch"
	"stockcast/internal/optimizer"
	"stockcast/internal/report"
	"stockcast/internal/series"

	"github.com/spf13/cobra"
)

var (
	stockArgs   []string
	batchIDs    []string
	parquetFile string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Generate recommendations for many products at once",
	Example: `  stockcast batch --stock SKU-1=40 --stock SKU-2=120 --lead-time 10
  stockcast batch --products SKU-1,SKU-2 --format csv -o recommendations.csv
  stockcast batch --parquet recommendations.parquet`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stock, err := parseStockLevels(stockArgs)
		if err != nil {
			return err
		}

		products, failed, err := selectSeries(batchIDs)
		if err != nil {
			return err
		}

		params := optimizer.Params{
			LeadTimeDays:        leadTimeDays,
			ServiceLevelPercent: serviceLevel,
		}.WithDefaults(components.optimizer.Policy())

		res, err := components.batch.Run(cmd.Context(), batch.Request{
			Products:            products,
			StockLevels:         stock,
			LeadTimeDays:        params.LeadTimeDays,
			ServiceLevelPercent: params.ServiceLevelPercent,
		})
		if err != nil {
			return err
		}
		for id, ferr := range failed {
			res.AddFailure(id, ferr)
		}

		if parquetFile != "" {
			if err := report.WriteRecommendationsParquet(res, parquetFile); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "💾 Wrote Parquet to %s\n", parquetFile)
		}

		format, w, done, err := selectOutput()
		if err != nil {
			return err
		}
		defer done()
		return report.WriteBatch(w, res, format)
	},
}

// parseStockLevels reads repeated id=units pairs.
func parseStockLevels(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		id, raw, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("invalid stock level %q, expected <product-id>=<units>", pair)
		}
		units, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid stock level %q: %w", pair, err)
		}
		out[strings.TrimSpace(id)] = units
	}
	return out, nil
}

// selectSeries resolves the requested products; none selects every product in the demand log.
func selectSeries(ids []string) (map[string]series.Series, map[string]error, error) {
	if len(ids) == 0 {
		return components.provider.AllSeries()
	}
	sort.Strings(ids)

	products := make(map[string]series.Series, len(ids))
	failed := make(map[string]error)
	for _, id := range ids {
		ts, err := components.provider.Series(id)
		if err != nil {
			failed[id] = err
			continue
		}
		products[id] = ts
	}
	return products, failed, nil
}

func init() {
	batchCmd.Flags().StringArrayVar(&stockArgs, "stock", nil, "stock level as <product-id>=<units>; repeatable, missing products count as zero")
	batchCmd.Flags().StringSliceVar(&batchIDs, "products", nil, "comma-separated product ids (default: every product)")
	batchCmd.Flags().IntVar(&leadTimeDays, "lead-time", 0, "supplier lead time in days (default from configuration)")
	batchCmd.Flags().Float64Var(&serviceLevel, "service-level", 0, "target service level in percent (default from configuration)")
	batchCmd.Flags().StringVar(&parquetFile, "parquet", "", "also export recommendations to this Parquet file")
	addOutputFlags(batchCmd)
}
