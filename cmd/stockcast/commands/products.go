package commands

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"stockcast/internal/demandlog"
	"stockcast/internal/report"
	"stockcast/internal/series"

	"github.com/spf13/cobra"
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List products in the demand log",
	RunE: func(cmd *cobra.Command, args []string) error {
		summaries, err := components.provider.Summaries()
		if err != nil {
			return err
		}

		format, w, done, err := selectOutput()
		if err != nil {
			return err
		}
		defer done()
		return report.WriteProducts(w, summaries, format)
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <product-id> <file.csv>",
	Short: "Append demand history from a CSV file (date,quantity[,ref]) to the demand log",
	Long: `Append demand history from a CSV file to the demand log.

The file needs a header row. Columns are date (YYYY-MM-DD), quantity and an optional
reference used to skip records that were already ingested. An empty quantity marks a
missing observation. Cached models for the product are invalidated.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		productID := args[0]
		file, err := os.Open(args[1])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[1], err)
		}
		defer file.Close()

		records, err := readDemandCSV(file)
		if err != nil {
			return err
		}
		added, err := components.provider.Ingest(productID, records)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Ingested %d of %d records for %s (%d held)\n", added, len(records), productID, components.provider.RecordCount(productID))
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <product-id>",
	Short: "Delete a product's demand history and its cached model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := components.provider.Remove(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Removed %s\n", args[0])
		return nil
	},
}

// readDemandCSV parses date,quantity[,ref] rows after a header line.
func readDemandCSV(r io.Reader) ([]demandlog.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	records := make([]demandlog.Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2
		if len(row) < 2 {
			return nil, fmt.Errorf("line %d: expected at least date and quantity", line)
		}
		day, err := time.Parse(series.DateLayout, strings.TrimSpace(row[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date %q", line, row[0])
		}

		rec := demandlog.Record{Date: day.Unix(), Source: "csv"}
		if raw := strings.TrimSpace(row[1]); raw != "" {
			q, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid quantity %q", line, row[1])
			}
			rec.Quantity = &q
		}
		if len(row) > 2 {
			rec.Ref = strings.TrimSpace(row[2])
		}
		records = append(records, rec)
	}
	return records, nil
}

func init() {
	addOutputFlags(productsCmd)
}
