// Package report renders forecasts, recommendations and batch results as tables, JSON or CSV,
// and exports batch recommendations to Parquet.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"stockcast/internal/optimizer"
)

// Format selects the rendering.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// ParseFormat validates a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatCSV:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unsupported output format %q. Must be table, json, or csv", s)
	}
}

var (
	criticalColor   = color.New(color.FgRed, color.Bold)
	attentionColor  = color.New(color.FgYellow, color.Bold)
	watchColor      = color.New(color.FgCyan)
	sufficientColor = color.New(color.FgGreen)
)

// statusLabel colours a recommendation status for terminal tables.
func statusLabel(status string) string {
	switch status {
	case optimizer.StatusCritical:
		return criticalColor.Sprint(status)
	case optimizer.StatusAttention:
		return attentionColor.Sprint(status)
	case optimizer.StatusWatch:
		return watchColor.Sprint(status)
	default:
		return sufficientColor.Sprint(status)
	}
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func fmtDays(d *int) string {
	if d == nil {
		return "-"
	}
	return strconv.Itoa(*d)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCSV(w io.Writer, headers []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func writeTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(headers)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// render dispatches tabular data to the requested format; JSON renders v instead.
func render(w io.Writer, format Format, v any, headers []string, rows [][]string) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, v)
	case FormatCSV:
		return writeCSV(w, headers, rows)
	default:
		return writeTable(w, headers, rows)
	}
}
