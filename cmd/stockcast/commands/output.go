package commands

import (
	"fmt"
	"io"
	"os"

	"stockcast/internal/report"

	"github.com/spf13/cobra"
)

var (
	outputFormat string
	outputFile   string
)

// addOutputFlags registers the rendering flags shared by the reporting commands.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputFormat, "format", "f", string(report.FormatTable), "output format: table, json, or csv")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "write output to this file instead of stdout")
}

// selectOutput resolves the format and destination. The returned close func is always safe to call.
func selectOutput() (report.Format, io.Writer, func(), error) {
	format, err := report.ParseFormat(outputFormat)
	if err != nil {
		return "", nil, nil, err
	}
	if outputFile == "" {
		return format, os.Stdout, func() {}, nil
	}

	file, err := os.Create(outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open output file %s: falling back to stdout\n", outputFile)
		return format, os.Stdout, func() {}, nil
	}
	return format, file, func() {
		_ = file.Close()
		fmt.Fprintf(os.Stderr, "💾 Wrote %s to %s\n", format, outputFile)
	}, nil
}
