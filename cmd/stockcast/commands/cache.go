package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cached forecast models",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [product-id]",
	Short: "Drop cached models for one product, or for all products",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		productID := ""
		if len(args) == 1 {
			productID = args[0]
		}
		components.engine.Invalidate(cmd.Context(), productID)

		if productID == "" {
			fmt.Fprintln(os.Stderr, "Cleared all cached models")
		} else {
			fmt.Fprintf(os.Stderr, "Cleared cached model for %s\n", productID)
		}
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show model cache counters for this process",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(components.cache.Stats())
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd, cacheStatsCmd)
}
