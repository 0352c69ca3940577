package commands

import (
	"context"
	"os/signal"
	"syscall"

	"stockcast/internal/config"
	"stockcast/internal/logging"
	"stockcast/internal/mcp"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose    bool
	configFile string
	cfg        *config.AppConfig

	components *app
)

var rootCmd = &cobra.Command{
	Use:   "stockcast",
	Short: "Stockcast is a probabilistic demand forecasting and replenishment MCP Server",
	Long: `A specialized MCP Server that forecasts daily product demand as P10/P50/P90 quantiles
and turns the forecast into safety stock, reorder points and order quantities.

Run without a subcommand to serve MCP over stdio; the subcommands expose the same
operations on the command line.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		// Load configuration
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load configuration")
			return err
		}

		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Msg("Stockcast starting")

		components, err = newApp(cmd.Context(), cfg)
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		server := mcp.NewServer(cfg, components.provider, components.engine, components.optimizer, components.batch)
		return server.Start(cmd.Context(), Version)
	},
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if cerr := components.Close(); cerr != nil {
		log.Warn().Err(cerr).Msg("Failed to close model cache")
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .stockcast.yaml in the working or home directory)")

	rootCmd.AddCommand(forecastCmd, recommendCmd, batchCmd, backtestCmd, productsCmd, ingestCmd, removeCmd, cacheCmd)
}
