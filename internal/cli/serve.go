package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Keep the servers running and expose Prometheus metrics",
	Long: `Start the configured MCP servers, run periodic health checks and serve
/metrics until interrupted. The address comes from --metrics-addr or
metrics.addr in the config file.`,
	Args: cobra.NoArgs,
	RunE: runServeMetrics,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "agentflow version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(serveMetricsCmd, versionCmd)
}

func runServeMetrics(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer s.close(cmd.Context())

	sys, err := startSystem(ctx, s, false)
	if err != nil {
		return err
	}
	defer stopSystem(sys)

	log.Info().Strs("tools", sys.AvailableTools()).Msg("Serving until interrupted")
	<-ctx.Done()
	return nil
}
