package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/cmd/yeepctl/cmdutil"
	"github.com/marmos91/yeep/internal/cli/health"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the service is reachable",
	Long: `Fetch the schema document of the service and report its version,
the number of operations it publishes and the round-trip latency.

The command exits with an error when the service is unhealthy.

Examples:
  # Check the current context's server
  yeepctl ping

  # Check another server
  yeepctl ping --server http://localhost:8080 -o json`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	client, err := cmdutil.OpenClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	report := health.Probe(cmd.Context(), client.Config().BaseURL, client.Dispatcher())
	if err := cmdutil.PrintPairs(cmd.OutOrStdout(), report, report.Pairs()); err != nil {
		return err
	}
	if !report.Healthy() {
		return errors.New("service is unhealthy")
	}
	return nil
}
