package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"netdiag-orchestrator/config"
	"netdiag-orchestrator/internal/backend"
	"netdiag-orchestrator/internal/envutil"
)

func newDoctorCmd() *cobra.Command {
	var (
		base    string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the diagnostic backend is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig(config.NewViper())
			if err != nil {
				return err
			}
			if base == "" {
				base = backend.ResolveBaseURL(cfg)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Checking:", base)

			monitor := backend.NewMonitorForBase(base, cfg.ENV, zap.NewNop().Sugar())
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			h := monitor.Probe(ctx)
			if verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "status=%s checked_at=%s\n", h.Status, h.CheckedAt.Format(time.RFC3339))
			}
			if h.Status != backend.StatusConnected {
				return fmt.Errorf("backend not reachable: %s", h.Detail)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK: diagnostic backend reachable.")
			return nil
		},
	}

	cmd.Flags().StringVar(&base, "base", "", "Backend base URL (defaults to BACKEND_BASE_URL or the local port)")
	cmd.Flags().BoolVar(&verbose, "verbose", envutil.Bool(os.Getenv, "DEVTOOL_VERBOSE", false), "Print the raw probe outcome")
	return cmd
}
