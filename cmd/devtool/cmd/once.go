package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"netdiag-orchestrator/config"
	"netdiag-orchestrator/internal/backend"
	"netdiag-orchestrator/internal/catalog"
	"netdiag-orchestrator/internal/envutil"
)

// once runs one tool invocation straight against the backend, skipping the
// entitlement and challenge layers. Local debugging only.
func newOnceCmd() *cobra.Command {
	var (
		toolID string
		input  string
		plan   string
	)

	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single tool invocation against the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(input) == "" {
				_ = cmd.Help()
				return errUsage
			}
			tool, err := catalog.Lookup(toolID)
			if err != nil {
				return err
			}

			cfg, err := config.NewConfig(config.NewViper())
			if err != nil {
				return err
			}

			client := backend.NewHTTPClientForBase(
				backend.ResolveBaseURL(cfg),
				time.Duration(cfg.Backend.TimeoutMS)*time.Millisecond,
				zap.NewNop().Sugar(),
			)

			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			resp, err := client.Execute(ctx, backend.Request{
				Tool:     tool.ID,
				Input:    input,
				UserPlan: plan,
			})
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&toolID, "tool", "", "Tool ID (see GET /v1/tools)")
	cmd.Flags().StringVar(&input, "input", "", "Tool input (domain, IP, or email)")
	cmd.Flags().StringVar(&plan, "plan", envutil.String(os.Getenv, "DEVTOOL_PLAN", "enterprise"), "Plan to send to the backend")

	if err := cmd.MarkFlagRequired("tool"); err != nil {
		panic(err)
	}

	return cmd
}
