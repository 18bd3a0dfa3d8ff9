// Package main provides the unified Golden Path e2e runner. Legacy per-file
// entry points were consolidated here — this binary is the single way to run
// the scripted scenarios against a live deployment.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/goldenpath-ai/staging-e2e/pkg/config"
	"github.com/goldenpath-ai/staging-e2e/pkg/metrics"
	"github.com/goldenpath-ai/staging-e2e/pkg/scenarios"
	"github.com/goldenpath-ai/staging-e2e/pkg/version"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		baseURL       string
		wsURL         string
		outputJSON    bool
		globalTimeout time.Duration
		metricsAddr   string
	)

	cmd := &cobra.Command{
		Use:   "e2e-runner [scenario]",
		Short: "Run Golden Path e2e scenarios against a deployment",
		Long: `Run end-to-end scenarios against a Golden Path deployment.

Available scenarios:
  health          - Deployment /health reports healthy
  golden-path     - Auth, WebSocket, agent run, critical event sequence
  auth-rejection  - Expired/malformed tokens are refused
  all             - Run all scenarios (default)

Configuration comes from the environment (STAGING_BASE_URL, E2E_JWT_SECRET,
ENVIRONMENT, E2E_CONFIG profile file); flags override.

Examples:
  e2e-runner                                        # all scenarios
  e2e-runner golden-path                            # one scenario
  e2e-runner --json                                 # machine-readable output
  e2e-runner --base-url https://staging.example.dev # explicit target
`,
		Args:    cobra.MaximumNArgs(1),
		Version: version.Full(),
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarioName := "all"
			if len(args) > 0 {
				scenarioName = args[0]
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if baseURL != "" {
				cfg.BaseURL = baseURL
				cfg.WSURL = ""
				cfg.DeriveWSURL()
			}
			if wsURL != "" {
				cfg.WSURL = wsURL
			}
			if cfg.BaseURL == "" {
				return fmt.Errorf("no target deployment: set STAGING_BASE_URL or --base-url")
			}

			return run(scenarioName, cfg, outputJSON, globalTimeout, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "deployment base URL (overrides environment)")
	cmd.Flags().StringVar(&wsURL, "ws-url", "", "WebSocket URL (default: derived from base URL)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")
	cmd.Flags().DurationVar(&globalTimeout, "global-timeout", 10*time.Minute, "global timeout for all scenarios")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running (e.g. :9200)")

	cmd.AddCommand(listCmd())

	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available scenarios",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available scenarios:")
			fmt.Println()
			for _, s := range scenarios.All(nil) {
				fmt.Printf("  %-15s %s\n", s.Name(), s.Description())
			}
			fmt.Println()
			fmt.Println("Use 'e2e-runner all' to run everything.")
		},
	}
}

func run(scenarioName string, cfg *config.Config, outputJSON bool, globalTimeout time.Duration, metricsAddr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), globalTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := metrics.NewRecorder()
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", rec.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
			defer c()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	all := scenarios.All(rec)
	var toRun []scenarios.Scenario
	if scenarioName == "all" {
		toRun = all
	} else {
		for _, s := range all {
			if s.Name() == scenarioName {
				toRun = []scenarios.Scenario{s}
			}
		}
		if len(toRun) == 0 {
			return fmt.Errorf("unknown scenario %q (try 'e2e-runner list')", scenarioName)
		}
	}

	slog.Info("running scenarios",
		"count", len(toRun), "target", cfg.BaseURL, "environment", cfg.Environment)

	var results []scenarios.Result
	failed := 0
	for _, s := range toRun {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res := s.Run(ctx, cfg)
		results = append(results, res)
		if !res.Passed {
			failed++
		}
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		printResults(results)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(results))
	}
	return nil
}

func printResults(results []scenarios.Result) {
	fmt.Println()
	for _, res := range results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		fmt.Printf("%s  %-15s %s\n", status, res.Name, res.Duration.Round(time.Millisecond))
		if res.Error != "" {
			fmt.Printf("      error: %s\n", res.Error)
		}
		for _, v := range res.Violations {
			fmt.Printf("      violation: %s\n", v)
		}
	}
	fmt.Println()
}
