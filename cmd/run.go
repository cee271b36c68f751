// File: cmd/run.go
package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	dockerclient "github.com/docker/docker/client"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/argoseyes/uxprobe/internal/agent"
	"github.com/argoseyes/uxprobe/internal/backend"
	"github.com/argoseyes/uxprobe/internal/config"
	"github.com/argoseyes/uxprobe/internal/container"
	"github.com/argoseyes/uxprobe/internal/gate"
	"github.com/argoseyes/uxprobe/internal/observability"
)

// runReport is the JSON document written for --output.
type runReport struct {
	RunID       string             `json:"run_id"`
	Instruction string             `json:"instruction"`
	TargetURL   string             `json:"target_url"`
	Backend     string             `json:"backend"`
	Success     bool               `json:"success"`
	Iterations  int                `json:"iterations"`
	Duration    string             `json:"duration"`
	Error       string             `json:"error,omitempty"`
	Log         []agent.LogEntry   `json:"log"`
	Screenshots []agent.Screenshot `json:"screenshots"`
}

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	var outputPath string

	runCmd := &cobra.Command{
		Use:   "run [instruction...]",
		Short: "Executes one natural-language exploratory test against the target site",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their Viper keys so command-line flags correctly
			// override values from the config file and environment variables.
			for flag, key := range map[string]string{
				"target":         "run.target_url",
				"backend":        "run.backend",
				"max-iterations": "run.max_iterations",
				"timeout":        "run.timeout",
				"capture":        "run.capture_screenshots",
			} {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from Execute (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-resolve the config now that flags are bound, so overrides
			// apply with the right precedence.
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to resolve config with flag overrides: %w", err)
			}
			if cfg.Agent.APIKey == "" {
				return fmt.Errorf("no agent API key configured (set UXPROBE_AGENT_API_KEY or ANTHROPIC_API_KEY)")
			}

			instruction := strings.Join(args, " ")
			run := agent.NewRun(instruction, cfg.Run.TargetURL,
				cfg.Run.MaxIterations, cfg.Run.Timeout, cfg.Run.CaptureScreenshots)

			logger.Info("Starting run",
				zap.String("run_id", run.ID),
				zap.String("backend", cfg.Run.Backend),
				zap.String("target_url", cfg.Run.TargetURL),
				zap.Int("max_iterations", cfg.Run.MaxIterations),
				zap.Duration("timeout", cfg.Run.Timeout),
			)

			b, err := buildBackend(cmd, cfg, run.ID, logger)
			if err != nil {
				return err
			}

			exchanger := agent.NewClient(cfg.Agent, logger)
			admission := gate.New(cfg.Run.MaxConcurrentRuns, logger)
			loop := agent.NewLoop(b, exchanger, admission, cfg.Display, logger)

			result := loop.Run(ctx, run)

			fmt.Fprintf(cmd.OutOrStdout(), "Run %s finished: success=%t iterations=%d duration=%s\n",
				run.ID, result.Success, result.Iterations, result.Duration.Round(time.Millisecond))
			if result.Err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Error: %v\n", result.Err)
			}
			fmt.Fprint(cmd.OutOrStdout(), run.LogText())

			if outputPath != "" {
				if err := writeReport(outputPath, cfg.Run.Backend, run, result); err != nil {
					return fmt.Errorf("failed to write report: %w", err)
				}
				logger.Info("Report written", zap.String("path", outputPath))
			}

			if result.Err != nil {
				return result.Err
			}
			return nil
		},
	}

	runCmd.Flags().String("target", "", "URL of the site under test")
	runCmd.Flags().String("backend", "", "execution backend: docker or chrome")
	runCmd.Flags().Int("max-iterations", 0, "maximum agent iterations before the run fails")
	runCmd.Flags().Duration("timeout", 0, "wall-clock budget for the whole run")
	runCmd.Flags().Bool("capture", true, "record the labeled screenshot trail")
	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write a JSON report to this path")

	return runCmd
}

// buildBackend constructs the configured execution backend. The docker path
// also sweeps orphaned environments left behind by prior crashed runs.
func buildBackend(cmd *cobra.Command, cfg *config.Config, runID string, logger *zap.Logger) (backend.Backend, error) {
	switch cfg.Run.Backend {
	case "docker":
		cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to the container runtime: %w", err)
		}
		container.SweepOrphans(cmd.Context(), cli, cfg.Container.NamePrefix, logger)
		mgr := container.NewManager(cli, cfg.Container, cfg.Display, runID, logger)
		return backend.NewDockerBackend(mgr, cfg.Display, cfg.Browser, logger), nil

	case "chrome":
		return backend.NewChromeBackend(cfg.Browser, cfg.Display, logger), nil

	default:
		return nil, fmt.Errorf("unknown backend %q (supported: docker, chrome)", cfg.Run.Backend)
	}
}

// writeReport serializes the run record to disk.
func writeReport(path, backendName string, run *agent.Run, result agent.Result) error {
	report := runReport{
		RunID:       run.ID,
		Instruction: run.Instruction,
		TargetURL:   run.TargetURL,
		Backend:     backendName,
		Success:     result.Success,
		Iterations:  result.Iterations,
		Duration:    result.Duration.Round(time.Millisecond).String(),
		Log:         run.Log,
		Screenshots: run.Screenshots,
	}
	if result.Err != nil {
		report.Error = result.Err.Error()
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}
