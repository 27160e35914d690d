// Package cmd provides the CLI commands for the SpotVortex HPA agent.
package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	dryRun  bool
	verbose bool
	cfgFile string
)

// Exit codes: 0 on a normal interrupt, 1 when the metrics backend fails
// its startup health check, 2 on a configuration error.
const (
	exitOK                = 0
	exitHealthCheckFailed = 1
	exitConfigError       = 2
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "SpotVortex HPA - ML-augmented Kubernetes replica autoscaler",
	Long: `SpotVortex HPA watches a Deployment's CPU, memory, and network load,
scores it against a weighted rule engine, and augments that score with an
online-trained ML predictor once it has seen enough history. It never
actuates below --dry-run, and always respects a post-scale cooldown.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitOK
	}

	var ce *configError
	if errors.As(err, &ce) {
		slog.Error("configuration error", "error", ce.err)
		return exitConfigError
	}

	var he *healthCheckError
	if errors.As(err, &he) {
		slog.Error("metrics backend health check failed at startup", "error", he.err)
		return exitHealthCheckFailed
	}

	slog.Error("agent exited with an error", "error", err)
	return exitHealthCheckFailed
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false,
		"Compute and log scaling decisions without patching the Deployment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable verbose logging output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml",
		"Path to configuration file")
}

// setupLogging configures structured JSON logging using slog.
func setupLogging() error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	if dryRun {
		slog.Info("dry-run mode enabled: decisions are computed and logged but never actuated")
	}

	return nil
}

// IsDryRun returns whether dry-run mode is enabled.
func IsDryRun() bool {
	return dryRun
}

// configError tags an error as a configuration problem so Execute can map
// it to exit code 2.
type configError struct{ err error }

func (c *configError) Error() string { return c.err.Error() }
func (c *configError) Unwrap() error { return c.err }

// healthCheckError tags an error as a startup health check failure so
// Execute can map it to exit code 1.
type healthCheckError struct{ err error }

func (h *healthCheckError) Error() string { return h.err.Error() }
func (h *healthCheckError) Unwrap() error { return h.err }
