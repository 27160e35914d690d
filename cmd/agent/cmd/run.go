package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pradeepsingh/spotvortex-hpa/internal/config"
	"github.com/pradeepsingh/spotvortex-hpa/internal/controller"
	"github.com/pradeepsingh/spotvortex-hpa/internal/decision"
	"github.com/pradeepsingh/spotvortex-hpa/internal/features"
	"github.com/pradeepsingh/spotvortex-hpa/internal/metrics"
	"github.com/pradeepsingh/spotvortex-hpa/internal/ml"
	"github.com/pradeepsingh/spotvortex-hpa/internal/orchestrator"
	"github.com/pradeepsingh/spotvortex-hpa/internal/rules"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the SpotVortex HPA control loop",
	Long: `Run starts the SpotVortex HPA agent in control loop mode.

The agent will:
1. Verify the Prometheus metrics backend is reachable
2. Read the target Deployment's current replica count
3. Extract a feature vector and score it against the rule engine and ML predictor
4. Patch the Deployment's replica count, subject to cooldown

Use --dry-run to compute and log decisions without patching the cluster.`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return &configError{err: fmt.Errorf("failed to load config: %w", err)}
	}
	if err := cfg.Validate(); err != nil {
		return &configError{err: fmt.Errorf("invalid config: %w", err)}
	}

	slog.Info("starting spotvortex-hpa",
		"dry_run", IsDryRun(),
		"namespace", cfg.Target.Namespace,
		"deployment", cfg.Target.Deployment,
		"min_replicas", cfg.Scaling.MinReplicas,
		"max_replicas", cfg.Scaling.MaxReplicas,
		"check_interval", cfg.Scaling.CheckInterval(),
		"cooldown_period", cfg.Scaling.CooldownPeriod(),
		"prometheus_url", cfg.Prometheus.URL,
		"model_path", cfg.Model.Path,
	)

	promClient, err := metrics.NewClient(metrics.ClientConfig{
		PrometheusURL: cfg.Prometheus.URL,
		Logger:        slog.Default(),
	})
	if err != nil {
		return &configError{err: fmt.Errorf("failed to initialize prometheus client: %w", err)}
	}

	k8sClient, err := orchestrator.NewClient()
	if err != nil {
		return &configError{err: fmt.Errorf("failed to initialize kubernetes client: %w", err)}
	}
	orch := orchestrator.New(k8sClient, cfg.Target.Namespace, cfg.Target.Deployment)

	featureEngine := features.New(promClient)

	weights := rules.Weights{
		CPU:     cfg.Weights.CPU,
		Memory:  cfg.Weights.Memory,
		Network: cfg.Weights.Network,
		Cost:    cfg.Weights.Cost,
	}
	ruleEngine := rules.New(weights, cfg.Scaling.MinReplicas, cfg.Scaling.MaxReplicas)

	predictor, err := ml.New(ml.Config{Path: cfg.Model.Path, Logger: slog.Default()})
	if err != nil {
		return &configError{err: fmt.Errorf("failed to initialize ml predictor: %w", err)}
	}

	decisionEngine := decision.New(ruleEngine, predictor)

	loop, err := controller.New(controller.Config{
		Namespace:      cfg.Target.Namespace,
		AppLabel:       cfg.Target.Deployment,
		Features:       featureEngine,
		Decision:       decisionEngine,
		Orchestrator:   orch,
		Health:         promClient,
		MLPredictor:    predictor,
		MinReplicas:    cfg.Scaling.MinReplicas,
		MaxReplicas:    cfg.Scaling.MaxReplicas,
		CheckInterval:  cfg.Scaling.CheckInterval(),
		CooldownPeriod: cfg.Scaling.CooldownPeriod(),
		DryRun:         IsDryRun(),
		Logger:         slog.Default(),
	})
	if err != nil {
		return &configError{err: fmt.Errorf("failed to create control loop: %w", err)}
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		slog.Info("starting metrics server", "port", 8080)
		if err := http.ListenAndServe(":8080", mux); err != nil {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	slog.Info("agent ready, starting control loop")
	if err := loop.Run(ctx); err != nil {
		return &healthCheckError{err: err}
	}
	return nil
}
