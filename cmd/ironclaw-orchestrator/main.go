// Package main provides the CLI entry point for the ironclaw
// orchestrator: the process that owns provider credentials, runs the
// job scheduler, and exposes the worker RPC surface that sandboxed
// containers call back into.
package main

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

	"github.com/ironclaw/core/internal/config"
	"github.com/ironclaw/core/internal/jobs"
	"github.com/ironclaw/core/internal/metrics"
	"github.com/ironclaw/core/internal/providers"
	"github.com/ironclaw/core/internal/providers/anthropic"
	"github.com/ironclaw/core/internal/providers/bedrock"
	"github.com/ironclaw/core/internal/providers/openai"
	"github.com/ironclaw/core/internal/sandbox"
	"github.com/ironclaw/core/internal/telemetry"
	"github.com/ironclaw/core/internal/tools"
	"github.com/ironclaw/core/internal/workerauth"
	"github.com/ironclaw/core/internal/workerrpc"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ironclaw-orchestrator",
		Short:        "ironclaw orchestrator: job scheduler and worker RPC server",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd())
	return root
}

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator's worker RPC server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "ironclaw.yaml", "path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	provider, err := buildFailoverProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}

	registry := tools.NewRegistry()
	executor := tools.NewExecutor(registry, nil)

	stats := metrics.New()
	tracer, shutdownTracer := telemetry.NewTracer(telemetry.Config{ServiceName: "ironclaw-orchestrator"})
	defer func() { _ = shutdownTracer(context.Background()) }()

	provider.WithMetrics(stats)
	executor.WithMetrics(stats).WithTracer(tracer)

	store := jobs.NewStore()
	sched := jobs.NewScheduler(store, provider, executor, nil, jobs.Config{
		MaxIterations:      cfg.Jobs.MaxIterations,
		PerJobTimeout:      cfg.Jobs.PerJobTimeout,
		StuckCheckInterval: cfg.Jobs.StuckCheckInterval,
		MaxRepairAttempts:  cfg.Jobs.MaxRepairAttempts,
	}, slog.Default())
	sched.WithMetrics(stats).WithTracer(tracer)

	sweeper := jobs.NewSweeper(store, sched, slog.Default())
	if err := sweeper.Start(cfg.Jobs.StuckCheckInterval); err != nil {
		return fmt.Errorf("start stuck-job sweeper: %w", err)
	}
	defer sweeper.Stop()

	issuer, err := workerauth.NewIssuer(cfg.Worker.Secret, cfg.Worker.TTL)
	if err != nil {
		return fmt.Errorf("build worker token issuer: %w", err)
	}

	if cfg.Sandbox.Enabled {
		sandboxMgr := sandbox.NewManager(cfg.Sandbox.ProjectRoot, "http://"+cfg.Server.ListenAddr, cfg.Sandbox.Image, issuer, sandbox.CLIRunner{Runtime: sandbox.RuntimeDocker}).
			WithMetrics(stats)
		registry.Register(tools.NewSandboxDelegate(sandboxMgr, store))
	}

	server := workerrpc.NewServer(store, provider, executor, issuer, slog.Default())

	mux := http.NewServeMux()
	mux.Handle("/worker/", server)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("orchestrator listening", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		slog.Info("shutting down")
		return httpServer.Shutdown(context.Background())
	case <-ctx.Done():
		return httpServer.Shutdown(context.Background())
	}
}

func buildFailoverProvider(ctx context.Context, cfg *config.Config) (*providers.FailoverProvider, error) {
	legs := make([]providers.LlmProvider, 0, len(cfg.Provider.Order))
	for _, name := range cfg.Provider.Order {
		leg, err := buildProviderLeg(ctx, name, cfg)
		if err != nil {
			slog.Warn("skipping provider leg", "provider", name, "error", err)
			continue
		}
		legs = append(legs, leg)
	}
	return providers.NewFailoverProvider(legs...)
}

func buildProviderLeg(ctx context.Context, name string, cfg *config.Config) (providers.LlmProvider, error) {
	switch name {
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:       os.Getenv("ANTHROPIC_API_KEY"),
			DefaultModel: cfg.Provider.AnthropicModel,
		})
	case "openai":
		return openai.New(openai.Config{
			APIKey:       os.Getenv("OPENAI_API_KEY"),
			DefaultModel: cfg.Provider.OpenAIModel,
		})
	case "bedrock":
		return bedrock.New(ctx, bedrock.Config{
			Region:          cfg.Provider.BedrockRegion,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			DefaultModel:    cfg.Provider.BedrockModel,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
