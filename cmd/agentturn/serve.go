package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentturn/core/internal/config"
	"github.com/agentturn/core/internal/observability"
	"github.com/spf13/cobra"
)

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent-turn core: providers, skill registry, orchestrator, and the /healthz surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, logLevel, logFormat)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentturn.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override server.log_level")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "Override server.log_format")
	return cmd
}

func runServe(ctx context.Context, configPath, logLevelOverride, logFormatOverride string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := cfg.Server.LogLevel
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	format := cfg.Server.LogFormat
	if logFormatOverride != "" {
		format = logFormatOverride
	}
	logger := observability.NewLogger(observability.LogConfig{Level: level, Format: format})

	logger.Info("starting agentturn core", "version", version, "commit", commit, "config", configPath)

	startedAt := time.Now()
	application, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing app: %w", err)
	}
	defer application.store.Close()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	healthAddr := fmt.Sprintf(":%d", healthPortOrDefault(cfg.Server.HealthPort))
	healthSrv := observability.NewServer(healthAddr, healthCheckers(application), startedAt)

	errCh := make(chan error, 1)
	go func() {
		errCh <- healthSrv.ListenAndServe(ctx)
	}()

	logger.Info("agentturn core ready", "health_addr", healthAddr)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("health server: %w", err)
		}
	}

	logger.Info("agentturn core stopped")
	return nil
}

func healthPortOrDefault(port int) int {
	if port <= 0 {
		return 8089
	}
	return port
}

func healthCheckers(a *app) map[string]observability.ServiceChecker {
	return map[string]observability.ServiceChecker{
		"storage": func(ctx context.Context) observability.ServiceStatus {
			if _, err := a.store.Recent(ctx, "audit", 1); err != nil {
				return observability.ServiceStatus{Status: "error", Error: err.Error()}
			}
			return observability.ServiceStatus{Status: "ok"}
		},
	}
}
