package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agentturn/core/internal/breaker"
	"github.com/agentturn/core/internal/confirm"
	"github.com/agentturn/core/internal/config"
	"github.com/agentturn/core/internal/eventbus"
	"github.com/agentturn/core/internal/health"
	"github.com/agentturn/core/internal/llm"
	"github.com/agentturn/core/internal/llm/providers"
	"github.com/agentturn/core/internal/observability"
	"github.com/agentturn/core/internal/orchestrator"
	"github.com/agentturn/core/internal/ratelimit"
	"github.com/agentturn/core/internal/routing"
	"github.com/agentturn/core/internal/skillreg"
	"github.com/agentturn/core/internal/storage"
	"github.com/agentturn/core/internal/usage"
	"github.com/agentturn/core/pkg/models"
)

// app bundles every wired collaborator plus the pieces the HTTP health
// surface and graceful shutdown need.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	bus          *eventbus.Bus
	metrics      *observability.Metrics
	store        *storage.Store
	manager      *llm.ProviderManager
	registry     *skillreg.Registry
	orchestrator *orchestrator.Orchestrator
}

// buildApp wires config into a runnable app: providers with per-provider
// breakers, the tier classifier, the skill registry, the confirmation
// manager, the usage tracker, the sqlite recorder, and the orchestrator
// facade on top.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	bus := eventbus.New(logger)

	store, err := storage.Open(cfg.Server.StoragePath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	metrics := observability.NewMetrics()

	manager := llm.NewProviderManager(
		cfg.Routing.DefaultProvider,
		cfg.Routing.DefaultModel,
		cfg.Routing.FailoverChain,
		tierModelsFromConfig(cfg.Routing.TierModels),
	)
	for _, pc := range cfg.Providers {
		inner, err := buildProvider(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		breakerCfg := breaker.Config{
			FailureThreshold: pc.FailureThreshold,
			ResetTimeout:     secondsToDuration(pc.ResetTimeoutSeconds, breaker.DefaultResetTimeout),
		}
		resilient := llm.NewResilientProvider(inner, breakerCfg, bus, logger, metrics)
		manager.RegisterProvider(resilient, pc.Models)
	}

	classifier := routing.New(routingConfigFrom(cfg.Routing))

	healthTracker := health.New(health.Config{
		DegradedThreshold:    health.DefaultDegradedThreshold,
		UnavailableThreshold: health.DefaultUnavailableThreshold,
		Metrics:              metrics,
	})
	limiter := ratelimit.New()
	registry := skillreg.New(skillreg.Options{
		Logger:            logger,
		HealthTracker:     healthTracker,
		Limiter:           limiter,
		RateOverrides:     rateOverridesFrom(cfg.RateLimit),
		DefaultRatePolicy: defaultRatePolicyFrom(cfg.RateLimit),
		Metrics:           metrics,
	})
	// Concrete skills (note-taking, web search, code execution, ...) are
	// registered by the deployment embedding this core; the core itself
	// only owns the registration/invocation contract.

	confirmations := confirm.New(confirm.Config{
		TokenTTL:       secondsToDuration(cfg.Confirmation.TokenTTLSeconds, confirm.DefaultTokenTTL),
		AbuseWindow:    secondsToDuration(cfg.Confirmation.AbuseWindowSeconds, confirm.DefaultAbuseWindow),
		AbuseThreshold: intOrDefault(cfg.Confirmation.AbuseThreshold, confirm.DefaultAbuseThreshold),
		Bus:            bus,
		Metrics:        metrics,
	})

	tracker := usage.New(usage.Config{
		RateTable:           rateTableFrom(cfg.Usage.RateTable),
		DailyAlertThreshold: cfg.Usage.DailyAlertThreshold,
		Bus:                 bus,
		Metrics:             metrics,
	})

	bus.Subscribe("alert.system.*", func(evt models.Event) {
		if evt.EventType == "alert.system.llm_failure" {
			metrics.RecordBreakerTrip(evt.Source)
		}
	})

	orch := orchestrator.New(orchestrator.Config{
		Classifier:      classifier,
		ProviderManager: manager,
		Registry:        registry,
		Confirmations:   confirmations,
		Usage:           tracker,
		Recorder:        store,
		Logger:          logger,
		Metrics:         metrics,
		SystemPrompt:    defaultSystemPrompt,
	})

	unsubscribeAlerts := store.SubscribeAlerts(bus)
	_ = unsubscribeAlerts // store owns its own subscription lifetime for the process lifetime

	return &app{
		cfg:          cfg,
		logger:       logger,
		bus:          bus,
		metrics:      metrics,
		store:        store,
		manager:      manager,
		registry:     registry,
		orchestrator: orch,
	}, nil
}

const defaultSystemPrompt = "You are a helpful assistant with access to a set of tools. Use them when they help answer the user's request, and explain destructive actions before taking them."

func buildProvider(ctx context.Context, pc config.ProviderConfig) (llm.Provider, error) {
	switch pc.Kind {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		})
	case "openai":
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		})
	case "google":
		return providers.NewGoogleProvider(ctx, providers.GoogleConfig{
			APIKey:       pc.APIKey,
			DefaultModel: pc.DefaultModel,
		})
	case "bedrock":
		return providers.NewBedrockProvider(ctx, providers.BedrockConfig{
			Region:          pc.Region,
			AccessKeyID:     pc.AccessKeyID,
			SecretAccessKey: pc.SecretAccessKey,
			DefaultModel:    pc.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("unknown provider kind %q", pc.Kind)
	}
}

func tierModelsFromConfig(raw map[string]string) map[models.Tier]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[models.Tier]string, len(raw))
	for k, v := range raw {
		out[models.Tier(k)] = v
	}
	return out
}

func routingConfigFrom(rc config.RoutingConfig) routing.Config {
	cfg := routing.DefaultConfig()
	if len(rc.HeavyTools) > 0 {
		heavy := make(map[string]bool, len(rc.HeavyTools))
		for _, name := range rc.HeavyTools {
			heavy[strings.ToLower(name)] = true
		}
		cfg.HeavyTools = heavy
	}
	if rc.HeavyMessageLength > 0 {
		cfg.HeavyMessageLength = rc.HeavyMessageLength
	}
	return cfg
}

func rateOverridesFrom(rl config.RateLimitConfig) map[string]ratelimit.Policy {
	_ = rl // per-skill overrides are supplied by the deployment registering skills
	return nil
}

// defaultRatePolicyFrom turns the configured default_max/default_window_seconds
// into the registry's fallback rate-limit policy, applied to any skill
// without a per-skill override. Zero/unset fields fall back to
// skillreg.DefaultSkillRateLimit.
func defaultRatePolicyFrom(rl config.RateLimitConfig) ratelimit.Policy {
	return ratelimit.Policy{
		Max:    rl.DefaultMax,
		Window: secondsToDuration(rl.DefaultWindowSeconds, 0),
	}
}

func rateTableFrom(raw map[string]config.RateEntry) map[string]usage.Rate {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]usage.Rate, len(raw))
	for k, v := range raw {
		out[k] = usage.Rate{Input: v.Input, Output: v.Output}
	}
	return out
}

func secondsToDuration(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func intOrDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
