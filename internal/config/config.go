// Package config loads and validates the core's YAML configuration:
// provider credentials, routing/tier defaults, rate limits, confirmation
// policy, and usage rate tables.
package config

// Config is the root configuration document.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Providers    []ProviderConfig   `yaml:"providers"`
	Routing      RoutingConfig      `yaml:"routing"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Confirmation ConfirmationConfig `yaml:"confirmation"`
	Usage        UsageConfig        `yaml:"usage"`
}

// ServerConfig configures ambient server concerns.
type ServerConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	HealthPort  int    `yaml:"health_port"`
	StoragePath string `yaml:"storage_path"`
}

// ProviderConfig configures one concrete LM backend.
type ProviderConfig struct {
	Name            string   `yaml:"name"`
	Kind            string   `yaml:"kind"` // anthropic | openai | google | bedrock
	APIKey          string   `yaml:"api_key"`
	BaseURL         string   `yaml:"base_url"`
	Region          string   `yaml:"region"`
	AccessKeyID     string   `yaml:"access_key_id"`
	SecretAccessKey string   `yaml:"secret_access_key"`
	Models          []string `yaml:"models"`
	DefaultModel    string   `yaml:"default_model"`

	FailureThreshold   int `yaml:"failure_threshold"`
	ResetTimeoutSeconds int `yaml:"reset_timeout_seconds"`
}

// RoutingConfig configures the ProviderManager and TierClassifier.
type RoutingConfig struct {
	DefaultProvider    string            `yaml:"default_provider"`
	DefaultModel       string            `yaml:"default_model"`
	FailoverChain      []string          `yaml:"failover_chain"`
	HeavyTools         []string          `yaml:"heavy_tools"`
	HeavyMessageLength int               `yaml:"heavy_message_length"`
	TierModels         map[string]string `yaml:"tier_models"`
}

// RateLimitConfig sets the default per-skill rate-limit policy.
type RateLimitConfig struct {
	DefaultMax           int `yaml:"default_max"`
	DefaultWindowSeconds int `yaml:"default_window_seconds"`
}

// ConfirmationConfig tunes the confirmation manager.
type ConfirmationConfig struct {
	TokenTTLSeconds    int `yaml:"token_ttl_seconds"`
	AbuseWindowSeconds int `yaml:"abuse_window_seconds"`
	AbuseThreshold     int `yaml:"abuse_threshold"`
}

// RateEntry is the per-million-token price for one model.
type RateEntry struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// UsageConfig tunes the usage tracker.
type UsageConfig struct {
	DailyAlertThreshold float64              `yaml:"daily_alert_threshold"`
	RateTable           map[string]RateEntry `yaml:"rate_table"`
}
