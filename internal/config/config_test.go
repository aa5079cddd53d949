package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestLoadResolvesIncludesAndEnvExpansion(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("AGENTTURN_TEST_KEY", "sk-test-123")
	defer os.Unsetenv("AGENTTURN_TEST_KEY")

	writeTempFile(t, dir, "providers.yaml", `
providers:
  - name: A
    kind: anthropic
    api_key: "${AGENTTURN_TEST_KEY}"
    models: ["model-a"]
`)
	main := writeTempFile(t, dir, "main.yaml", `
$include: providers.yaml
routing:
  default_provider: A
  default_model: model-a
`)

	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0].APIKey != "sk-test-123" {
		t.Fatalf("unexpected providers: %+v", cfg.Providers)
	}
	if cfg.Routing.DefaultProvider != "A" {
		t.Fatalf("unexpected routing: %+v", cfg.Routing)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "a.yaml", "$include: b.yaml\n")
	bPath := writeTempFile(t, dir, "b.yaml", "$include: a.yaml\n")
	_ = bPath

	_, err := Load(filepath.Join(dir, "a.yaml"))
	if err == nil {
		t.Fatalf("expected include cycle error")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "bad.yaml", "not_a_real_field: true\n")

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected decode error for unknown field")
	}
}

func TestValidateReportsMissingFields(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error for empty config")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := &Config{
		Providers: []ProviderConfig{{Name: "A", Kind: "anthropic", Models: []string{"m"}}},
		Routing:   RoutingConfig{DefaultProvider: "A", DefaultModel: "m"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
