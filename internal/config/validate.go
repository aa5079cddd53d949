package config

import (
	"fmt"
	"strings"
)

// Validate reports every missing or inconsistent piece of required
// configuration, following spec §6: "startup validation prints missing
// config and exits non-zero". A nil return means cfg is usable as-is.
func (c *Config) Validate() error {
	var problems []string

	if len(c.Providers) == 0 {
		problems = append(problems, "providers: at least one provider must be configured")
	}
	byName := make(map[string]ProviderConfig, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			problems = append(problems, fmt.Sprintf("providers[%d]: name is required", i))
			continue
		}
		if p.Kind == "" {
			problems = append(problems, fmt.Sprintf("providers[%s]: kind is required", p.Name))
		}
		if len(p.Models) == 0 {
			problems = append(problems, fmt.Sprintf("providers[%s]: at least one model is required", p.Name))
		}
		byName[p.Name] = p
	}

	if c.Routing.DefaultProvider == "" {
		problems = append(problems, "routing.default_provider is required")
	} else if _, ok := byName[c.Routing.DefaultProvider]; !ok && len(c.Providers) > 0 {
		problems = append(problems, fmt.Sprintf("routing.default_provider %q is not a configured provider", c.Routing.DefaultProvider))
	}
	if c.Routing.DefaultModel == "" {
		problems = append(problems, "routing.default_model is required")
	}
	for _, name := range c.Routing.FailoverChain {
		if _, ok := byName[name]; !ok {
			problems = append(problems, fmt.Sprintf("routing.failover_chain references unconfigured provider %q", name))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
}
