package routing

import (
	"strings"
	"testing"

	"github.com/agentturn/core/pkg/models"
)

func TestClassifyLightByDefault(t *testing.T) {
	c := New(DefaultConfig())
	got := c.Classify("hello there")
	if got.Tier != models.TierLight {
		t.Fatalf("expected light tier, got %s", got.Tier)
	}
}

func TestClassifyHeavyByLength(t *testing.T) {
	c := New(Config{HeavyMessageLength: 10})
	got := c.Classify(strings.Repeat("a", 20))
	if got.Tier != models.TierHeavy {
		t.Fatalf("expected heavy tier by length, got %s", got.Tier)
	}
}

func TestClassifyHeavyByPattern(t *testing.T) {
	c := New(DefaultConfig())
	got := c.Classify("Please refactor this module step by step")
	if got.Tier != models.TierHeavy {
		t.Fatalf("expected heavy tier by pattern, got %s", got.Tier)
	}
}

func TestShouldEscalate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeavyTools["deep_research"] = true
	c := New(cfg)
	if !c.ShouldEscalate("deep_research") {
		t.Fatalf("expected escalation for heavy tool")
	}
	if c.ShouldEscalate("note_list") {
		t.Fatalf("expected no escalation for light tool")
	}
}
