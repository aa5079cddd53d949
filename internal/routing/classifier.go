// Package routing implements the tier classifier (spec §4.5): a light/heavy
// classification of a turn from message shape, plus the mid-turn escalation
// contract used when a light-tier run attempts a heavy tool.
package routing

import (
	"regexp"
	"strings"

	"github.com/agentturn/core/pkg/models"
)

// Config tunes a Classifier's heuristics.
type Config struct {
	HeavyTools         map[string]bool
	HeavyPatterns      []*regexp.Regexp
	HeavyMessageLength int
}

const defaultHeavyMessageLength = 2000

// DefaultConfig returns sane defaults: a small set of reasoning/code
// patterns and a 2000-character length threshold, mirroring the teacher's
// heuristic classifier (codeRegex/reasonRegex/markdownCode).
func DefaultConfig() Config {
	return Config{
		HeavyTools: map[string]bool{},
		HeavyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)```[a-z]*\n`),
			regexp.MustCompile(`(?i)\b(architecture|refactor|design|prove|derive|analy[sz]e)\b`),
			regexp.MustCompile(`(?i)\bstep[- ]by[- ]step\b`),
		},
		HeavyMessageLength: defaultHeavyMessageLength,
	}
}

// Classification is the result of classifying one message.
type Classification struct {
	Tier   models.Tier
	Reason string
}

// Classifier classifies a message into a Tier using length and pattern
// heuristics (spec §4.5).
type Classifier struct {
	cfg Config
}

// New constructs a Classifier from cfg.
func New(cfg Config) *Classifier {
	if cfg.HeavyMessageLength <= 0 {
		cfg.HeavyMessageLength = defaultHeavyMessageLength
	}
	if cfg.HeavyTools == nil {
		cfg.HeavyTools = map[string]bool{}
	}
	return &Classifier{cfg: cfg}
}

// Classify returns heavy if the message exceeds the configured length or
// matches any heavy pattern (case-insensitive), else light.
func (c *Classifier) Classify(message string) Classification {
	if len(message) > c.cfg.HeavyMessageLength {
		return Classification{Tier: models.TierHeavy, Reason: "message exceeds heavy length threshold"}
	}
	for _, pattern := range c.cfg.HeavyPatterns {
		if pattern.MatchString(message) {
			return Classification{Tier: models.TierHeavy, Reason: "matched heavy pattern: " + pattern.String()}
		}
	}
	return Classification{Tier: models.TierLight, Reason: "default"}
}

// ShouldEscalate reports whether toolName belongs to the heavy-tool set,
// meaning a light-tier run invoking it should trigger mid-turn escalation.
func (c *Classifier) ShouldEscalate(toolName string) bool {
	return c.cfg.HeavyTools[strings.ToLower(toolName)]
}
