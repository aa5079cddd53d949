package skillreg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/agentturn/core/internal/health"
	"github.com/agentturn/core/internal/observability"
	"github.com/agentturn/core/internal/ratelimit"
)

const DefaultToolTimeout = 30 * time.Second

// DefaultSkillRateLimit is applied to any skill without an explicit
// override, when Options.DefaultRatePolicy is not set (spec §4.7:
// "defaults: 30-100 requests per 60-3,600s depending on skill").
var DefaultSkillRateLimit = ratelimit.Policy{Max: 60, Window: time.Minute}

type registeredTool struct {
	def      ToolDefinition
	skill    string
	validator *compiledSchema
}

// Registry is the skill registry and tool dispatcher. The zero value is not
// usable; construct with New.
type Registry struct {
	logger        *slog.Logger
	healthTracker *health.Tracker
	limiter       *ratelimit.Limiter
	rateOverrides map[string]ratelimit.Policy
	defaultPolicy ratelimit.Policy
	toolTimeout   time.Duration
	metrics       *observability.Metrics

	mu      sync.RWMutex
	skills  map[string]Skill
	tools   map[string]*registeredTool // by tool name
}

// Options configures a Registry.
type Options struct {
	Logger        *slog.Logger
	HealthTracker *health.Tracker
	Limiter       *ratelimit.Limiter
	RateOverrides map[string]ratelimit.Policy
	// DefaultRatePolicy is applied to any skill without an entry in
	// RateOverrides. Zero value falls back to DefaultSkillRateLimit.
	DefaultRatePolicy ratelimit.Policy
	ToolTimeout       time.Duration
	Metrics           *observability.Metrics
}

// New constructs an empty Registry.
func New(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HealthTracker == nil {
		opts.HealthTracker = health.New(health.DefaultConfig())
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New()
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = DefaultToolTimeout
	}
	if opts.DefaultRatePolicy.Max <= 0 || opts.DefaultRatePolicy.Window <= 0 {
		opts.DefaultRatePolicy = DefaultSkillRateLimit
	}
	return &Registry{
		logger:        opts.Logger,
		healthTracker: opts.HealthTracker,
		limiter:       opts.Limiter,
		rateOverrides: opts.RateOverrides,
		defaultPolicy: opts.DefaultRatePolicy,
		toolTimeout:   opts.ToolTimeout,
		metrics:       opts.Metrics,
		skills:        make(map[string]Skill),
		tools:         make(map[string]*registeredTool),
	}
}

// Register adds skill to the registry after validating that every entry in
// skill.RequiredConfig() is present in availableConfig, and that none of its
// tool names collide with an already-registered tool.
func (r *Registry) Register(skill Skill, availableConfig map[string]bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := skill.Name()
	if _, exists := r.skills[name]; exists {
		return fmt.Errorf("skillreg: skill %q already registered", name)
	}

	for _, req := range skill.RequiredConfig() {
		if !availableConfig[req] {
			return fmt.Errorf("skillreg: skill %q missing required config %q", name, req)
		}
	}

	tools := skill.Tools()
	compiled := make(map[string]*registeredTool, len(tools))
	for _, t := range tools {
		if _, exists := r.tools[t.Name]; exists {
			return fmt.Errorf("skillreg: tool %q already registered by another skill", t.Name)
		}
		validator, err := compileSchema(t.Name, t.InputSchema)
		if err != nil {
			return err
		}
		compiled[t.Name] = &registeredTool{def: t, skill: name, validator: validator}
	}

	r.skills[name] = skill
	for toolName, rt := range compiled {
		r.tools[toolName] = rt
	}
	return nil
}

// ToolFilters narrows the set returned by ToolDefinitions.
type ToolFilters struct {
	AllowedSkills       map[string]bool // nil means all allowed
	BlockedTools        map[string]bool
	ExcludeMainAgentOnly bool
}

// ToolDefinitions returns every registered tool's definition, narrowed by
// filters.
func (r *Registry) ToolDefinitions(filters ToolFilters) []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolDefinition, 0, len(r.tools))
	for name, rt := range r.tools {
		if filters.AllowedSkills != nil && !filters.AllowedSkills[rt.skill] {
			continue
		}
		if filters.BlockedTools[name] {
			continue
		}
		if filters.ExcludeMainAgentOnly && rt.def.MainAgentOnly {
			continue
		}
		out = append(out, rt.def)
	}
	return out
}

// ToolDefinitionFor returns the registered definition for toolName and the
// skill that owns it.
func (r *Registry) ToolDefinitionFor(toolName string) (def ToolDefinition, skill string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[toolName]
	if !ok {
		return ToolDefinition{}, "", false
	}
	return rt.def, rt.skill, true
}

// executionErrorPrefix marks the one Execute outcome that reflects a
// transient failure inside the underlying skill, as opposed to a policy
// refusal (unknown tool, rate limit, validation, health). Callers that want
// to retry transient tool failures can test for this prefix.
const executionErrorPrefix = "error executing "

// IsExecutionError reports whether result came from a skill.Execute failure
// rather than a dispatch policy refusal.
func IsExecutionError(result string) bool {
	return strings.HasPrefix(result, executionErrorPrefix)
}

// ExecContext carries per-call dispatch context.
type ExecContext struct {
	IsSubagent bool
	UserID     string
}

// Execute runs the dispatch pipeline of spec §4.7 and never returns an
// error for policy/execution failures — those become user-facing strings.
// It only returns an error for programmer-facing misuse (nil context).
func (r *Registry) Execute(ctx context.Context, toolName string, input json.RawMessage, execCtx ExecContext) string {
	r.mu.RLock()
	rt, ok := r.tools[toolName]
	r.mu.RUnlock()

	if !ok {
		return fmt.Sprintf("unknown tool: %q", toolName)
	}

	if rt.def.MainAgentOnly && execCtx.IsSubagent {
		return fmt.Sprintf("Tool %q is restricted to the main agent only.", toolName)
	}

	if r.healthTracker.Status(rt.skill) == health.Unavailable {
		return fmt.Sprintf("skill %q is temporarily unavailable", rt.skill)
	}

	policy := r.defaultPolicy
	if override, ok := r.rateOverrides[rt.skill]; ok {
		policy = override
	}
	rl := r.limiter.Check("skill", rt.skill, policy)
	if !rl.Allowed {
		if r.metrics != nil {
			r.metrics.RecordRateLimitRejected(rt.skill)
		}
		return fmt.Sprintf("rate limit exceeded for skill %q, retry after %s", rt.skill, rl.RetryAfter.Round(time.Second))
	}

	if err := rt.validator.Validate(input); err != nil {
		return fmt.Sprintf("invalid input for tool %q: %v", toolName, err)
	}

	if rt.def.Sensitive {
		r.logger.Info("dispatching sensitive tool", slog.String("tool", toolName), slog.String("keys", inputKeys(input)))
	}

	r.mu.RLock()
	skill := r.skills[rt.skill]
	r.mu.RUnlock()

	callCtx, cancel := context.WithTimeout(ctx, r.toolTimeout)
	defer cancel()

	start := time.Now()
	result, err := skill.Execute(callCtx, toolName, input)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		r.healthTracker.RecordFailure(rt.skill)
		if r.metrics != nil {
			r.metrics.RecordToolExecution(toolName, "error", elapsed)
		}
		return fmt.Sprintf("error executing %s: %s", toolName, err.Error())
	}
	r.healthTracker.RecordSuccess(rt.skill)
	if r.metrics != nil {
		r.metrics.RecordToolExecution(toolName, "ok", elapsed)
	}
	return result
}

// inputKeys returns only the top-level key names of a JSON object, for
// logging sensitive tool calls without leaking values.
func inputKeys(input json.RawMessage) string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(input, &m); err != nil {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	encoded, _ := json.Marshal(keys)
	return string(encoded)
}
