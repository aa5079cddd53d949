// Package usage implements per-day, per-(provider,model,tier) token
// accounting with cost estimation and spend-threshold alerting.
package usage

import (
	"sync"
	"time"

	"github.com/agentturn/core/internal/eventbus"
	"github.com/agentturn/core/internal/observability"
	"github.com/agentturn/core/pkg/models"
)

const (
	defaultMaxCount = 10000
)

// Rate is the per-million-token price for a model.
type Rate struct {
	Input  float64
	Output float64
}

// Estimate computes the cost of in/out token counts against this rate.
func (r Rate) Estimate(in, out int64) float64 {
	return (float64(in)/1_000_000)*r.Input + (float64(out)/1_000_000)*r.Output
}

// Config tunes a Tracker.
type Config struct {
	RateTable            map[string]Rate // keyed by "provider:model"
	DailyAlertThreshold  float64         // 0 disables
	MaxCount             int
	Bus                  *eventbus.Bus
	Metrics              *observability.Metrics
}

// summary is a per-key running total.
type summary struct {
	provider string
	model    string
	inTokens int64
	outTokens int64
	requests int
	cost     float64
	hasCost  bool
}

// Tracker tracks usage for the current calendar day, bounded to maxCount
// records, with a hard day rollover that resets the alert flag.
type Tracker struct {
	cfg Config

	mu          sync.RWMutex
	records     []models.UsageRecord
	totals      map[string]*summary // "provider:model"
	byTier      map[models.Tier]map[string]*summary
	day         string
	alertFired  bool
}

// New creates a Tracker. cfg.Bus may be nil (alerts are skipped silently).
func New(cfg Config) *Tracker {
	if cfg.MaxCount <= 0 {
		cfg.MaxCount = defaultMaxCount
	}
	return &Tracker{
		cfg:    cfg,
		totals: make(map[string]*summary),
		byTier: make(map[models.Tier]map[string]*summary),
		day:    currentDay(),
	}
}

func currentDay() string {
	return time.Now().Format("2006-01-02")
}

// Track records one usage observation, computing cost if the rate table has
// an entry for provider:model, and firing the daily cost alert at most once
// per day when the threshold is first crossed.
func (t *Tracker) Track(provider, model string, tier models.Tier, in, out *int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverIfNeeded()

	rec := models.UsageRecord{
		Provider:     provider,
		Model:        model,
		Tier:         tier,
		InputTokens:  in,
		OutputTokens: out,
		Timestamp:    time.Now(),
	}

	key := provider + ":" + model
	if rate, ok := t.cfg.RateTable[key]; ok && (in != nil || out != nil) {
		var i, o int64
		if in != nil {
			i = *in
		}
		if out != nil {
			o = *out
		}
		cost := rate.Estimate(i, o)
		rec.EstimatedCost = &cost
		if t.cfg.Metrics != nil {
			t.cfg.Metrics.RecordLLMCost(provider, model, cost)
		}
	}

	t.records = append(t.records, rec)
	t.addToSummary(t.totals, key, provider, model, rec)
	if tier != "" {
		if t.byTier[tier] == nil {
			t.byTier[tier] = make(map[string]*summary)
		}
		t.addToSummary(t.byTier[tier], key, provider, model, rec)
	}

	t.prune()
	t.maybeAlert()
}

func (t *Tracker) addToSummary(m map[string]*summary, key, provider, model string, rec models.UsageRecord) {
	s := m[key]
	if s == nil {
		s = &summary{provider: provider, model: model}
		m[key] = s
	}
	if rec.InputTokens != nil {
		s.inTokens += *rec.InputTokens
	}
	if rec.OutputTokens != nil {
		s.outTokens += *rec.OutputTokens
	}
	s.requests++
	if rec.EstimatedCost != nil {
		s.cost += *rec.EstimatedCost
		s.hasCost = true
	}
}

// rolloverIfNeeded clears all totals and the alert flag when the calendar
// day has changed since the tracker was last touched.
func (t *Tracker) rolloverIfNeeded() {
	today := currentDay()
	if today == t.day {
		return
	}
	t.day = today
	t.alertFired = false
	t.records = nil
	t.totals = make(map[string]*summary)
	t.byTier = make(map[models.Tier]map[string]*summary)
}

// prune enforces the hard record-count cap (day rollover already bounds by
// calendar day).
func (t *Tracker) prune() {
	if len(t.records) > t.cfg.MaxCount {
		t.records = t.records[len(t.records)-t.cfg.MaxCount:]
	}
}

func (t *Tracker) maybeAlert() {
	if t.cfg.DailyAlertThreshold <= 0 || t.alertFired || t.cfg.Bus == nil {
		return
	}
	total := t.dailyTotalCostLocked()
	if total == nil || *total < t.cfg.DailyAlertThreshold {
		return
	}
	t.alertFired = true
	t.cfg.Bus.Publish(models.Event{
		EventType: "alert.system.llm_cost",
		Source:    "usage_tracker",
		Severity:  models.SeverityMedium,
		Payload:   map[string]any{"daily_total_cost": *total, "threshold": t.cfg.DailyAlertThreshold},
	})
}

func (t *Tracker) dailyTotalCostLocked() *float64 {
	var total float64
	var sawCost bool
	for _, s := range t.totals {
		if s.hasCost {
			total += s.cost
			sawCost = true
		}
	}
	if !sawCost {
		return nil
	}
	return &total
}

// DailySummaryEntry is one row of DailySummary.
type DailySummaryEntry struct {
	Provider string
	Model    string
	In       int64
	Out      int64
	Requests int
	Cost     *float64
}

// DailySummary returns per-(provider,model) totals for the current day.
func (t *Tracker) DailySummary() []DailySummaryEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return summariesToEntries(t.totals)
}

// DailyTotalCost returns the total estimated cost across all records today,
// or nil if no record had a computable cost.
func (t *Tracker) DailyTotalCost() *float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dailyTotalCostLocked()
}

// DailyByTier returns per-tier breakdowns of the per-(provider,model)
// summary, supplementing spec §4.3 with a third grouping key.
func (t *Tracker) DailyByTier() map[models.Tier][]DailySummaryEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[models.Tier][]DailySummaryEntry, len(t.byTier))
	for tier, m := range t.byTier {
		out[tier] = summariesToEntries(m)
	}
	return out
}

func summariesToEntries(m map[string]*summary) []DailySummaryEntry {
	out := make([]DailySummaryEntry, 0, len(m))
	for _, s := range m {
		entry := DailySummaryEntry{Provider: s.provider, Model: s.model, In: s.inTokens, Out: s.outTokens, Requests: s.requests}
		if s.hasCost {
			cost := s.cost
			entry.Cost = &cost
		}
		out = append(out, entry)
	}
	return out
}
