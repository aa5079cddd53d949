// Package confirm implements the confirmation manager (spec §4.8): it mints
// single-use, time-bounded, user-scoped tokens for destructive tool calls
// and detects repeated invalid consumption attempts as abuse.
package confirm

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/agentturn/core/internal/eventbus"
	"github.com/agentturn/core/internal/observability"
	"github.com/agentturn/core/pkg/models"
)

const (
	DefaultTokenTTL      = 5 * time.Minute
	DefaultAbuseWindow   = 5 * time.Minute
	DefaultAbuseThreshold = 10

	// tokenBytes is chosen so the base32-encoded token carries >= 80 bits
	// of randomness (10 bytes = 80 bits exactly).
	tokenBytes = 10
)

var confirmMessagePattern = regexp.MustCompile(`(?i)^\s*confirm\s+([A-Z2-7]+)\s*$`)

// tokenShapePattern matches a bare confirmation token (RFC 4648 base32,
// no padding, >=16 chars) appearing anywhere in text, used to detect that a
// skill's reply embeds a pending confirmation prompt.
var tokenShapePattern = regexp.MustCompile(`[A-Z2-7]{16,}`)

// ContainsToken reports whether s embeds a confirmation-token-shaped
// substring, which the Orchestrator uses to flag a reply as awaiting
// confirmation without needing the skill to signal it out of band.
func ContainsToken(s string) bool {
	return tokenShapePattern.MatchString(s)
}

// PendingAction is a stored destructive action awaiting confirmation.
type PendingAction struct {
	Token       string
	UserID      string
	Skill       string
	Tool        string
	Input       json.RawMessage
	Description string
	TempDir     string
	ExpiresAt   time.Time
}

type abuseState struct {
	attempts    int
	windowStart time.Time
}

// Config tunes token TTL and abuse detection.
type Config struct {
	TokenTTL       time.Duration
	AbuseWindow    time.Duration
	AbuseThreshold int
	Bus            *eventbus.Bus
	Metrics        *observability.Metrics
}

// DefaultConfig returns the spec default thresholds.
func DefaultConfig() Config {
	return Config{
		TokenTTL:       DefaultTokenTTL,
		AbuseWindow:    DefaultAbuseWindow,
		AbuseThreshold: DefaultAbuseThreshold,
	}
}

func (c Config) sanitize() Config {
	if c.TokenTTL <= 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.AbuseWindow <= 0 {
		c.AbuseWindow = DefaultAbuseWindow
	}
	if c.AbuseThreshold <= 0 {
		c.AbuseThreshold = DefaultAbuseThreshold
	}
	return c
}

// Manager mints and consumes confirmation tokens. Safe for concurrent use.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	pending map[string]*PendingAction
	abuse   map[string]*abuseState
}

// New constructs a Manager with cfg (zero values fall back to defaults).
func New(cfg Config) *Manager {
	return &Manager{
		cfg:     cfg.sanitize(),
		pending: make(map[string]*PendingAction),
		abuse:   make(map[string]*abuseState),
	}
}

// Create mints a token for a pending destructive action and stores it.
func (m *Manager) Create(userID, skill, tool string, input json.RawMessage, description, tempDir string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[token] = &PendingAction{
		Token:       token,
		UserID:      userID,
		Skill:       skill,
		Tool:        tool,
		Input:       input,
		Description: description,
		TempDir:     tempDir,
		ExpiresAt:   time.Now().Add(m.cfg.TokenTTL),
	}
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordConfirmation("issued")
	}
	return token, nil
}

// Consume atomically removes and returns the PendingAction for token if it
// is live, unexpired, and owned by userID; otherwise records an invalid
// attempt and returns nil.
func (m *Manager) Consume(token, userID string) *PendingAction {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.abuseThresholdExceededLocked(userID) {
		m.recordOutcome("abuse_blocked")
		return nil
	}

	action, ok := m.pending[token]
	if !ok {
		m.recordInvalidAttemptLocked(userID)
		m.recordOutcome("invalid")
		return nil
	}
	if time.Now().After(action.ExpiresAt) {
		delete(m.pending, token)
		m.recordInvalidAttemptLocked(userID)
		m.recordOutcome("expired")
		return nil
	}
	if action.UserID != userID {
		m.recordInvalidAttemptLocked(userID)
		m.recordOutcome("denied")
		return nil
	}

	delete(m.pending, token)
	m.recordOutcome("confirmed")
	return action
}

func (m *Manager) recordOutcome(outcome string) {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordConfirmation(outcome)
	}
}

func (m *Manager) abuseThresholdExceededLocked(userID string) bool {
	st := m.abuse[userID]
	if st == nil {
		return false
	}
	if time.Since(st.windowStart) > m.cfg.AbuseWindow {
		return false
	}
	return st.attempts >= m.cfg.AbuseThreshold
}

func (m *Manager) recordInvalidAttemptLocked(userID string) {
	st := m.abuse[userID]
	if st == nil || time.Since(st.windowStart) > m.cfg.AbuseWindow {
		st = &abuseState{windowStart: time.Now()}
		m.abuse[userID] = st
	}
	st.attempts++
	if st.attempts == m.cfg.AbuseThreshold && m.cfg.Bus != nil {
		m.cfg.Bus.Publish(models.Event{
			EventType: "alert.system.abuse",
			Source:    "confirmation_manager",
			Severity:  models.SeverityHigh,
			Payload:   map[string]any{"user_id": userID, "attempts": st.attempts},
		})
	}
}

// IsConfirmationMessage reports whether s is a "confirm <TOKEN>" message and
// returns the extracted token.
func IsConfirmationMessage(s string) (token string, ok bool) {
	match := confirmMessagePattern.FindStringSubmatch(s)
	if match == nil {
		return "", false
	}
	return strings.ToUpper(match[1]), true
}

// Cleanup prunes expired tokens. Callers should invoke this periodically;
// Consume also prunes lazily on encountering an expired token.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for token, action := range m.pending {
		if now.After(action.ExpiresAt) {
			delete(m.pending, token)
		}
	}
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}
