// Package eventbus implements an in-process publish/subscribe bus with
// glob-pattern (single dotted segment) subscriptions, used to carry alerts
// and internal signals between components that must not import each other.
package eventbus

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agentturn/core/pkg/models"
)

// Handler receives a published event. Handlers must not block for long;
// they run sequentially within one publish.
type Handler func(models.Event)

type subscription struct {
	id      uint64
	pattern string
	segments []string
	handler Handler
}

// Bus is an in-process event bus. Safe for concurrent use.
type Bus struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   []*subscription
}

// New creates an empty Bus. logger may be nil (defaults to slog.Default()).
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers handler against pattern, a dotted string where `*`
// matches exactly one segment. Returns an unsubscribe function.
func (b *Bus) Subscribe(pattern string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	sub := &subscription{
		id:       id,
		pattern:  pattern,
		segments: strings.Split(pattern, "."),
		handler:  handler,
	}
	b.subs = append(b.subs, sub)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish dispatches event sequentially to every matching subscriber, in
// subscription order. Handler panics/errors never propagate to the caller;
// handlers here are plain funcs so only panics are guarded against.
// If event.EventID is empty, a compact time-sortable id is generated.
func (b *Bus) Publish(event models.Event) {
	if event.EventID == "" {
		event.EventID = NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	matching := make([]*subscription, 0, len(b.subs))
	eventSegments := strings.Split(event.EventType, ".")
	for _, s := range b.subs {
		if matches(s.segments, eventSegments) {
			matching = append(matching, s)
		}
	}
	b.mu.Unlock()

	for _, s := range matching {
		b.dispatch(s, event)
	}
}

func (b *Bus) dispatch(s *subscription, event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("event handler panicked",
				slog.String("pattern", s.pattern),
				slog.String("event_type", event.EventType),
				slog.Any("recover", r))
		}
	}()
	s.handler(event)
}

// matches reports whether eventSegments satisfies pattern segments, where
// "*" matches exactly one segment. Segment counts must be equal.
func matches(pattern, event []string) bool {
	if len(pattern) != len(event) {
		return false
	}
	for i, p := range pattern {
		if p == "*" {
			continue
		}
		if p != event[i] {
			return false
		}
	}
	return true
}

// NewEventID generates a compact time-sortable id: base36 millis + 8 hex
// bytes of randomness.
func NewEventID() string {
	millis := time.Now().UnixMilli()
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return strconv.FormatInt(millis, 36) + "-" + hex.EncodeToString(buf[:])
}
