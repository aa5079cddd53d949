package observability

import (
	"context"
	"log/slog"
)

// ContextKey is the type used for context keys carrying correlation IDs
// through a turn so every log line for that turn can be joined later.
type ContextKey string

const (
	TurnIDKey    ContextKey = "turn_id"
	UserIDKey    ContextKey = "user_id"
	ChannelIDKey ContextKey = "channel_id"
)

// AddTurnID attaches a turn ID to ctx.
func AddTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, TurnIDKey, turnID)
}

// AddUserID attaches a user ID to ctx.
func AddUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// AddChannelID attaches a channel ID to ctx.
func AddChannelID(ctx context.Context, channelID string) context.Context {
	return context.WithValue(ctx, ChannelIDKey, channelID)
}

// FromContext returns logger with request/user/channel correlation fields
// attached, when present in ctx. Pass the result to slog calls so every
// line for this turn carries the same correlation IDs.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if turnID, ok := ctx.Value(TurnIDKey).(string); ok && turnID != "" {
		logger = logger.With("turn_id", turnID)
	}
	if userID, ok := ctx.Value(UserIDKey).(string); ok && userID != "" {
		logger = logger.With("user_id", userID)
	}
	if channelID, ok := ctx.Value(ChannelIDKey).(string); ok && channelID != "" {
		logger = logger.With("channel_id", channelID)
	}
	return logger
}
