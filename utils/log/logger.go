package log

import (
	"context"
	"os"

	"go.uber.org/zap"
)

var logger *zap.Logger

type ctxKey string

const (
	sessionIDKey  ctxKey = "session_id"
	remoteAddrKey ctxKey = "remote_addr"
	channelKey    ctxKey = "channel"
)

func init() {
	if os.Getenv("DEBUG") == "true" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
}

// WithSession tags ctx with the conversation it belongs to and the front end
// channel ("websocket", "telegram") serving it.
func WithSession(ctx context.Context, sessionID, channel string) context.Context {
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	return context.WithValue(ctx, channelKey, channel)
}

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey, addr)
}

func WithCtx(ctx context.Context) *zap.Logger {
	fields := []zap.Field{}

	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		fields = append(fields, zap.String("session_id", v))
	}
	if v, ok := ctx.Value(channelKey).(string); ok {
		fields = append(fields, zap.String("channel", v))
	}
	if v, ok := ctx.Value(remoteAddrKey).(string); ok {
		fields = append(fields, zap.String("remote_addr", v))
	}

	return logger.With(fields...)
}

func With(fields ...zap.Field) *zap.Logger {
	return logger.With(fields...)
}

// Sync flushes buffered entries; call it before the process exits.
func Sync() {
	_ = logger.Sync()
}
