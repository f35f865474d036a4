package logging

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, appName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", appName, sessionStart.Format("20060102_150405")),
	)
}

type ctxKey int

const (
	missionKey ctxKey = iota
	positionKey
	requestKey
)

// WithMission tags ctx with the mission being worked on.
func WithMission(ctx context.Context, missionID uint) context.Context {
	return context.WithValue(ctx, missionKey, missionID)
}

// WithPosition tags ctx with the hardpoint being worked on.
func WithPosition(ctx context.Context, position string) context.Context {
	return context.WithValue(ctx, positionKey, position)
}

// WithRequestID tags ctx with a correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestKey, id)
}

// RequestID returns the correlation id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestKey).(string)
	return id
}

// MissionAttrs is the default ContextProvider: it emits the mission, position and
// request id carried by ctx.
func MissionAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	if id, ok := ctx.Value(missionKey).(uint); ok {
		attrs = append(attrs, slog.Uint64("mission", uint64(id)))
	}
	if pos, ok := ctx.Value(positionKey).(string); ok {
		attrs = append(attrs, slog.String("position", pos))
	}
	if rid, ok := ctx.Value(requestKey).(string); ok {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	return attrs
}
