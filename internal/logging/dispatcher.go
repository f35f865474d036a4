package logging

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// badKey holds a trailing value that has no key, as slog does.
const badKey = "!BADKEY"

// DispatcherLogger writes command dispatcher events through the CLI's zerolog
// logger. Errors land under their key as strings and durations in milliseconds.
type DispatcherLogger struct {
	logger zerolog.Logger
}

// NewDispatcherLogger wraps logger for the dispatcher.
func NewDispatcherLogger(logger zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger}
}

func (l *DispatcherLogger) Debug(msg string, keysAndValues ...any) {
	write(l.logger.Debug(), msg, keysAndValues)
}

func (l *DispatcherLogger) Info(msg string, keysAndValues ...any) {
	write(l.logger.Info(), msg, keysAndValues)
}

func (l *DispatcherLogger) Error(msg string, keysAndValues ...any) {
	write(l.logger.Error(), msg, keysAndValues)
}

func write(e *zerolog.Event, msg string, kv []any) {
	if e == nil {
		return // level disabled
	}
	for i := 0; i < len(kv); i += 2 {
		if i+1 == len(kv) {
			e = e.Interface(badKey, kv[i])
			break
		}
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		switch v := kv[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		case fmt.Stringer:
			e = e.Stringer(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}
