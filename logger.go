package eventstore

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Logger is the minimal logging interface used by stores and projectors.
// The variadic arguments are key value pairs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

// Debug implements Logger.
func (NoOpLogger) Debug(context.Context, string, ...any) {}

// Info implements Logger.
func (NoOpLogger) Info(context.Context, string, ...any) {}

// Error implements Logger.
func (NoOpLogger) Error(context.Context, string, ...any) {}

// StdLogger writes key=value lines through a standard library logger.
type StdLogger struct {
	// Logger defaults to log.Default() when nil.
	Logger *log.Logger
	// Verbose enables Debug output.
	Verbose bool
}

// Debug implements Logger.
func (l StdLogger) Debug(_ context.Context, msg string, keyvals ...any) {
	if l.Verbose {
		l.output("DEBUG", msg, keyvals)
	}
}

// Info implements Logger.
func (l StdLogger) Info(_ context.Context, msg string, keyvals ...any) {
	l.output("INFO", msg, keyvals)
}

// Error implements Logger.
func (l StdLogger) Error(_ context.Context, msg string, keyvals ...any) {
	l.output("ERROR", msg, keyvals)
}

func (l StdLogger) output(level, msg string, keyvals []any) {
	logger := l.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Print(formatLine(level, msg, keyvals))
}

func formatLine(level, msg string, keyvals []any) string {
	var b strings.Builder
	b.WriteString(level)
	b.WriteByte(' ')
	b.WriteString(msg)
	for i := 0; i < len(keyvals); i += 2 {
		b.WriteByte(' ')
		b.WriteString(fmt.Sprint(keyvals[i]))
		b.WriteByte('=')
		if i+1 < len(keyvals) {
			b.WriteString(fmt.Sprint(keyvals[i+1]))
		} else {
			b.WriteString("MISSING")
		}
	}
	return b.String()
}

// OrNoOp returns logger, or NoOpLogger when logger is nil.
func OrNoOp(logger Logger) Logger {
	if logger == nil {
		return NoOpLogger{}
	}
	return logger
}
