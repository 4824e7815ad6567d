// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-securestore.
//
// go-securestore is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jeremyhahn/go-securestore/pkg/correlation"
)

// SlogAdapter wraps a slog.Logger to implement the Logger interface
type SlogAdapter struct {
	logger *slog.Logger
}

// SlogConfig configures the slog adapter
type SlogConfig struct {
	// Logger is the underlying slog logger. If nil, one is built from
	// Handler or from Format and Output.
	Logger *slog.Logger

	// Handler is the slog handler to use when Logger is nil
	Handler slog.Handler

	// Level is the minimum log level to output
	Level Level

	// Format selects the handler when Handler is nil: "text" or "json"
	Format string

	// Output defaults to os.Stderr
	Output io.Writer
}

// NewSlogAdapter creates a new slog adapter
func NewSlogAdapter(config *SlogConfig) (*SlogAdapter, error) {
	if config == nil {
		config = &SlogConfig{}
	}
	if config.Logger != nil {
		return &SlogAdapter{logger: config.Logger}, nil
	}

	handler := config.Handler
	if handler == nil {
		out := config.Output
		if out == nil {
			out = os.Stderr
		}
		opts := &slog.HandlerOptions{Level: levelToSlogLevel(config.Level)}
		switch strings.ToLower(config.Format) {
		case "", "text":
			handler = slog.NewTextHandler(out, opts)
		case "json":
			handler = slog.NewJSONHandler(out, opts)
		default:
			return nil, fmt.Errorf("logging: unknown format %q", config.Format)
		}
	}
	return &SlogAdapter{logger: slog.New(handler)}, nil
}

// Debug logs a debug message
func (l *SlogAdapter) Debug(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelDebug, msg, fields)
}

// Info logs an informational message
func (l *SlogAdapter) Info(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelInfo, msg, fields)
}

// Warn logs a warning message
func (l *SlogAdapter) Warn(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelWarn, msg, fields)
}

// Error logs an error message
func (l *SlogAdapter) Error(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelError, msg, fields)
}

// InfoContext logs an informational message with the operation ID from ctx
func (l *SlogAdapter) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelInfo, msg, withOperationID(ctx, fields))
}

// ErrorContext logs an error message with the operation ID from ctx
func (l *SlogAdapter) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelError, msg, withOperationID(ctx, fields))
}

// With creates a child logger with the given fields
func (l *SlogAdapter) With(fields ...Field) Logger {
	return &SlogAdapter{logger: l.logger.With(toAny(fields)...)}
}

// WithError creates a child logger with an error field
func (l *SlogAdapter) WithError(err error) Logger {
	return l.With(Err(err))
}

// WithContext returns a logger carrying the operation ID from ctx, if any.
func WithContext(ctx context.Context, l Logger) Logger {
	l = OrNop(l)
	if id := correlation.ID(ctx); id != "" {
		return l.With(String("operation_id", id))
	}
	return l
}

func withOperationID(ctx context.Context, fields []Field) []Field {
	if id := correlation.ID(ctx); id != "" {
		fields = append(fields, String("operation_id", id))
	}
	return fields
}

func (l *SlogAdapter) log(ctx context.Context, level slog.Level, msg string, fields []Field) {
	if !l.logger.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, fieldToAttr(f))
	}
	l.logger.LogAttrs(ctx, level, msg, attrs...)
}

func fieldToAttr(field Field) slog.Attr {
	switch v := field.Value.(type) {
	case string:
		return slog.String(field.Key, v)
	case int:
		return slog.Int(field.Key, v)
	case float64:
		return slog.Float64(field.Key, v)
	case bool:
		return slog.Bool(field.Key, v)
	case error:
		if v == nil {
			return slog.Any(field.Key, nil)
		}
		return slog.String(field.Key, v.Error())
	default:
		return slog.Any(field.Key, v)
	}
}

func toAny(fields []Field) []any {
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = fieldToAttr(f)
	}
	return out
}

func levelToSlogLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
