package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"

	"supertrend-bot/internal/trace"
)

var (
	// Falls back to the slog default until Init runs.
	globalLogger = slog.Default()
	logLevel     slog.Level
	// Enables Debug output and caller source on every record
	detailedLogging bool
	// Rotating file sink, nil when LOG_FILE is unset
	fileSink *lumberjack.Logger
)

// LogConfig selects level, format and an optional rotating file sink.
type LogConfig struct {
	Level           string // DEBUG, INFO, WARN, ERROR
	Format          string // json or text
	DetailedLogging bool

	// File output, written alongside stdout. Empty disables it.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Init initializes the global logger from environment variables.
// Tracing is initialized separately by trace.Init.
func Init() error {
	return InitWithConfig(LoadConfigFromEnv())
}

// LoadConfigFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_DETAILED and the LOG_FILE rotation settings.
func LoadConfigFromEnv() LogConfig {
	return LogConfig{
		Level:           getEnvOrDefault("LOG_LEVEL", "INFO"),
		Format:          getEnvOrDefault("LOG_FORMAT", "json"),
		DetailedLogging: getEnvOrDefault("LOG_DETAILED", "false") == "true",
		File:            os.Getenv("LOG_FILE"),
		MaxSizeMB:       getEnvInt("LOG_MAX_SIZE_MB", 50),
		MaxBackups:      getEnvInt("LOG_MAX_BACKUPS", 5),
		MaxAgeDays:      getEnvInt("LOG_MAX_AGE_DAYS", 14),
		Compress:        getEnvOrDefault("LOG_COMPRESS", "true") == "true",
	}
}

// InitWithConfig initializes the logger with specific configuration
func InitWithConfig(config LogConfig) error {
	logLevel = parseLogLevel(config.Level)
	detailedLogging = config.DetailedLogging

	// Source is added by logWithTrace so it points at the real caller.
	opts := &slog.HandlerOptions{Level: logLevel}

	var out io.Writer = os.Stdout
	fileSink = nil
	if config.File != "" {
		fileSink = &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   config.Compress,
			LocalTime:  true,
		}
		out = io.MultiWriter(os.Stdout, fileSink)
	}

	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	globalLogger = slog.New(handler).With("service", trace.ServiceName)
	slog.SetDefault(globalLogger)
	return nil
}

// Close flushes and closes the rotating log file, if any.
func Close() error {
	if fileSink != nil {
		return fileSink.Close()
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

// Debug is dropped unless LOG_DETAILED is true.
func Debug(ctx context.Context, msg string, args ...any) {
	DebugSkip(ctx, 1, msg, args...)
}

// DebugSkip is Debug for wrappers; skip is the number of extra frames between
// the logged caller and this function.
func DebugSkip(ctx context.Context, skip int, msg string, args ...any) {
	if !detailedLogging {
		return
	}
	logWithTrace(ctx, slog.LevelDebug, msg, skip+2, args...)
}

func Info(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelInfo, msg, 2, args...)
}

func InfoSkip(ctx context.Context, skip int, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelInfo, msg, skip+2, args...)
}

func Warn(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelWarn, msg, 2, args...)
}

func Error(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelError, msg, 2, args...)
}

// ErrorWithErr logs an error message and records err on the active span.
func ErrorWithErr(ctx context.Context, msg string, err error, args ...any) {
	ErrorWithErrSkip(ctx, 1, msg, err, args...)
}

func ErrorWithErrSkip(ctx context.Context, skip int, msg string, err error, args ...any) {
	if trace.Enabled() && err != nil {
		span := oteltrace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	allArgs := append([]any{"error", err}, args...)
	logWithTrace(ctx, slog.LevelError, msg, skip+2, allArgs...)
}

// logWithTrace logs a message with trace ID and span ID if available.
// skip is the number of frames above runtime.Caller that belong to the logger.
func logWithTrace(ctx context.Context, level slog.Level, msg string, skip int, args ...any) {
	if traceID, spanID, ok := trace.GetTraceFields(ctx); ok {
		args = append([]any{"trace_id", traceID, "span_id", spanID}, args...)
	}

	if detailedLogging {
		if pc, file, line, ok := runtime.Caller(skip); ok {
			if fn := runtime.FuncForPC(pc); fn != nil {
				args = append(args, "source", slog.GroupValue(
					slog.String("function", fn.Name()),
					slog.String("file", file),
					slog.Int("line", line),
				))
			}
		}
	}

	globalLogger.Log(ctx, level, msg, args...)
}

// addSpanEvent attaches an event to the active span when tracing is on.
func addSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if !trace.Enabled() {
		return
	}
	span := oteltrace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent(name, oteltrace.WithAttributes(attrs...))
	}
}

// Signal logs a Supertrend trend change at INFO and marks it on the active span.
func Signal(ctx context.Context, symbol, signal string, price, trend float64, fields ...any) {
	addSpanEvent(ctx, "supertrend_signal",
		attribute.String("symbol", symbol),
		attribute.String("signal", signal),
		attribute.Float64("price", price),
		attribute.Float64("trend", trend),
	)
	logWithTrace(ctx, slog.LevelInfo, "Supertrend signal", 2,
		append([]any{"type", "SIGNAL", "symbol", symbol, "signal", signal, "price", price, "trend", trend}, fields...)...)
}

// Trade logs an acknowledged order at INFO.
func Trade(ctx context.Context, symbol, side string, qty int, price float64, orderID string, fields ...any) {
	addSpanEvent(ctx, "order_acknowledged",
		attribute.String("symbol", symbol),
		attribute.String("side", side),
		attribute.Int("qty", qty),
		attribute.String("order_id", orderID),
	)
	logWithTrace(ctx, slog.LevelInfo, "Order acknowledged", 2,
		append([]any{"type", "TRADE", "symbol", symbol, "side", side, "qty", qty, "price", price, "order_id", orderID}, fields...)...)
}

// Risk logs a stop or cap event at WARN.
func Risk(ctx context.Context, symbol, event string, fields ...any) {
	addSpanEvent(ctx, "risk_event", attribute.String("symbol", symbol), attribute.String("event", event))
	logWithTrace(ctx, slog.LevelWarn, "Risk event", 2,
		append([]any{"type", "RISK", "symbol", symbol, "event", event}, fields...)...)
}
