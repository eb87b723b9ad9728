// Package logging provides structured logging with trace ID support for the
// server and agent processes.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys.
type ContextKey string

const (
	// TraceIDKey is the context key for the request trace ID.
	TraceIDKey ContextKey = "trace_id"
	// NodeNameKey is the context key for the node a request is scoped to.
	NodeNameKey ContextKey = "node_name"
	// ServiceKey is the context key for the process name (server/agent).
	ServiceKey ContextKey = "service"
)

// Logger wraps logrus.Logger with request-scoped field helpers.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a new Logger instance for the given service name.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT environment
// variables, defaulting to "info" and "json" when unset.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext creates a log entry carrying the request's trace ID and node
// name, if present.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if nodeName := ctx.Value(NodeNameKey); nodeName != nil {
		entry = entry.WithField("node_name", nodeName)
	}
	return entry
}

// WithFields creates a log entry with custom fields plus the service name.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError creates a log entry carrying an error field.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"service": l.service, "error": err.Error()})
}

// NewTraceID generates a new request trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID stores a trace ID on the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from context, if any.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithNodeName stores the node a request is scoped to on the context.
func WithNodeName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, NodeNameKey, name)
}

// LogRequest logs a completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}).Info("http request")
}

// LogNodeEvent logs a node lifecycle event (registration, liveness flip).
func (l *Logger) LogNodeEvent(ctx context.Context, nodeName, event string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{"node": nodeName, "event": event})
	if err != nil {
		entry.WithError(err).Warn("node event")
		return
	}
	entry.Info("node event")
}

// LogDeploy logs a deployment log line, mirroring what is streamed back to
// the operator's deploy log channel.
func (l *Logger) LogDeploy(ctx context.Context, deployName, line string) {
	l.WithContext(ctx).WithField("deploy", deployName).Info(line)
}
