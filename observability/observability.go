// Package observability defines the logging, reporting, and metrics seams
// data sources are wired with. Implementations are injected at construction;
// every seam defaults to a no-op.
package observability

import (
	"fmt"
	"log"

	"github.com/tesseradata/tessera/errs"
)

// Logger captures structured logging behaviours shared across layers.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a key/value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger { return noopLogger{} }

type noopLogger struct{}

func (noopLogger) Debug(string, ...Field) {}
func (noopLogger) Info(string, ...Field)  {}
func (noopLogger) Error(string, ...Field) {}

// StdLogger adapts a standard library logger to the Logger seam. Debug is
// suppressed unless Verbose is set.
type StdLogger struct {
	L       *log.Logger
	Verbose bool
}

func (s StdLogger) Debug(msg string, fields ...Field) {
	if s.Verbose {
		s.print("DEBUG", msg, fields)
	}
}

func (s StdLogger) Info(msg string, fields ...Field)  { s.print("INFO", msg, fields) }
func (s StdLogger) Error(msg string, fields ...Field) { s.print("ERROR", msg, fields) }

func (s StdLogger) print(level, msg string, fields []Field) {
	if s.L == nil {
		return
	}
	args := make([]any, 0, 2+len(fields))
	args = append(args, level, msg)
	for _, f := range fields {
		args = append(args, f.Key+"="+formatValue(f.Value))
	}
	s.L.Println(args...)
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return fmt.Sprint(t)
	}
}

// Reporter receives every classified error a data source produces, before it
// is returned to the caller. It replaces a process-wide error handler: each
// source carries its own.
type Reporter interface {
	Report(err *errs.E)
}

// NopReporter returns a reporter that discards everything.
func NopReporter() Reporter { return noopReporter{} }

type noopReporter struct{}

func (noopReporter) Report(*errs.E) {}

// LogReporter forwards classified errors to a structured logger.
type LogReporter struct {
	Logger Logger
}

// Report logs the error envelope field by field.
func (r LogReporter) Report(err *errs.E) {
	if err == nil || r.Logger == nil {
		return
	}
	fields := []Field{
		{Key: "source", Value: err.Source},
		{Key: "code", Value: string(err.Code)},
		{Key: "user_message", Value: err.UserMsg},
	}
	if err.HTTP > 0 {
		fields = append(fields, Field{Key: "http", Value: err.HTTP})
	}
	if err.Message != "" {
		fields = append(fields, Field{Key: "message", Value: err.Message})
	}
	if cause := err.Unwrap(); cause != nil {
		fields = append(fields, Field{Key: "cause", Value: cause.Error()})
	}
	r.Logger.Error("data source error", fields...)
}

// Metrics provides counters, gauges, and histogram recording primitives.
type Metrics interface {
	IncCounter(name string, value float64, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

// NopMetrics returns a metrics collector that discards everything.
func NopMetrics() Metrics { return noopMetrics{} }

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, float64, map[string]string)       {}
func (noopMetrics) ObserveHistogram(string, float64, map[string]string) {}
func (noopMetrics) SetGauge(string, float64, map[string]string)         {}
