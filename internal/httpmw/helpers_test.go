package httpmw

import (
	"context"
	"net/http"
	"sync"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/oboxads-web/internal/log"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// recordingSpan starts a real recording span; end it before reading sr.
func recordingSpan(t *testing.T) (context.Context, trace.Span, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "initial")
	return ctx, span, sr
}

func validSpanContext() context.Context {
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

type capturedLog struct {
	msg    string
	err    error
	fields []any
}

// captureLogger records With fields and Info/Error calls. With returns the
// same instance so every call lands in one place.
type captureLogger struct {
	mu     sync.Mutex
	withs  [][]any
	infos  []capturedLog
	errors []capturedLog
}

func (l *captureLogger) With(kv ...any) log.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.withs = append(l.withs, kv)
	return l
}

func (l *captureLogger) Debug(context.Context, string, ...any) {}
func (l *captureLogger) Warn(context.Context, string, ...any)  {}
func (l *captureLogger) Sync() error                           { return nil }

func (l *captureLogger) Info(_ context.Context, msg string, kv ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, capturedLog{msg: msg, fields: kv})
}

func (l *captureLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, capturedLog{msg: msg, err: err, fields: kv})
}

func (l *captureLogger) withField(key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, kv := range l.withs {
		for i := 0; i+1 < len(kv); i += 2 {
			if kv[i] == key {
				return kv[i+1], true
			}
		}
	}
	return nil, false
}

func fieldValue(kv []any, key string) (any, bool) {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i] == key {
			return kv[i+1], true
		}
	}
	return nil, false
}
