package obs

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "tasktrail.io"

// Tracer returns the tracer used for authorization and task spans. It follows
// whatever provider is installed globally, which is a no-op until one is set.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// InitTracing installs a global SDK tracer provider sampling sampleRatio of
// root spans. Finished spans go to the shared logger at debug level.
func InitTracing(serviceName, version string, sampleRatio float64) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
		sdktrace.WithBatcher(LogExporter{}),
	)
	otel.SetTracerProvider(tp)
	return tp
}

// LogExporter is a span exporter that writes one log entry per span.
type LogExporter struct{}

func (LogExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	log := Logger()
	if !log.IsLevelEnabled(logrus.DebugLevel) {
		return nil
	}
	for _, s := range spans {
		fields := logrus.Fields{
			"type":        "span",
			"span":        s.Name(),
			"trace_id":    s.SpanContext().TraceID().String(),
			"span_id":     s.SpanContext().SpanID().String(),
			"status":      s.Status().Code.String(),
			"duration_ms": float64(s.EndTime().Sub(s.StartTime()).Microseconds()) / 1000,
		}
		for _, kv := range s.Attributes() {
			fields[string(kv.Key)] = kv.Value.Emit()
		}
		log.WithFields(fields).Debug("span finished")
	}
	return nil
}

func (LogExporter) Shutdown(context.Context) error { return nil }
