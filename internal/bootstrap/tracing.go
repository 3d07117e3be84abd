// internal/bootstrap/tracing.go
package bootstrap

import (
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tamzrod/superscore/internal/config"
)

// ServiceName is reported on every exported span.
const ServiceName = "superscore"

// NewTracerProvider returns nil when tracing is off. Spans are written to w
// as JSON; the caller must Shutdown the provider to flush them.
func NewTracerProvider(tc config.TraceConfig, w io.Writer) (*sdktrace.TracerProvider, error) {
	switch tc.Exporter {
	case "", "none":
		return nil, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("bootstrap: trace exporter: %w", err)
		}
		return sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(exp),
			sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", ServiceName))),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		), nil
	}
	return nil, fmt.Errorf("bootstrap: unknown trace exporter %q", tc.Exporter)
}
