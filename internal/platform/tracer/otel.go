package tracer

import (
	"context"
	"errors"
	"math"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "consent-ledger/pkg/domain-errors"
)

// AttrErrorCode carries the domain error code of a failed span.
const AttrErrorCode = "error.code"

// OTel emits spans through an OpenTelemetry tracer provider.
type OTel struct {
	tracer trace.Tracer
}

// NewOTel binds to provider, or to the globally registered provider when nil.
func NewOTel(provider trace.TracerProvider) *OTel {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &OTel{tracer: provider.Tracer(instrumentationName)}
}

func (t *OTel) Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(keyValues(attrs)...))
	return ctx, otelSpan{span}
}

type otelSpan struct {
	trace.Span
}

// End marks a failed span with its error and ledger error code.
func (s otelSpan) End(err error) {
	if err != nil {
		code := dErrors.CodeInternal
		var de *dErrors.Error
		if errors.As(err, &de) {
			code = de.Code
		}
		s.Span.SetAttributes(attribute.String(AttrErrorCode, string(code)))
		s.Span.RecordError(err)
		s.Span.SetStatus(codes.Error, string(code))
	}
	s.Span.End()
}

func (s otelSpan) SetAttributes(attrs ...Attribute) {
	s.Span.SetAttributes(keyValues(attrs)...)
}

func (s otelSpan) AddEvent(name string, attrs ...Attribute) {
	s.Span.AddEvent(name, trace.WithAttributes(keyValues(attrs)...))
}

// keyValues drops attributes whose value type has no OpenTelemetry form.
// Ids beyond the int64 range are exported as decimal strings.
func keyValues(attrs []Attribute) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		switch v := a.Value.(type) {
		case string:
			out = append(out, attribute.String(a.Key, v))
		case bool:
			out = append(out, attribute.Bool(a.Key, v))
		case int:
			out = append(out, attribute.Int(a.Key, v))
		case int64:
			out = append(out, attribute.Int64(a.Key, v))
		case uint64:
			if v > math.MaxInt64 {
				out = append(out, attribute.String(a.Key, strconv.FormatUint(v, 10)))
				continue
			}
			out = append(out, attribute.Int64(a.Key, int64(v)))
		case float64:
			out = append(out, attribute.Float64(a.Key, v))
		}
	}
	return out
}

var _ Tracer = (*OTel)(nil)
