package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTracerProvider_DisabledWithoutEndpoint(t *testing.T) {
	tp, err := newTracerProvider("svc", TracingOptions{Enabled: true})
	require.NoError(t, err)
	assert.Nil(t, tp)

	tp, err = newTracerProvider("svc", TracingOptions{JaegerEndpoint: "http://localhost:14268/api/traces"})
	require.NoError(t, err)
	assert.Nil(t, tp)
}

func TestStartSpan_RecordsErrorStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := StartSpan(context.Background(), "submission.upload", map[string]string{"variant": "district"})
	EndSpan(span, errors.New("s3 down"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "submission.upload", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "s3 down", spans[0].Status().Description)
}
