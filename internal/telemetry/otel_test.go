package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracer_FlushesSpansOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracer("amberbalance-test", "0.0.1", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "reporter.refresh")
	span.End()

	shutdown()

	out := buf.String()
	assert.Contains(t, out, `"Name": "reporter.refresh"`)
	assert.Contains(t, out, "amberbalance-test")
}
