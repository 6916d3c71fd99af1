package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{Enabled: false})
	require.NoError(t, err)

	assert.Equal(t, noop.Meter{}, p.Meter("anything"))
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutWriter(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "linkcore"})
	assert.ErrorContains(t, err, "no metric writer")
}

func TestNew_ExportsOnFlush(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:      true,
		ServiceName:  "linkcore",
		BatchTimeout: time.Minute,
		MetricWriter: &buf,
	})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	meter := p.Meter("test")
	counter, err := meter.Int64Counter("test.count")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	require.NoError(t, p.Flush(context.Background()))
	assert.Contains(t, buf.String(), "test.count")
}
