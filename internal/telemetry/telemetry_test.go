package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabledInstallsNoop(t *testing.T) {
	require.NoError(t, Init(context.Background(), Options{}))

	counter, err := Meter("").Int64Counter("manthan.test")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	_, span := Tracer("").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, Shutdown(context.Background()))
}

func TestInitEnabledWithoutExporters(t *testing.T) {
	require.NoError(t, Init(context.Background(), Options{Enabled: true, ServiceName: "manthan-test"}))
	t.Cleanup(func() { _ = Init(context.Background(), Options{}) })

	_, span := Tracer("test").Start(context.Background(), "recorded")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, Shutdown(context.Background()))
}
