package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabled(t *testing.T) {
	provider, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, provider)

	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestInitEnabled(t *testing.T) {
	provider, err := Init(context.Background(), Config{Enabled: true, Environment: "test"})
	require.NoError(t, err)
	require.NotNil(t, provider)
	defer provider.Shutdown(context.Background())

	tracer := Tracer()
	_, span := tracer.Start(context.Background(), "test-span")
	span.End()

	assert.NotNil(t, Meter())
}
