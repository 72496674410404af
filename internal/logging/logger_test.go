package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Options{Development: true, Environment: "dev"})
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Options{Environment: "prod", Role: "work"})
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

func TestFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	zap.New(core).With(fields(Options{Environment: "staging", Role: "serve"})...).Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, ServiceName, ctx["service"])
	assert.Equal(t, "staging", ctx["environment"])
	assert.Equal(t, "serve", ctx["role"])

	assert.Len(t, fields(Options{}), 1)
}
