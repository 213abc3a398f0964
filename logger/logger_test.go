package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewBuildsForEachEnvironment(t *testing.T) {
	for _, env := range []string{"production", "development", "test", ""} {
		log, err := New(env, "debug")
		require.NoError(t, err, env)
		assert.NotNil(t, log.SugaredLogger)
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel(" warn "))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("chatty"))
}

func TestSanitizeRedactsSecrets(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := &Logger{SugaredLogger: zap.New(core).Sugar()}

	log.Info("auth", "access_token", "abc.def.ghi", "user_id", "u1", "Authorization", "Bearer x")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["access_token"])
	assert.Equal(t, "[REDACTED]", fields["Authorization"])
	assert.Equal(t, "u1", fields["user_id"])
}

func TestWithKeepsContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := (&Logger{SugaredLogger: zap.New(core).Sugar()}).With("service", "orders")

	log.Warn("drift", "workshop_id", "w1")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "orders", fields["service"])
	assert.Equal(t, "w1", fields["workshop_id"])
}

func TestOddKeyValuesDoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNop().Info("odd", "lonely")
	})
}
