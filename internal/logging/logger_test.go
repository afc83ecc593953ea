package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Run("verbose returns development logger", func(t *testing.T) {
		logger, err := New(true)
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
		_ = logger.Sync()
	})

	t.Run("quiet returns production logger", func(t *testing.T) {
		logger, err := New(false)
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
		_ = logger.Sync()
	})
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "repochat.log")
	logger, err := NewFile(false, path)
	require.NoError(t, err)
	logger.Info("index loaded", zap.String("path", "demo"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"index loaded"`)
}

func TestVerboseFromEnv(t *testing.T) {
	t.Setenv(VerboseEnv, "TRUE")
	assert.True(t, VerboseFromEnv())
	t.Setenv(VerboseEnv, "false")
	assert.False(t, VerboseFromEnv())
	t.Setenv(VerboseEnv, "")
	assert.False(t, VerboseFromEnv())
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
