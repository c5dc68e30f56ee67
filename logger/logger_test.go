package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLevels(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, DebugLevel.zapLevel())
	require.Equal(t, zapcore.WarnLevel, WarnLevel.zapLevel())
	require.Equal(t, zapcore.InfoLevel, LogLevel("verbose").zapLevel())
}

func TestInitLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trackshelf.log")

	require.NoError(t, InitLogger(Config{Level: InfoLevel, OutputPath: path}))
	t.Cleanup(func() {
		mu.Lock()
		globalLogger = nil
		mu.Unlock()
	})

	Info("resolved track", String("key", "p1/song.mp3"))
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"resolved track"`)
	require.Contains(t, string(data), `"key":"p1/song.mp3"`)
}
