package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetFromContext(t *testing.T) {
	custom := zap.NewExample()
	ctx := ContextWithLogger(context.Background(), custom)

	assert.Same(t, custom, GetFromContext(ctx))
	assert.Same(t, Log, GetFromContext(context.Background()))
}

func TestInitialize_InvalidLevel(t *testing.T) {
	err := Initialize("chatty")
	assert.Error(t, err)
}

func TestInitializeWithFile(t *testing.T) {
	previous := Log
	t.Cleanup(func() { Log = previous })

	path := filepath.Join(t.TempDir(), "gateway.log")
	require.NoError(t, InitializeWithFile("info", FileConfig{Filename: path}, zap.String("service", "test")))

	Log.Info("written to file")
	_ = Log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.Contains(t, string(data), `"service":"test"`)
}
