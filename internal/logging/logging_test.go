package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	dir := t.TempDir()

	l, err := New(dir, false)

	require.NoError(t, err)
	assert.False(t, l.Enabled)
	l.Logger.Info("dropped")
	require.NoError(t, l.Close())
	_, err = os.Stat(filepath.Join(dir, "logs"))
	assert.True(t, os.IsNotExist(err))
}

func TestNew_Debug(t *testing.T) {
	dir := t.TempDir()

	l, err := New(dir, true)
	require.NoError(t, err)
	l.Logger.Info("change applied", "path", "a.txt")
	require.NoError(t, l.Close())

	assert.True(t, l.Enabled)
	assert.Equal(t, filepath.Join(dir, "logs", "xmlpatch.log"), l.Path)
	data, err := os.ReadFile(l.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"change applied"`)
	assert.Contains(t, string(data), `"path":"a.txt"`)
}
