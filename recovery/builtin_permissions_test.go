package recovery

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePermissionsCanHandleRequiresPath(t *testing.T) {
	a := FilePermissionsFixAction{}
	assert.False(t, a.CanHandle(nil, nil))
	assert.True(t, a.CanHandle(nil, map[string]interface{}{"path": "/tmp"}))
}

func TestFilePermissionsFixRecursesThroughDirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix permission bits only")
	}
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(nested, 0o000))
	file := filepath.Join(nested, "f.txt")
	require.NoError(t, os.Chmod(nested, 0o755))
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o000))

	a := FilePermissionsFixAction{}
	result, err := a.Execute(context.Background(), nil, map[string]interface{}{"path": dir})
	require.NoError(t, err)
	assert.True(t, result.Success)

	info, statErr := os.Stat(file)
	require.NoError(t, statErr)
	assert.NotEqual(t, os.FileMode(0), info.Mode().Perm()&0o400)
}

func TestFilePermissionsReportsMissingPath(t *testing.T) {
	a := FilePermissionsFixAction{}
	result, err := a.Execute(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
}
