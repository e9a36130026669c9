package daemon

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_WriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revgate-serve.pid")
	pf := NewPIDFile(path)

	require.NoError(t, pf.WritePID(12345))

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file should be renamed into place")
}

func TestPIDFile_WriteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "revgate-serve.pid")
	require.NoError(t, NewPIDFile(path).WritePID(7))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestPIDFile_Read_MissingFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid"))

	_, err := pf.Read()
	assert.True(t, os.IsNotExist(err))
}

func TestPIDFile_Read_InvalidContent(t *testing.T) {
	for _, content := range []string{"not-a-number\n", "0\n", "-4\n", ""} {
		path := filepath.Join(t.TempDir(), "bad.pid")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		_, err := NewPIDFile(path).Read()
		require.Error(t, err, "content %q", content)
		assert.Contains(t, err.Error(), "invalid PID file content")
	}
}

func TestPIDFile_Acquire(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "revgate-serve.pid"))

	require.NoError(t, pf.Acquire())
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	err = pf.Acquire()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestPIDFile_Acquire_StaleFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "revgate-serve.pid"))
	require.NoError(t, pf.WritePID(999999))

	require.NoError(t, pf.Acquire())
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_Release(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revgate-serve.pid")
	pf := NewPIDFile(path)

	require.NoError(t, pf.Write())
	require.NoError(t, pf.Release())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Releasing again is a no-op.
	assert.NoError(t, pf.Release())
}

func TestPIDFile_Release_OtherOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revgate-serve.pid")
	pf := NewPIDFile(path)

	require.NoError(t, pf.WritePID(999999))
	require.NoError(t, pf.Release())

	_, err := os.Stat(path)
	assert.NoError(t, err, "a file naming another process is left alone")
}

func TestPIDFile_Remove_MissingFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid"))
	assert.Error(t, pf.Remove())
}

func TestPIDFile_IsRunning(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "revgate-serve.pid"))

	_, running := pf.IsRunning()
	assert.False(t, running, "no file")

	require.NoError(t, pf.Write())
	pid, running := pf.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, pf.WritePID(999999))
	pid, running = pf.IsRunning()
	assert.Equal(t, 999999, pid)
	assert.False(t, running)
}

func TestPIDFile_Signal(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "revgate-serve.pid"))

	err := pf.Signal(syscall.Signal(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read PID file")

	require.NoError(t, pf.Write())
	assert.NoError(t, pf.Signal(syscall.Signal(0)))
}
