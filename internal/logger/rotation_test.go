package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriter_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentflow.log")

	w, err := NewRotatingWriter(path, 1, 7, false)
	require.NoError(t, err)

	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(data))
}

func TestRotatingWriter_Rotate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentflow.log")

	w, err := NewRotatingWriter(path, 1, 0, false)
	require.NoError(t, err)
	w.maxSize = 16

	_, err = w.Write([]byte("0123456789\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("abcdefghij\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij\n", string(current))

	backups, err := w.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 1)

	old, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "0123456789\n", string(old))
}

func TestRotatingWriter_Compress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentflow.log")

	w, err := NewRotatingWriter(path, 1, 0, true)
	require.NoError(t, err)
	w.maxSize = 8

	_, err = w.Write([]byte("0123456789\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("next\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	backups, err := w.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.True(t, strings.HasSuffix(backups[0], ".gz"))
}

func TestRotatingWriter_CleanupRemovesExpired(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentflow.log")

	stale := path + ".20200101-000000.000"
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	past := time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	w, err := NewRotatingWriter(path, 1, 7, false)
	require.NoError(t, err)
	w.maxSize = 4

	_, err = w.Write([]byte("aaaaa"))
	require.NoError(t, err)
	_, err = w.Write([]byte("bbbbb"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingWriter_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentflow.log")

	w, err := NewRotatingWriter(path, 1, 0, false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := w.Write([]byte("line\n"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1000, strings.Count(string(data), "line\n"))
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "x.log"), 1, 0, false)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
