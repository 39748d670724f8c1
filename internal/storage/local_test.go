package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_UploadCommitsOnClose(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	var progress []int64
	var finished Object
	u, err := l.Upload(context.Background(), "app__x_pg_dump_1.dump", "application/gzip", UploadHooks{
		OnProgress: func(n int64) { progress = append(progress, n) },
		OnFinish:   func(o Object) { finished = o },
	})
	require.NoError(t, err)

	_, err = u.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = u.Write([]byte("world"))
	require.NoError(t, err)

	// Not visible until committed.
	_, statErr := os.Stat(l.LocalPath("app__x_pg_dump_1.dump"))
	assert.True(t, os.IsNotExist(statErr))

	require.NoError(t, u.Close())
	assert.Equal(t, []int64{6, 11}, progress)
	assert.Equal(t, int64(11), finished.Size)
	assert.Equal(t, filepath.Join(l.Dir(), "app__x_pg_dump_1.dump"), finished.LocalPath)

	rc, size, err := l.Download(context.Background(), "app__x_pg_dump_1.dump")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, int64(11), size)
}

func TestLocal_CloseWithErrorRemovesPartialFile(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	finished := false
	u, err := l.Upload(context.Background(), "broken.dump", "", UploadHooks{OnFinish: func(Object) { finished = true }})
	require.NoError(t, err)
	_, err = u.Write([]byte("partial"))
	require.NoError(t, err)

	require.NoError(t, u.CloseWithError(errors.New("pg_dump failed")))
	assert.False(t, finished)

	entries, err := os.ReadDir(l.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocal_DeleteAndNotFound(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(l.LocalPath("a.sql"), []byte("x"), 0o600))

	require.NoError(t, l.Delete(context.Background(), "a.sql"))
	assert.ErrorIs(t, l.Delete(context.Background(), "a.sql"), ErrNotFound)

	_, _, err = l.Download(context.Background(), "a.sql")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocal_RejectsPathTraversal(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "..", "../etc/passwd", "a/b", `a\b`} {
		_, err := l.Upload(context.Background(), name, "", UploadHooks{})
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestLocal_SignedURLUnsupported(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	_, err = l.SignedURL(context.Background(), "a.sql", time.Minute)
	assert.ErrorIs(t, err, ErrSignedURLUnsupported)
}
