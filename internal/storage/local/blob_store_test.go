// Package local_test tests the local filesystem blob store.
package local_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/resona/internal/storage"
	"github.com/JakeFAU/resona/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "uploads")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.DirExists(t, dir)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		tempFile := filepath.Join(t.TempDir(), "testfile")
		require.NoError(t, os.WriteFile(tempFile, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: tempFile})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		tempDir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(tempDir, 0o500))
		_, err := local.New(local.Config{BaseDir: tempDir})
		assert.Error(t, err)
		// #nosec G302 -- reverting permissions to allow cleanup in the test environment.
		require.NoError(t, os.Chmod(tempDir, 0o700))
	})
}

func TestPutGetDelete(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("ValidPut", func(t *testing.T) {
		data := []byte("RIFF....WAVE")
		info, err := store.PutObject(ctx, "1234-session.wav", "audio/wav", bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, "1234-session.wav"), info.URI)
		assert.EqualValues(t, len(data), info.Size)

		// #nosec G304 -- test reads from the controlled temp directory.
		readData, err := os.ReadFile(filepath.Join(tempDir, "1234-session.wav"))
		require.NoError(t, err)
		assert.Equal(t, data, readData)
	})

	t.Run("RejectsTraversal", func(t *testing.T) {
		for _, name := range []string{"", "../escape.mp3", "a/b.mp3", ".."} {
			_, err := store.PutObject(ctx, name, "audio/mpeg", bytes.NewReader([]byte("data")))
			assert.Error(t, err, name)
		}
	})

	t.Run("GetAndList", func(t *testing.T) {
		_, err := store.PutObject(ctx, "0000-first.mp3", "audio/mpeg", bytes.NewReader([]byte("mp3")))
		require.NoError(t, err)

		rc, info, err := store.GetObject(ctx, "0000-first.mp3")
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, "mp3", string(body))
		assert.Equal(t, "0000-first.mp3", info.Name)

		list, err := store.ListObjects(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "0000-first.mp3", list[0].Name)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.DeleteObject(ctx, "0000-first.mp3"))
		_, err := store.StatObject(ctx, "0000-first.mp3")
		assert.ErrorIs(t, err, storage.ErrObjectNotFound)
		assert.ErrorIs(t, store.DeleteObject(ctx, "0000-first.mp3"), storage.ErrObjectNotFound)
		_, _, err = store.GetObject(ctx, "missing.mp3")
		assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	})
}
