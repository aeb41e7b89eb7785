package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	store, err := New(context.Background(), config.StorageConfig{Driver: "local", Local: config.LocalConfig{Dir: root}})
	require.NoError(t, err)

	name := ObjectName("doc-1", "notes.md")
	assert.Equal(t, "documents/doc-1/notes.md", name)
	require.NoError(t, store.Put(context.Background(), name, strings.NewReader("# Newton"), 8, "text/markdown"))

	rc, err := store.Get(context.Background(), name)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "# Newton", string(data))

	require.NoError(t, store.Delete(context.Background(), name))
	_, err = store.Get(context.Background(), name)
	assert.ErrorIs(t, err, ErrObjectNotFound)
	_, statErr := os.Stat(filepath.Join(root, "documents", "doc-1"))
	assert.True(t, os.IsNotExist(statErr))

	assert.NoError(t, store.Delete(context.Background(), name))
}

func TestLocalStoreRejectsEscapingNames(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, store.Put(context.Background(), "../outside.txt", strings.NewReader("x"), 1, ""))
}

func TestUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Driver: "s3"})
	assert.Error(t, err)
}
