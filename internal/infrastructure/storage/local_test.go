package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStorage(t.TempDir())

	content := []byte{0x42, 0x4d, 0x01}
	require.NoError(t, store.PutContent(ctx, "a/b/artifact.bmp", content, "image/bmp"))

	exists, err := store.Exists(ctx, "a/b/artifact.bmp")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := store.GetContent(ctx, "a/b/artifact.bmp")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	require.NoError(t, store.Delete(ctx, "a/b/artifact.bmp"))

	exists, err = store.Exists(ctx, "a/b/artifact.bmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorageGetMissing(t *testing.T) {
	store := NewLocalStorage(t.TempDir())

	_, err := store.GetContent(context.Background(), "nope.bmp")
	assert.ErrorIs(t, err, ErrNotFound)
}
