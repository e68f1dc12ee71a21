package processing

import (
	"context"
	"image/color"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sogos/pixelpipe/internal/infrastructure/storage"
)

func TestSaveAndLoadImage(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())

	original := imaging.New(16, 12, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	path := NewArtifactPath()

	require.NoError(t, SaveImage(ctx, store, path, original))

	loaded, err := LoadImage(ctx, store, path)
	require.NoError(t, err)
	assert.Equal(t, 16, loaded.Bounds().Dx())
	assert.Equal(t, 12, loaded.Bounds().Dy())
}

func TestLoadImageMissingArtifact(t *testing.T) {
	store := storage.NewLocalStorage(t.TempDir())

	_, err := LoadImage(context.Background(), store, "missing.bmp")
	assert.Error(t, err)
}

func TestLoadImageCorruptArtifact(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())

	require.NoError(t, store.PutContent(ctx, "bad.bmp", []byte("not an image"), "image/bmp"))

	_, err := LoadImage(ctx, store, "bad.bmp")
	assert.Error(t, err)
}

func TestNewArtifactPathIsUnique(t *testing.T) {
	first := NewArtifactPath()
	second := NewArtifactPath()

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasSuffix(first, ".bmp"))
}
