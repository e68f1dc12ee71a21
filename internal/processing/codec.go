package processing

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/sogos/pixelpipe/internal/infrastructure/storage"
)

// artifactFormat is the on-disk encoding of every generated artifact.
// Inputs may arrive in any format imaging can decode.
const artifactFormat = imaging.BMP

// NewArtifactPath mints a unique path for one task's output. Paths are
// never reused, so a retried task writes a fresh artifact and the old one
// is simply orphaned.
func NewArtifactPath() string {
	return fmt.Sprintf("%s.bmp", uuid.New())
}

// LoadImage reads and decodes one artifact.
func LoadImage(ctx context.Context, store storage.ArtifactStore, path string) (image.Image, error) {
	data, err := store.GetContent(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s: %w", path, err)
	}
	return img, nil
}

// SaveImage encodes and writes one artifact.
func SaveImage(ctx context.Context, store storage.ArtifactStore, path string, img image.Image) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, artifactFormat); err != nil {
		return fmt.Errorf("failed to encode artifact %s: %w", path, err)
	}
	if err := store.PutContent(ctx, path, buf.Bytes(), "image/bmp"); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	return nil
}
