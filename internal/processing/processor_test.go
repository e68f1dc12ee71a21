package processing

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sogos/pixelpipe/internal/domain/valueobject"
)

func testImage(w, h int, c color.NRGBA) image.Image {
	return imaging.New(w, h, c)
}

func TestProcessResize(t *testing.T) {
	processor := NewProcessor()

	out, err := processor.Process(valueobject.NewResize(32, 16), []image.Image{
		testImage(64, 64, color.NRGBA{R: 255, A: 255}),
	})
	require.NoError(t, err)
	assert.Equal(t, 32, out.Bounds().Dx())
	assert.Equal(t, 16, out.Bounds().Dy())
}

func TestProcessCrop(t *testing.T) {
	processor := NewProcessor()

	out, err := processor.Process(valueobject.NewCrop(8, 8, 16, 24), []image.Image{
		testImage(64, 64, color.NRGBA{G: 255, A: 255}),
	})
	require.NoError(t, err)
	assert.Equal(t, 16, out.Bounds().Dx())
	assert.Equal(t, 24, out.Bounds().Dy())
}

func TestProcessBlurAndBrightness(t *testing.T) {
	processor := NewProcessor()
	input := []image.Image{testImage(8, 8, color.NRGBA{R: 100, G: 100, B: 100, A: 255})}

	out, err := processor.Process(valueobject.NewBlur(1.5), input)
	require.NoError(t, err)
	assert.Equal(t, 8, out.Bounds().Dx())

	out, err = processor.Process(valueobject.NewBrightness(20), input)
	require.NoError(t, err)
	assert.Equal(t, 8, out.Bounds().Dx())
}

func TestProcessOverlay(t *testing.T) {
	processor := NewProcessor()

	base := testImage(32, 32, color.NRGBA{A: 255})
	layer := testImage(8, 8, color.NRGBA{R: 255, A: 255})

	out, err := processor.Process(valueobject.NewOverlay(4, 4), []image.Image{base, layer})
	require.NoError(t, err)

	// the layer landed at the offset
	assert.Equal(t, 32, out.Bounds().Dx())
	nrgba := imaging.Clone(out)
	assert.Equal(t, uint8(255), nrgba.NRGBAAt(5, 5).R)
	assert.Equal(t, uint8(0), nrgba.NRGBAAt(20, 20).R)
}

func TestProcessRejectsWrongArity(t *testing.T) {
	processor := NewProcessor()
	one := []image.Image{testImage(4, 4, color.NRGBA{})}

	_, err := processor.Process(valueobject.NewOverlay(0, 0), one)
	assert.Error(t, err)

	_, err = processor.Process(valueobject.NewBlur(1), nil)
	assert.Error(t, err)
}

func TestProcessRejectsInputKind(t *testing.T) {
	processor := NewProcessor()

	_, err := processor.Process(valueobject.NewInput(), nil)
	assert.Error(t, err)
}
