package pix2pix

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResizeNearest(t *testing.T) {
	img := gradientImage(100, 60)
	resized := ResizeNearest(img, 64, 64)
	assert.Equal(t, 64, resized.Bounds().Dx())
	assert.Equal(t, 64, resized.Bounds().Dy())
}

func TestRandomJitter(t *testing.T) {
	const cropSize, jitterSize = 64, 72
	// Input and target start identical: since the crop offset and the flip
	// decision must be shared, the two outputs have to stay identical pixel
	// for pixel -- any divergence means the pair was transformed apart.
	src := gradientImage(100, 100)
	for seed := int64(0); seed < 8; seed++ {
		rng := rand.New(rand.NewSource(seed))
		jInput, jTarget := RandomJitter(rng, src, src, cropSize, jitterSize)
		require.Equal(t, cropSize, jInput.Bounds().Dx())
		require.Equal(t, cropSize, jInput.Bounds().Dy())
		require.Equal(t, cropSize, jTarget.Bounds().Dx())
		require.Equal(t, cropSize, jTarget.Bounds().Dy())
		require.Equal(t, jInput.Pix, jTarget.Pix, "seed %d broke input/target correspondence", seed)
	}
}

func TestRandomJitterVariesCrops(t *testing.T) {
	const cropSize, jitterSize = 64, 72
	src := gradientImage(100, 100)
	rng := rand.New(rand.NewSource(1))
	first, _ := RandomJitter(rng, src, src, cropSize, jitterSize)
	different := false
	for ii := 0; ii < 16 && !different; ii++ {
		next, _ := RandomJitter(rng, src, src, cropSize, jitterSize)
		different = !assert.ObjectsAreEqual(first.Pix, next.Pix)
	}
	assert.True(t, different, "16 jitters of the same image never differed, randomness is not being re-drawn")
}

func TestImageToTensor(t *testing.T) {
	img := gradientImage(3, 2)
	tensor := ImageToTensor(img)
	assert.Equal(t, []int{1, 2, 3, 3}, tensor.Shape().Dimensions)

	// gradientImage encodes (x, y, x+y) into the (R, G, B) channels.
	values := tensor.Value().([][][][]float32)
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			assert.InDelta(t, float32(x)/127.5-1, values[0][y][x][0], 1e-6)
			assert.InDelta(t, float32(y)/127.5-1, values[0][y][x][1], 1e-6)
			assert.InDelta(t, float32(x+y)/127.5-1, values[0][y][x][2], 1e-6)
		}
	}
}

func TestNormalizationRoundTrip(t *testing.T) {
	for x := 0; x <= 255; x++ {
		normalized := float32(x)/127.5 - 1
		require.GreaterOrEqual(t, normalized, float32(-1))
		require.LessOrEqual(t, normalized, float32(1))
		denormalized := (normalized + 1) * 127.5
		require.InDelta(t, float64(x), float64(denormalized), 1e-3)
	}
}
