package pix2pix

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradientImage builds an image where every pixel value is a function of its
// coordinates, so geometric transforms are detectable pixel by pixel.
func gradientImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x % 256),
				G: uint8(y % 256),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img
}

func writeJPEGFile(t *testing.T, imgPath string, img image.Image) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(imgPath), 0777))
	f, err := os.Create(imgPath)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, nil))
	require.NoError(t, f.Close())
}

func writePNGFile(t *testing.T, imgPath string, img image.Image) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(imgPath), 0777))
	f, err := os.Create(imgPath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

// createDataDir writes a complete dataset tree with the given pair base names
// in both the training and test splits, all images sized width x height.
func createDataDir(t *testing.T, names []string, width, height int) string {
	t.Helper()
	dataDir := t.TempDir()
	img := gradientImage(width, height)
	for _, split := range []string{"training", "test"} {
		for _, name := range names {
			writeJPEGFile(t, filepath.Join(dataDir, split, "input", name+".jpg"), img)
			writePNGFile(t, filepath.Join(dataDir, split, "output", name+".png"), img)
		}
	}
	return dataDir
}

func TestTargetPathFor(t *testing.T) {
	sep := string(filepath.Separator)
	assert.Equal(t,
		filepath.Join("dataset", "training", "output", "scene01.png"),
		TargetPathFor(filepath.Join("dataset", "training", "input", "scene01.jpg")))
	// Only the path element named "input" is rewritten, not substrings.
	assert.Equal(t,
		"inputs"+sep+"output"+sep+"a.png",
		TargetPathFor("inputs"+sep+"input"+sep+"a.jpg"))
}

func TestPairedImageFiles(t *testing.T) {
	dataDir := createDataDir(t, []string{"a", "b"}, 32, 32)
	pairs, err := PairedImageFiles(filepath.Join(dataDir, "training"))
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, filepath.Join(dataDir, "training", "input", "a.jpg"), pairs[0].InputPath)
	assert.Equal(t, filepath.Join(dataDir, "training", "output", "a.png"), pairs[0].TargetPath)

	// An input with no paired target is an error, not a skip.
	writeJPEGFile(t, filepath.Join(dataDir, "training", "input", "orphan.jpg"), gradientImage(32, 32))
	_, err = PairedImageFiles(filepath.Join(dataDir, "training"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orphan")

	_, err = PairedImageFiles(filepath.Join(dataDir, "no-such-split"))
	require.Error(t, err)
}

func TestLoadImagePair(t *testing.T) {
	dataDir := createDataDir(t, []string{"a"}, 40, 30)
	pairs, err := PairedImageFiles(filepath.Join(dataDir, "training"))
	require.NoError(t, err)

	input, target, err := LoadImagePair(pairs[0])
	require.NoError(t, err)
	assert.Equal(t, input.Bounds().Dx(), target.Bounds().Dx())
	assert.Equal(t, input.Bounds().Dy(), target.Bounds().Dy())
	assert.Equal(t, 40, input.Bounds().Dx())
	assert.Equal(t, 30, input.Bounds().Dy())

	// Mismatched dimensions between the two files are an error.
	writePNGFile(t, filepath.Join(dataDir, "training", "output", "a.png"), gradientImage(16, 16))
	_, _, err = LoadImagePair(pairs[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatching dimensions")

	// A corrupt file is an error.
	require.NoError(t, os.WriteFile(pairs[0].TargetPath, []byte("not a png"), 0666))
	_, _, err = LoadImagePair(pairs[0])
	require.Error(t, err)
}

func TestTestDatasetYieldsInOrderAndEnds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = createDataDir(t, []string{"a", "b"}, 80, 80)
	cfg.ImageSize = 64
	cfg.JitterSize = 72

	ds, err := NewTestDataset(cfg)
	require.NoError(t, err)
	assert.Equal(t, "test", ds.Name())

	for ii := 0; ii < 2; ii++ {
		_, inputs, labels, err := ds.Yield()
		require.NoError(t, err)
		require.Len(t, inputs, 1)
		require.Len(t, labels, 1)
		assert.Equal(t, []int{1, 64, 64, 3}, inputs[0].Shape().Dimensions)
		assert.Equal(t, []int{1, 64, 64, 3}, labels[0].Shape().Dimensions)
	}
	_, _, _, err = ds.Yield()
	assert.Equal(t, io.EOF, err)

	// Reset restarts the traversal.
	ds.Reset()
	_, inputs, _, err := ds.Yield()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 64, 64, 3}, inputs[0].Shape().Dimensions)
}

func TestTrainDatasetRepeatsForever(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = createDataDir(t, []string{"a", "b"}, 80, 80)
	cfg.ImageSize = 64
	cfg.JitterSize = 72

	ds, err := NewTrainDataset(cfg)
	require.NoError(t, err)
	assert.Equal(t, "training", ds.Name())

	// 2 pairs, 5 yields: the stream wraps around instead of ending.
	for ii := 0; ii < 5; ii++ {
		_, inputs, labels, err := ds.Yield()
		require.NoError(t, err)
		assert.Equal(t, []int{1, 64, 64, 3}, inputs[0].Shape().Dimensions)
		assert.Equal(t, []int{1, 64, 64, 3}, labels[0].Shape().Dimensions)
	}
}

func TestDatasetBatching(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = createDataDir(t, []string{"a", "b", "c"}, 80, 80)
	cfg.ImageSize = 64
	cfg.JitterSize = 72
	cfg.BatchSize = 2

	ds, err := NewTestDataset(cfg)
	require.NoError(t, err)
	_, inputs, labels, err := ds.Yield()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 64, 64, 3}, inputs[0].Shape().Dimensions)
	assert.Equal(t, []int{2, 64, 64, 3}, labels[0].Shape().Dimensions)

	// 3 pairs with batches of 2: the incomplete final batch is dropped.
	_, _, _, err = ds.Yield()
	assert.Equal(t, io.EOF, err)
}

func TestCreateDatasets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = createDataDir(t, []string{"a", "b"}, 80, 80)
	cfg.ImageSize = 64
	cfg.JitterSize = 72
	cfg.Parallelism = 2

	trainDS, testDS, err := CreateDatasets(cfg)
	require.NoError(t, err)
	for ii := 0; ii < 4; ii++ {
		_, inputs, _, err := trainDS.Yield()
		require.NoError(t, err)
		assert.Equal(t, []int{1, 64, 64, 3}, inputs[0].Shape().Dimensions)
	}
	_, inputs, _, err := testDS.Yield()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 64, 64, 3}, inputs[0].Shape().Dimensions)
}
