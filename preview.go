package pix2pix

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/types/tensors"
	timages "github.com/gomlx/gomlx/types/tensors/images"
	"github.com/pkg/errors"
)

// SavePreview writes the qualitative visualization triple for the given step
// under Config.PreviewDir: the held-out input, its ground truth and the
// generator's current output, as step_<step>_{input,target,generated}.png.
// It is a no-op when PreviewDir is empty.
func (t *Trainer) SavePreview(step int, input, target *tensors.Tensor) error {
	if t.Config.PreviewDir == "" {
		return nil
	}
	if err := os.MkdirAll(t.Config.PreviewDir, 0777); err != nil {
		return errors.Wrapf(err, "creating preview directory %q", t.Config.PreviewDir)
	}
	var generated, inputPixels, targetPixels *tensors.Tensor
	err := exceptions.TryCatch[error](func() {
		generated = t.previewExec.Call(input)[0]
		inputPixels = t.denormalizeExec.Call(input)[0]
		targetPixels = t.denormalizeExec.Call(target)[0]
	})
	if err != nil {
		return errors.WithMessagef(err, "generating preview at step %d", step)
	}
	for _, part := range []struct {
		name   string
		pixels *tensors.Tensor
	}{
		{"input", inputPixels},
		{"target", targetPixels},
		{"generated", generated},
	} {
		img, err := tensorToImage(part.pixels)
		if err != nil {
			return errors.WithMessagef(err, "rendering preview %q at step %d", part.name, step)
		}
		imgPath := filepath.Join(t.Config.PreviewDir, fmt.Sprintf("step_%07d_%s.png", step, part.name))
		if err := writePNG(imgPath, img); err != nil {
			return err
		}
	}
	return nil
}

// tensorToImage converts one [1, height, width, 3] tensor of pixel values in
// [0, 255] to an image.
func tensorToImage(pixels *tensors.Tensor) (image.Image, error) {
	imgs, err := timages.ToImage().MaxValue(255.0).Batch(pixels)
	if err != nil {
		return nil, err
	}
	return imgs[0], nil
}

func writePNG(imgPath string, img image.Image) error {
	f, err := os.Create(imgPath)
	if err != nil {
		return errors.Wrapf(err, "creating preview file %q", imgPath)
	}
	if err = png.Encode(f, img); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "encoding preview file %q", imgPath)
	}
	return errors.Wrapf(f.Close(), "writing preview file %q", imgPath)
}
