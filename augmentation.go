package pix2pix

import (
	"image"
	"math/rand"

	"github.com/disintegration/imaging"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
)

// ResizeNearest scales img to width x height with nearest-neighbor
// interpolation. Nearest-neighbor keeps the hard edges of label-like content
// intact, where bilinear filters would blend class colors.
func ResizeNearest(img image.Image, width, height int) *image.NRGBA {
	return imaging.Resize(img, width, height, imaging.NearestNeighbor)
}

// RandomJitter applies the pix2pix training augmentation to an image pair:
// both images are resized to jitterSize x jitterSize, a shared random
// cropSize x cropSize window is cut from both, and with probability 0.5 both
// are mirrored horizontally.
//
// The crop offset and the flip decision are drawn once and applied to both
// images, so the spatial correspondence between input and target is never
// broken. Fresh randomness is drawn from rng on every call.
func RandomJitter(rng *rand.Rand, input, target image.Image, cropSize, jitterSize int) (jInput, jTarget *image.NRGBA) {
	jInput = ResizeNearest(input, jitterSize, jitterSize)
	jTarget = ResizeNearest(target, jitterSize, jitterSize)

	x := rng.Intn(jitterSize - cropSize + 1)
	y := rng.Intn(jitterSize - cropSize + 1)
	window := image.Rect(x, y, x+cropSize, y+cropSize)
	jInput = imaging.Crop(jInput, window)
	jTarget = imaging.Crop(jTarget, window)

	if rng.Float64() > 0.5 {
		jInput = imaging.FlipH(jInput)
		jTarget = imaging.FlipH(jTarget)
	}
	return
}

// ImageToTensor converts one decoded image to a [1, height, width, 3] tensor.
// See ImagesToTensor.
func ImageToTensor(img *image.NRGBA) *tensors.Tensor {
	return ImagesToTensor([]*image.NRGBA{img})
}

// ImagesToTensor stacks equally sized decoded images into a [batch, height,
// width, 3] tensor of DType, with pixel values normalized from [0, 255] to
// [-1, 1] via (x/127.5)-1. The alpha channel is dropped.
func ImagesToTensor(imgs []*image.NRGBA) *tensors.Tensor {
	b := imgs[0].Bounds()
	width, height := b.Dx(), b.Dy()
	t := tensors.FromShape(shapes.Make(DType, len(imgs), height, width, NumChannels))
	t.MutableFlatData(func(flatAny any) {
		flat := flatAny.([]float32)
		pos := 0
		for _, img := range imgs {
			for y := 0; y < height; y++ {
				row := img.Pix[y*img.Stride : y*img.Stride+width*4]
				for x := 0; x < width; x++ {
					for c := 0; c < NumChannels; c++ {
						flat[pos] = float32(row[x*4+c])/127.5 - 1
						pos++
					}
				}
			}
		}
	})
	return t
}

// DenormalizeImages is the graph counterpart of the ImageToTensor
// normalization: it maps values in [-1, 1] back to pixel values in [0, 255],
// clipping anything the models produced outside the valid range.
func DenormalizeImages(images *Node) *Node {
	return ClipScalar(MulScalar(AddScalar(images, 1), 127.5), 0, 255)
}
