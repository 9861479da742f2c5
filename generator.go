package pix2pix

import (
	"fmt"

	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/initializers"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/ml/layers/batchnorm"
)

// Scopes under which each model's variables live in the context. Everything
// outside these two scopes (optimizer slots, global step) is training state.
const (
	GeneratorScope     = "generator"
	DiscriminatorScope = "discriminator"
)

// WeightsInitStdDev for all convolution kernels, N(0, 0.02) as in the
// original pix2pix.
const WeightsInitStdDev = 0.02

// downsampleBlock halves the spatial dimensions: Conv 4x4 stride 2, optional
// batch normalization, LeakyReLU(0.2). Shared by the generator encoder and
// the discriminator.
func downsampleBlock(ctx *context.Context, x *Node, filters int, useBatchNorm bool) *Node {
	x = layers.Convolution(ctx, x).Filters(filters).KernelSize(4).Strides(2).PadSame().UseBias(false).Done()
	if useBatchNorm {
		x = batchnorm.New(ctx.In("norm"), x, -1).Done()
	}
	return activations.LeakyReluWithAlpha(x, 0.2)
}

// upsampleBlock doubles the spatial dimensions: nearest-neighbor x2 upsample,
// Conv 4x4 stride 1, batch normalization, optional dropout, ReLU.
func upsampleBlock(ctx *context.Context, x *Node, filters int, dropoutRate float64) *Node {
	dims := x.Shape().Dimensions
	x = Interpolate(x, NoInterpolation, 2*dims[1], 2*dims[2], NoInterpolation).Nearest().Done()
	x = layers.Convolution(ctx, x).Filters(filters).KernelSize(4).Strides(1).PadSame().UseBias(false).Done()
	x = batchnorm.New(ctx.In("norm"), x, -1).Done()
	if dropoutRate > 0 {
		x = layers.DropoutStatic(ctx, x, dropoutRate)
	}
	return activations.Relu(x)
}

// generatorFilters returns the encoder filter progression for a given square
// image size: 64, 128, 256 and then 512 for every further halving, until the
// encoder bottleneck reaches 1x1. The decoder mirrors the encoder.
func generatorFilters(imageSize int) (encoder, decoder []int) {
	for size := imageSize; size > 1; size /= 2 {
		filters := 64 << len(encoder)
		if filters > 512 {
			filters = 512
		}
		encoder = append(encoder, filters)
	}
	for i := len(encoder) - 2; i >= 0; i-- {
		decoder = append(decoder, encoder[i])
	}
	return
}

// Generator builds the U-Net generator graph: input is a [batch, size, size,
// 3] image batch normalized to [-1, 1], output has the same shape, squashed
// by Tanh to [-1, 1]. The encoder halves the image down to a 1x1 bottleneck
// and the decoder doubles it back up, concatenating the matching encoder
// output at every resolution. Dropout on the first three decoder blocks is
// the model's only source of stochasticity, active in training mode.
//
// Variables are created under the "generator" scope of ctx, so the
// discriminator and the optimizers can be kept apart from them.
func Generator(ctx *context.Context, input *Node, dropoutRate float64) *Node {
	ctx = ctx.In(GeneratorScope).WithInitializer(initializers.RandomNormalFn(ctx, WeightsInitStdDev))
	encoderFilters, decoderFilters := generatorFilters(input.Shape().Dimensions[1])

	x := input
	var skips []*Node
	for ii, filters := range encoderFilters {
		x = downsampleBlock(ctx.In(fmt.Sprintf("%03d-down", ii)), x, filters, ii > 0)
		skips = append(skips, x)
	}
	for ii, filters := range decoderFilters {
		rate := 0.0
		if ii < 3 {
			rate = dropoutRate
		}
		x = upsampleBlock(ctx.In(fmt.Sprintf("%03d-up", ii)), x, filters, rate)
		x = Concatenate([]*Node{x, skips[len(skips)-2-ii]}, -1)
	}

	// Final doubling back to the input resolution, projected to RGB.
	dims := x.Shape().Dimensions
	x = Interpolate(x, NoInterpolation, 2*dims[1], 2*dims[2], NoInterpolation).Nearest().Done()
	x = layers.Convolution(ctx.In("rgb"), x).Filters(NumChannels).KernelSize(4).Strides(1).PadSame().Done()
	return Tanh(x)
}
