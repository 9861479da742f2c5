package pix2pix

import (
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/initializers"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/ml/layers/batchnorm"
)

// Discriminator builds the PatchGAN discriminator graph. It scores the
// (input, candidate) pair -- candidate being either the real target or the
// generator's output, concatenated with the input on the channels axis -- and
// returns a [batch, h, w, 1] map of per-patch realism logits: each logit
// judges one receptive-field patch of the candidate instead of the whole
// image.
//
// Variables are created under the "discriminator" scope of ctx.
func Discriminator(ctx *context.Context, input, candidate *Node) *Node {
	ctx = ctx.In(DiscriminatorScope).WithInitializer(initializers.RandomNormalFn(ctx, WeightsInitStdDev))
	x := Concatenate([]*Node{input, candidate}, -1)

	x = downsampleBlock(ctx.In("000-down"), x, 64, false)
	x = downsampleBlock(ctx.In("001-down"), x, 128, true)
	x = downsampleBlock(ctx.In("002-down"), x, 256, true)

	// Stride-1 tail: widens the receptive field without shrinking the patch
	// map further.
	x = layers.Convolution(ctx.In("003-conv"), x).Filters(512).KernelSize(4).Strides(1).PadSame().UseBias(false).Done()
	x = batchnorm.New(ctx.In("003-conv").In("norm"), x, -1).Done()
	x = activations.LeakyReluWithAlpha(x, 0.2)

	return layers.Convolution(ctx.In("logits"), x).Filters(1).KernelSize(4).Strides(1).PadSame().Done()
}
