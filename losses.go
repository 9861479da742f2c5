package pix2pix

import (
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/train/losses"
)

// GeneratorLoss composes the generator objective from the discriminator's
// logits on the generated image: an adversarial term pushing those logits
// toward "real", plus the mean absolute pixel difference to the target scaled
// by l1Weight. The large L1 weight (100 by default) makes pixel fidelity
// dominate early training, before the discriminator provides a useful signal.
// All three returned nodes are scalars.
func GeneratorLoss(discFakeLogits, generated, target *Node, l1Weight float64) (total, adversarial, l1 *Node) {
	adversarial = ReduceAllMean(losses.BinaryCrossentropyLogits(
		[]*Node{OnesLike(discFakeLogits)}, []*Node{discFakeLogits}))
	l1 = ReduceAllMean(Abs(Sub(target, generated)))
	total = Add(adversarial, MulScalar(l1, l1Weight))
	return
}

// DiscriminatorLoss is the standard non-saturating discriminator objective:
// binary cross-entropy of the real pair's logits against label 1 plus binary
// cross-entropy of the generated pair's logits against label 0, each averaged
// over the patch map. The two terms are summed, not averaged, so the reported
// disc_loss runs at twice the scale of the mean of the two cross-entropies
// (ln(2)+ln(2) ~= 1.39 for a blind discriminator, not 0.69). Returns a scalar.
func DiscriminatorLoss(discRealLogits, discFakeLogits *Node) *Node {
	realLoss := ReduceAllMean(losses.BinaryCrossentropyLogits(
		[]*Node{OnesLike(discRealLogits)}, []*Node{discRealLogits}))
	fakeLoss := ReduceAllMean(losses.BinaryCrossentropyLogits(
		[]*Node{ZerosLike(discFakeLogits)}, []*Node{discFakeLogits}))
	return Add(realLoss, fakeLoss)
}
