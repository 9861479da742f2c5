/*
 *	Copyright 2025 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package pix2pix trains a conditional image-to-image translation GAN: a U-Net
// generator learns to map an input photograph to a paired target rendering,
// while a convolutional PatchGAN discriminator learns to tell generated
// renderings from real ones. The generator is trained on the sum of an
// adversarial loss and an L1 pixel-reconstruction loss, following
// "Image-to-Image Translation with Conditional Adversarial Networks"
// (Isola et al.).
//
// Training data is a directory tree of paired image files:
//
//	<data>/training/input/*.jpg   photographs
//	<data>/training/output/*.png  paired renderings, same base name
//	<data>/test/input/*.jpg       held-out pairs, same convention
//
// See the demo sub-directory for a ready-to-run training binary.
package pix2pix

import (
	"github.com/gomlx/gopjrt/dtypes"
)

// DType used for images, losses and model weights.
var DType = dtypes.Float32

// NumChannels is fixed: images are always decoded to RGB.
const NumChannels = 3

// Config holds every knob of a training run. Construct with DefaultConfig and
// override fields before passing it to NewTrainer.
type Config struct {
	// DataDir is the root of the dataset tree, with training/ and test/
	// sub-directories.
	DataDir string

	// CheckpointDir is where training checkpoints are saved and restored
	// from. Empty disables checkpointing.
	CheckpointDir string

	// LogsDir is the root for the scalar metrics stream, written under
	// <LogsDir>/fit/<timestamp>/. Empty disables it.
	LogsDir string

	// PreviewDir receives the periodic preview triples (input, target,
	// generated) as PNG files. Empty disables previews.
	PreviewDir string

	// ImageSize is the side of the square crop fed to the models. It must be
	// a power of two, since the U-Net halves it down to 1 pixel.
	ImageSize int

	// JitterSize is the intermediate resize applied before the random crop,
	// strictly larger than ImageSize. The slack is what creates the random
	// translation during augmentation.
	JitterSize int

	// BatchSize per training step.
	BatchSize int

	// L1LossWeight scales the pixel-reconstruction term relative to the
	// adversarial term of the generator loss.
	L1LossWeight float64

	// LearningRate and AdamBeta1/AdamBeta2 configure both optimizers. The
	// low first-moment decay (0.5) is the usual GAN stability tuning.
	LearningRate float64
	AdamBeta1    float64
	AdamBeta2    float64

	// DropoutRate applied to the first decoder blocks of the generator.
	DropoutRate float64

	// Steps to train for.
	Steps int

	// Cadence of side effects, in steps. All three must be >= 1; use the
	// empty *Dir fields to disable an output entirely.
	ProgressEverySteps   int
	PreviewEverySteps    int
	CheckpointEverySteps int

	// KeepCheckpoints limits how many checkpoints are kept on disk.
	KeepCheckpoints int

	// Parallelism is the number of workers decoding and augmenting images
	// ahead of the training loop.
	Parallelism int

	// Seed for dataset shuffling and augmentation.
	Seed int64
}

// DefaultConfig returns the standard pix2pix training configuration for
// 512x512 images.
func DefaultConfig() *Config {
	return &Config{
		CheckpointDir: "training_checkpoints",
		LogsDir:       "logs",
		PreviewDir:    "previews",

		ImageSize:  512,
		JitterSize: 542,
		BatchSize:  1,

		L1LossWeight: 100.0,
		LearningRate: 2e-4,
		AdamBeta1:    0.5,
		AdamBeta2:    0.999,
		DropoutRate:  0.5,

		Steps:                40_000,
		ProgressEverySteps:   10,
		PreviewEverySteps:    1000,
		CheckpointEverySteps: 5000,
		KeepCheckpoints:      10,

		Parallelism: 10,
		Seed:        42,
	}
}
