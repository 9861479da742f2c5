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

package pix2pix

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
)

// ImagePair points at an input photograph and its paired target rendering on
// disk.
type ImagePair struct {
	InputPath, TargetPath string
}

// TargetPathFor derives the target rendering's path from the input
// photograph's: the last path element named "input" becomes "output", and the
// extension becomes ".png". This naming convention is the dataset contract.
func TargetPathFor(inputPath string) string {
	parts := strings.Split(inputPath, string(filepath.Separator))
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "input" {
			parts[i] = "output"
			break
		}
	}
	derived := strings.Join(parts, string(filepath.Separator))
	return strings.TrimSuffix(derived, filepath.Ext(derived)) + ".png"
}

// PairedImageFiles lists the input images under <baseDir>/input/*.jpg and
// derives each one's target path. It fails if no inputs match or if any
// derived target file is missing -- an incomplete pair is a dataset error,
// not something to skip over.
func PairedImageFiles(baseDir string) ([]ImagePair, error) {
	pattern := filepath.Join(baseDir, "input", "*.jpg")
	inputs, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid glob pattern %q", pattern)
	}
	if len(inputs) == 0 {
		return nil, errors.Errorf("no input images matched %q", pattern)
	}
	sort.Strings(inputs)
	pairs := make([]ImagePair, 0, len(inputs))
	for _, inputPath := range inputs {
		targetPath := TargetPathFor(inputPath)
		if _, err := os.Stat(targetPath); err != nil {
			return nil, errors.Wrapf(err, "input image %q has no paired target at %q", inputPath, targetPath)
		}
		pairs = append(pairs, ImagePair{InputPath: inputPath, TargetPath: targetPath})
	}
	return pairs, nil
}

// LoadImagePair decodes both images of the pair. It fails if either file is
// unreadable or not a valid image, or if the two images have different
// spatial dimensions.
func LoadImagePair(pair ImagePair) (input, target *image.NRGBA, err error) {
	input, err = loadImage(pair.InputPath)
	if err != nil {
		return
	}
	target, err = loadImage(pair.TargetPath)
	if err != nil {
		return
	}
	ib, tb := input.Bounds(), target.Bounds()
	if ib.Dx() != tb.Dx() || ib.Dy() != tb.Dy() {
		err = errors.Errorf("image pair %q (%dx%d) and %q (%dx%d) have mismatching dimensions",
			pair.InputPath, ib.Dx(), ib.Dy(), pair.TargetPath, tb.Dx(), tb.Dy())
	}
	return
}

func loadImage(imagePath string) (*image.NRGBA, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open image %q", imagePath)
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode image %q", imagePath)
	}
	return imaging.Clone(img), nil
}

// Dataset yields one (input, target) image pair per call to Yield, each as a
// [1, ImageSize, ImageSize, 3] tensor normalized to [-1, 1]. It implements
// train.Dataset and is safe for concurrent Yield calls, so it can be wrapped
// by data.CustomParallel.
type Dataset struct {
	name  string
	cfg   *Config
	pairs []ImagePair

	augment  bool
	infinite bool

	// mu protects the traversal state below. Image decoding and augmentation
	// happen outside the lock.
	mu    sync.Mutex
	rng   *rand.Rand
	order []int
	next  int
}

// Assert *Dataset implements train.Dataset.
var _ train.Dataset = &Dataset{}

// NewTrainDataset creates the training stream over <DataDir>/training:
// augmented with RandomJitter, reshuffled on every pass and repeating forever.
func NewTrainDataset(cfg *Config) (*Dataset, error) {
	pairs, err := PairedImageFiles(filepath.Join(cfg.DataDir, "training"))
	if err != nil {
		return nil, err
	}
	ds := &Dataset{
		name:     "training",
		cfg:      cfg,
		pairs:    pairs,
		augment:  true,
		infinite: true,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
	}
	ds.order = make([]int, len(pairs))
	for i := range ds.order {
		ds.order[i] = i
	}
	ds.reshuffle()
	return ds, nil
}

// NewTestDataset creates the evaluation stream over <DataDir>/test:
// deterministically resized, in file order, one pass.
func NewTestDataset(cfg *Config) (*Dataset, error) {
	pairs, err := PairedImageFiles(filepath.Join(cfg.DataDir, "test"))
	if err != nil {
		return nil, err
	}
	return &Dataset{name: "test", cfg: cfg, pairs: pairs}, nil
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string { return ds.name }

// Reset implements train.Dataset, restarting the traversal. The training
// dataset also reshuffles.
func (ds *Dataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.next = 0
	if ds.order != nil {
		ds.reshuffle()
	}
}

// reshuffle must be called with ds.mu held (or before the dataset is shared).
func (ds *Dataset) reshuffle() {
	ds.rng.Shuffle(len(ds.order), func(i, j int) {
		ds.order[i], ds.order[j] = ds.order[j], ds.order[i]
	})
}

// nextPair advances the traversal and returns the pair to load, plus a
// per-sample random generator when augmenting. Returns ok=false when a
// finite dataset is exhausted.
func (ds *Dataset) nextPair() (pair ImagePair, rng *rand.Rand, ok bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.next >= len(ds.pairs) {
		if !ds.infinite {
			return
		}
		ds.next = 0
		if ds.order != nil {
			ds.reshuffle()
		}
	}
	idx := ds.next
	if ds.order != nil {
		idx = ds.order[ds.next]
	}
	ds.next++
	if ds.augment {
		rng = rand.New(rand.NewSource(ds.rng.Int63()))
	}
	return ds.pairs[idx], rng, true
}

// Yield implements train.Dataset, producing one batch of Config.BatchSize
// samples. It returns io.EOF when a finite dataset is exhausted -- an
// incomplete final batch is dropped; any decode failure aborts the stream.
func (ds *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	batchSize := ds.cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	inputImgs := make([]*image.NRGBA, 0, batchSize)
	targetImgs := make([]*image.NRGBA, 0, batchSize)
	for len(inputImgs) < batchSize {
		pair, rng, ok := ds.nextPair()
		if !ok {
			err = io.EOF
			return
		}
		var inputImg, targetImg *image.NRGBA
		inputImg, targetImg, err = LoadImagePair(pair)
		if err != nil {
			return
		}
		if ds.augment {
			inputImg, targetImg = RandomJitter(rng, inputImg, targetImg, ds.cfg.ImageSize, ds.cfg.JitterSize)
		} else {
			inputImg = ResizeNearest(inputImg, ds.cfg.ImageSize, ds.cfg.ImageSize)
			targetImg = ResizeNearest(targetImg, ds.cfg.ImageSize, ds.cfg.ImageSize)
		}
		inputImgs = append(inputImgs, inputImg)
		targetImgs = append(targetImgs, targetImg)
	}
	inputs = []*tensors.Tensor{ImagesToTensor(inputImgs)}
	labels = []*tensors.Tensor{ImagesToTensor(targetImgs)}
	return
}

// CreateDatasets builds the two streams consumed during training: the
// training stream decoded and augmented by cfg.Parallelism workers with
// prefetching, and the plain test stream.
func CreateDatasets(cfg *Config) (trainDS, testDS train.Dataset, err error) {
	rawTrain, err := NewTrainDataset(cfg)
	if err != nil {
		return
	}
	trainDS = data.CustomParallel(rawTrain).Parallelism(cfg.Parallelism).Buffer(cfg.Parallelism).Start()
	testDS, err = NewTestDataset(cfg)
	return
}
