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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gomlx/ui/plots"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Trainer owns everything one training run needs: the backend, the context
// holding both models' variables and both optimizers' state, the compiled
// step executors, the checkpoint handler and the metrics stream. Construct it
// once with NewTrainer, run Fit, then Close.
type Trainer struct {
	Backend backends.Backend
	Ctx     *context.Context
	Config  *Config

	// Checkpoint is nil when Config.CheckpointDir is empty.
	Checkpoint *checkpoints.Handler

	genOptimizer, discOptimizer optimizers.Interface

	trainStepExec   *context.Exec
	previewExec     *context.Exec
	denormalizeExec *Exec

	points    chan<- plots.Point
	pointsErr <-chan error
}

// NewTrainer creates the models, the two Adam optimizers and the step
// executors. If Config.CheckpointDir holds a previous checkpoint, the latest
// one is restored -- models and optimizer state resume from it, but the step
// counter of Fit still starts at 0.
func NewTrainer(backend backends.Backend, cfg *Config) (*Trainer, error) {
	ctx := context.New()
	ctx.RngStateFromSeed(cfg.Seed)
	t := &Trainer{
		Backend: backend,
		Ctx:     ctx,
		Config:  cfg,
		genOptimizer: optimizers.Adam().
			LearningRate(cfg.LearningRate).Betas(cfg.AdamBeta1, cfg.AdamBeta2).
			Scope("generator_adam").Done(),
		discOptimizer: optimizers.Adam().
			LearningRate(cfg.LearningRate).Betas(cfg.AdamBeta1, cfg.AdamBeta2).
			Scope("discriminator_adam").Done(),
	}

	if cfg.CheckpointDir != "" {
		var err error
		t.Checkpoint, err = checkpoints.Build(ctx).Dir(cfg.CheckpointDir).Keep(cfg.KeepCheckpoints).Done()
		if err != nil {
			return nil, errors.WithMessagef(err, "restoring checkpoint from %q", cfg.CheckpointDir)
		}
		if has, _ := t.Checkpoint.HasCheckpoints(); has {
			klog.Infof("Restored checkpoint from %q", t.Checkpoint.Dir())
		}
	}

	// Checked(false) lets the two executors create or reuse variables in
	// whichever order they are first called.
	t.trainStepExec = context.NewExec(backend, ctx.Checked(false), t.trainStepGraph)
	t.previewExec = context.NewExec(backend, ctx.Checked(false), t.previewGraph)
	t.denormalizeExec = NewExec(backend, DenormalizeImages)

	if cfg.LogsDir != "" {
		logsDir := filepath.Join(cfg.LogsDir, "fit", time.Now().Format("20060102-150405"))
		if err := os.MkdirAll(logsDir, 0777); err != nil {
			return nil, errors.Wrapf(err, "creating metrics directory %q", logsDir)
		}
		t.points, t.pointsErr = plots.CreatePointsWriter(filepath.Join(logsDir, plots.TrainingPlotFileName))
	}
	return t, nil
}

// freezeScope marks every variable under ctx's scope as non-trainable and
// returns a function restoring the previous trainability flags. Trainability
// is read at graph building time, so this is how each optimizer's update is
// limited to its own model within a single graph.
func freezeScope(ctx *context.Context) (restore func()) {
	var frozen []*context.Variable
	var previous []bool
	ctx.EnumerateVariablesInScope(func(v *context.Variable) {
		frozen = append(frozen, v)
		previous = append(previous, v.Trainable)
		v.Trainable = false
	})
	return func() {
		for i, v := range frozen {
			v.Trainable = previous[i]
		}
	}
}

// trainStepGraph builds one adversarial optimization step:
//
//   - Generator forward on the input, discriminator on (input, target) and on
//     (input, generated), all in training mode.
//   - Generator update from BCE(fake logits, 1) + L1LossWeight * L1, with the
//     discriminator's variables frozen.
//   - Discriminator update from BCE(real logits, 1) + BCE(fake logits, 0),
//     computed on a third discriminator pass over the gradient-stopped
//     generator output, with the generator's variables frozen.
//
// Because each loss depends on the shared generated image, the freeze plus
// the StopGradient are both required: they guarantee neither update ever
// flows into the other model's parameters.
func (t *Trainer) trainStepGraph(ctx *context.Context, input, target *Node) (genTotal, genAdversarial, genL1, discLoss *Node) {
	g := input.Graph()
	ctx.SetTraining(g, true)

	generated := Generator(ctx, input, t.Config.DropoutRate)
	discReal := Discriminator(ctx, input, target)
	discFake := Discriminator(ctx.Reuse(), input, generated)
	genTotal, genAdversarial, genL1 = GeneratorLoss(discFake, generated, target, t.Config.L1LossWeight)

	restore := freezeScope(ctx.In(DiscriminatorScope))
	t.genOptimizer.UpdateGraph(ctx, g, genTotal)
	restore()

	discFakeDetached := Discriminator(ctx.Reuse(), input, StopGradient(generated))
	discLoss = DiscriminatorLoss(discReal, discFakeDetached)
	restore = freezeScope(ctx.In(GeneratorScope))
	t.discOptimizer.UpdateGraph(ctx, g, discLoss)
	restore()
	return
}

// previewGraph runs the generator on a held-out input and denormalizes the
// result to pixel values. Training mode stays on, so the preview shows the
// dropout-perturbed outputs the models actually train against.
func (t *Trainer) previewGraph(ctx *context.Context, input *Node) *Node {
	ctx.SetTraining(input.Graph(), true)
	return DenormalizeImages(Generator(ctx, input, t.Config.DropoutRate))
}

// TrainStep runs one adversarial optimization step on the given batch and
// returns the four loss scalars. Graph building and execution report failures
// (mismatching batch shapes, backend errors) by panicking; they are caught
// here and returned as an error.
func (t *Trainer) TrainStep(input, target *tensors.Tensor) (genTotal, genAdversarial, genL1, discLoss float32, err error) {
	err = exceptions.TryCatch[error](func() {
		results := t.trainStepExec.Call(input, target)
		genTotal = results[0].Value().(float32)
		genAdversarial = results[1].Value().(float32)
		genL1 = results[2].Value().(float32)
		discLoss = results[3].Value().(float32)
	})
	return
}

// Fit drives Config.Steps training iterations over the infinitely repeating
// training stream:
//
//   - every step: one adversarial update, losses recorded at the coarsened
//     index step/1000;
//   - every ProgressEverySteps: a "." progress marker;
//   - every PreviewEverySteps: a preview triple on a fixed test sample and the
//     wall time of the preceding block;
//   - every CheckpointEverySteps: a checkpoint save.
//
// There is no early stopping: the loop ends after exactly Config.Steps steps.
func (t *Trainer) Fit(trainDS, testDS train.Dataset) error {
	cfg := t.Config
	if cfg.ProgressEverySteps < 1 || cfg.PreviewEverySteps < 1 || cfg.CheckpointEverySteps < 1 {
		return errors.Errorf(
			"cadences must be >= 1 step, got ProgressEverySteps=%d, PreviewEverySteps=%d, CheckpointEverySteps=%d",
			cfg.ProgressEverySteps, cfg.PreviewEverySteps, cfg.CheckpointEverySteps)
	}

	// Fixed held-out sample used for every preview.
	var previewInput, previewTarget *tensors.Tensor
	if testDS != nil {
		_, inputs, labels, err := testDS.Yield()
		if err != nil {
			return errors.WithMessagef(err, "reading the preview sample from dataset %q", testDS.Name())
		}
		previewInput, previewTarget = inputs[0], labels[0]
		testDS.Reset()
	}

	start := time.Now()
	for step := 0; step < cfg.Steps; step++ {
		if step%cfg.PreviewEverySteps == 0 {
			if step != 0 {
				fmt.Printf("\nTime taken for %d steps: %s\n", cfg.PreviewEverySteps,
					time.Since(start).Round(time.Millisecond))
				start = time.Now()
			}
			if previewInput != nil {
				if err := t.SavePreview(step, previewInput, previewTarget); err != nil {
					return err
				}
			}
			fmt.Printf("Step: %dk\n", step/1000)
		}

		_, inputs, labels, err := trainDS.Yield()
		if err != nil {
			return errors.WithMessagef(err, "training stream %q failed at step %d", trainDS.Name(), step)
		}
		genTotal, genAdversarial, genL1, discLoss, err := t.TrainStep(inputs[0], labels[0])
		if err != nil {
			return errors.WithMessagef(err, "training step %d", step)
		}
		t.logScalars(step, genTotal, genAdversarial, genL1, discLoss)

		if (step+1)%cfg.ProgressEverySteps == 0 {
			fmt.Print(".")
		}
		if t.Checkpoint != nil && (step+1)%cfg.CheckpointEverySteps == 0 {
			if err := t.Checkpoint.Save(); err != nil {
				return errors.WithMessagef(err, "saving checkpoint at step %d", step+1)
			}
		}
	}
	fmt.Println()
	return nil
}

// logScalars streams the four losses, tagged by the coarsened step index.
func (t *Trainer) logScalars(step int, genTotal, genAdversarial, genL1, discLoss float32) {
	if t.points == nil {
		return
	}
	coarse := float64(step / 1000)
	for _, p := range []plots.Point{
		{MetricName: "gen_total_loss", Short: "gen_total", MetricType: "loss", Step: coarse, Value: float64(genTotal)},
		{MetricName: "gen_gan_loss", Short: "gen_gan", MetricType: "loss", Step: coarse, Value: float64(genAdversarial)},
		{MetricName: "gen_l1_loss", Short: "gen_l1", MetricType: "loss", Step: coarse, Value: float64(genL1)},
		{MetricName: "disc_loss", Short: "disc", MetricType: "loss", Step: coarse, Value: float64(discLoss)},
	} {
		t.points <- p
	}
}

// ExportModels persists the generator and the discriminator independently
// under <baseDir>/generator and <baseDir>/discriminator, each holding only
// that model's variables (no optimizer state).
func (t *Trainer) ExportModels(baseDir string) error {
	for _, model := range []struct{ scope, dir string }{
		{GeneratorScope, "generator"},
		{DiscriminatorScope, "discriminator"},
	} {
		exportDir := filepath.Join(baseDir, model.dir)
		prefix := context.ScopeSeparator + model.scope
		var exclude []*context.Variable
		t.Ctx.EnumerateVariables(func(v *context.Variable) {
			if v.Scope() != prefix && !strings.HasPrefix(v.Scope(), prefix+context.ScopeSeparator) {
				exclude = append(exclude, v)
			}
		})
		handler, err := checkpoints.Build(t.Ctx).Dir(exportDir).
			ExcludeVarsFromSaving(exclude...).Keep(1).Done()
		if err != nil {
			return errors.WithMessagef(err, "creating export directory %q", exportDir)
		}
		if err := handler.Save(); err != nil {
			return errors.WithMessagef(err, "exporting %s to %q", model.scope, exportDir)
		}
		klog.Infof("Exported %s to %q", model.scope, exportDir)
	}
	return nil
}

// Close flushes and closes the metrics stream. It does not save a checkpoint.
func (t *Trainer) Close() error {
	if t.points == nil {
		return nil
	}
	close(t.points)
	t.points = nil
	return <-t.pointsErr
}
