// Command demo trains the pix2pix image-to-image translation GAN on a
// directory of paired images:
//
//	<data>/training/input/*.jpg   input photographs
//	<data>/training/output/*.png  paired target renderings
//	<data>/test/...               held-out pairs, same layout
//
// Example:
//
//	go run ./demo --data=dataset --steps=40000 --checkpoint=training_checkpoints
//
// Training resumes from the latest checkpoint when one exists. On completion
// the generator and discriminator are exported under --export.
package main

import (
	"flag"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/xla"
	"github.com/gomlx/pix2pix"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagData        = flag.String("data", "dataset", "Directory with the training/ and test/ image pairs.")
	flagSteps       = flag.Int("steps", 40_000, "Number of training steps.")
	flagCheckpoint  = flag.String("checkpoint", "training_checkpoints", "Directory to save checkpoints to and restore them from. Empty disables checkpointing.")
	flagLogs        = flag.String("logs", "logs", "Root directory for the scalar metrics stream. Empty disables it.")
	flagPreviews    = flag.String("previews", "previews", "Directory for the periodic preview images. Empty disables previews.")
	flagExport      = flag.String("export", "saved_model", "Directory to export the trained generator and discriminator to. Empty disables the export.")
	flagParallelism = flag.Int("parallelism", 10, "Number of parallel workers decoding and augmenting images.")
	flagValidate    = flag.Bool("validate", false, "Decode every image pair before training, to fail fast on corrupt files.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	cfg := pix2pix.DefaultConfig()
	cfg.DataDir = *flagData
	cfg.Steps = *flagSteps
	cfg.CheckpointDir = *flagCheckpoint
	cfg.LogsDir = *flagLogs
	cfg.PreviewDir = *flagPreviews
	cfg.Parallelism = *flagParallelism

	if *flagValidate {
		validateDataset(cfg)
	}

	backend := backends.New()
	fmt.Printf("Backend: %s - %s\n", backend.Name(), backend.Description())

	trainer := must.M1(pix2pix.NewTrainer(backend, cfg))
	trainDS, testDS, err := pix2pix.CreateDatasets(cfg)
	if err != nil {
		klog.Exitf("Failed to build datasets: %+v", err)
	}
	if err = trainer.Fit(trainDS, testDS); err != nil {
		klog.Exitf("Training failed: %+v", err)
	}
	must.M(trainer.Close())
	if *flagExport != "" {
		must.M(trainer.ExportModels(*flagExport))
	}
}

// validateDataset decodes every pair of both splits once, aborting on the
// first broken file. Cheaper to find out now than 30k steps in.
func validateDataset(cfg *pix2pix.Config) {
	for _, split := range []string{"training", "test"} {
		pairs, err := pix2pix.PairedImageFiles(filepath.Join(cfg.DataDir, split))
		if err != nil {
			klog.Exitf("Failed to list %s pairs: %+v", split, err)
		}
		bar := progressbar.Default(int64(len(pairs)), "validating "+split)
		for _, pair := range pairs {
			if _, _, err := pix2pix.LoadImagePair(pair); err != nil {
				klog.Exitf("Invalid image pair: %+v", err)
			}
			_ = bar.Add(1)
		}
		_ = bar.Finish()
		fmt.Printf("%s: %s image pairs\n", split, humanize.Comma(int64(len(pairs))))
	}
}
