package inference

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Predictions holds per-model output vectors aligned with the input
// filename order.
type Predictions struct {
	Stage     [][]float32
	Locations [][]float32
}

// Runner computes stage and locations predictions for a set of image files.
type Runner struct {
	engine         Engine
	stageModel     string
	locationsModel string
	batchSize      int
	status         io.Writer
}

// NewRunner creates a Runner. If batchSize is <= 0, it defaults to 64.
// Readiness progress is written to status; pass nil to discard it.
func NewRunner(engine Engine, stageModel, locationsModel string, batchSize int, status io.Writer) *Runner {
	if batchSize <= 0 {
		batchSize = 64
	}
	if status == nil {
		status = io.Discard
	}
	return &Runner{
		engine:         engine,
		stageModel:     stageModel,
		locationsModel: locationsModel,
		batchSize:      batchSize,
		status:         status,
	}
}

// Predict loads each image from imageDir and runs both classifiers over the
// set. The server readiness gate runs first, so no model is touched when
// filenames is empty. Output order matches the input filename order; a count
// mismatch between inputs and either model's outputs is an error, never
// silently truncated.
func (r *Runner) Predict(ctx context.Context, imageDir string, filenames []string) (Predictions, error) {
	if len(filenames) == 0 {
		return Predictions{}, nil
	}

	if err := EnsureReady(ctx, r.engine, r.stageModel, r.locationsModel, r.status); err != nil {
		return Predictions{}, err
	}

	images := make([][]byte, len(filenames))
	for i, name := range filenames {
		data, err := os.ReadFile(filepath.Join(imageDir, name))
		if err != nil {
			return Predictions{}, fmt.Errorf("reading image %s: %w", name, err)
		}
		images[i] = data
	}

	stage, err := r.classifyAll(ctx, r.stageModel, images)
	if err != nil {
		return Predictions{}, err
	}
	locations, err := r.classifyAll(ctx, r.locationsModel, images)
	if err != nil {
		return Predictions{}, err
	}

	if len(stage) != len(filenames) || len(locations) != len(filenames) {
		return Predictions{}, fmt.Errorf(
			"prediction count mismatch: %d filenames, %d stage predictions, %d locations predictions",
			len(filenames), len(stage), len(locations))
	}

	return Predictions{Stage: stage, Locations: locations}, nil
}

// classifyAll runs one model over all images in batches of at most batchSize.
func (r *Runner) classifyAll(ctx context.Context, model string, images [][]byte) ([][]float32, error) {
	out := make([][]float32, 0, len(images))
	for start := 0; start < len(images); start += r.batchSize {
		end := min(start+r.batchSize, len(images))
		preds, err := r.engine.Classify(ctx, model, images[start:end])
		if err != nil {
			return nil, fmt.Errorf("classifying batch with %s: %w", model, err)
		}
		out = append(out, preds...)
	}
	return out, nil
}
