package inference

import (
	"context"
	"fmt"
	"io"
)

// Engine is the classifier server surface the runner depends on.
type Engine interface {
	IsRunning(ctx context.Context) bool
	HasModel(ctx context.Context, name string) bool
	Classify(ctx context.Context, model string, images [][]byte) ([][]float32, error)
}

// EnsureReady checks that the classifier server is running and that both
// models are loaded, writing progress to w. There is no pull step: the
// server loads its model artifacts from fixed paths at startup, so a
// missing model means the server is misconfigured.
func EnsureReady(ctx context.Context, e Engine, stageModel, locationsModel string, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("classifier server is not running; start it and retry")
	}

	for _, model := range []string{stageModel, locationsModel} {
		if !e.HasModel(ctx, model) {
			return fmt.Errorf("model %s is not loaded on the classifier server", model)
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}

	return nil
}
