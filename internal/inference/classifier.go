// Package inference loads the expression classifier and runs it on prepared tensors.
package inference

import (
	"context"

	"github.com/example/fer-service/internal/imageprocessor"
)

// Classifier runs the model on a single input tensor and returns its raw score vector.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, input *imageprocessor.Tensor) ([]float32, error)
	Close() error
}

// LoadFunc produces a ready Classifier. It is called exactly once by a Loader.
type LoadFunc func(ctx context.Context) (Classifier, error)
