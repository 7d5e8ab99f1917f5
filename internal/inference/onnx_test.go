package inference

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/example/fer-service/internal/imageprocessor"
)

func TestONNXLoadFuncStopsBeforeRuntime(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	load := NewONNXLoadFunc(ONNXOptions{ModelPath: "missing.onnx"}, zap.NewNop())
	if _, err := load(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}

	load = NewONNXLoadFunc(ONNXOptions{
		ModelPath:    "missing.onnx",
		MetadataPath: filepath.Join(t.TempDir(), "absent.json"),
	}, zap.NewNop())
	if _, err := load(context.Background()); err == nil {
		t.Fatal("expected missing metadata to fail the load")
	}
}

// Runs against a real artifact when MODEL_PATH and ONNXRUNTIME_LIB_PATH are set.
func TestONNXModelClassifiesConcurrently(t *testing.T) {
	modelPath := os.Getenv("MODEL_PATH")
	libPath := os.Getenv("ONNXRUNTIME_LIB_PATH")
	if modelPath == "" || libPath == "" {
		t.Skip("MODEL_PATH and ONNXRUNTIME_LIB_PATH not set")
	}

	model, err := OpenONNX(ONNXOptions{ModelPath: modelPath, LibraryPath: libPath})
	if err != nil {
		t.Fatalf("failed to open model: %v", err)
	}
	defer model.Close()

	input := &imageprocessor.Tensor{
		Shape: imageprocessor.InputShape(),
		Data:  make([]float32, imageprocessor.Size*imageprocessor.Size),
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scores, err := model.Classify(context.Background(), input)
			if err != nil {
				errs <- err
				return
			}
			if len(scores) != 7 {
				errs <- errors.New("expected 7 scores")
				return
			}
			for _, s := range scores {
				if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
					errs <- errors.New("non-finite score")
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("classify failed: %v", err)
	}
}
