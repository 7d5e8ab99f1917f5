package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/example/fer-service/internal/imageprocessor"
)

// ONNXOptions configures how an ONNX artifact is opened. Empty tensor names are
// discovered from the artifact; an empty LibraryPath uses the platform default.
type ONNXOptions struct {
	ModelPath    string
	MetadataPath string
	InputName    string
	OutputName   string
	LibraryPath  string
}

// ONNXModel runs an ONNX artifact through onnxruntime. Each Classify call binds its own
// tensors, so the session is shared without locking.
type ONNXModel struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	closeOnce  sync.Once
}

var envMu sync.Mutex

// NewONNXLoadFunc returns a LoadFunc that opens the artifact described by opts.
func NewONNXLoadFunc(opts ONNXOptions, logger *zap.Logger) LoadFunc {
	return func(ctx context.Context) (Classifier, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opts.MetadataPath != "" {
			meta, err := LoadMetadata(opts.MetadataPath)
			if err != nil {
				return nil, err
			}
			if err := meta.Validate(); err != nil {
				return nil, err
			}
			logger.Info("model metadata verified", zap.Strings("classes", meta.Classes))
		}
		model, err := OpenONNX(opts)
		if err != nil {
			return nil, err
		}
		logger.Info("onnx session ready",
			zap.String("model_path", opts.ModelPath),
			zap.String("input", model.inputName),
			zap.String("output", model.outputName))
		return model, nil
	}
}

// OpenONNX initializes the runtime environment if needed and creates a session.
func OpenONNX(opts ONNXOptions) (*ONNXModel, error) {
	if err := initEnvironment(opts.LibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect model: %w", err)
	}
	in, err := pickTensor("input", inputs, opts.InputName)
	if err != nil {
		return nil, err
	}
	out, err := pickTensor("output", outputs, opts.OutputName)
	if err != nil {
		return nil, err
	}
	if err := checkShape("input", in.Dimensions, imageprocessor.InputShape()); err != nil {
		return nil, err
	}
	if err := checkShape("output", out.Dimensions, outputShape()); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(opts.ModelPath,
		[]string{in.Name}, []string{out.Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXModel{
		session:    session,
		inputName:  in.Name,
		outputName: out.Name,
	}, nil
}

func initEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

func pickTensor(kind string, infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, fmt.Errorf("model has no %s tensors", kind)
	}
	if name == "" {
		if len(infos) > 1 {
			return ort.InputOutputInfo{}, fmt.Errorf("model has %d %s tensors, set the %s name explicitly", len(infos), kind, kind)
		}
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return ort.InputOutputInfo{}, fmt.Errorf("model has no %s tensor named %q", kind, name)
}

// Classify implements Classifier.
func (m *ONNXModel) Classify(ctx context.Context, input *imageprocessor.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(outputShape()...))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := m.session.Run([]ort.ArbitraryTensor{in}, []ort.ArbitraryTensor{out}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	scores := make([]float32, len(out.GetData()))
	copy(scores, out.GetData())
	return scores, nil
}

// Close destroys the session and the runtime environment.
func (m *ONNXModel) Close() error {
	var err error
	m.closeOnce.Do(func() {
		if m.session != nil {
			err = m.session.Destroy()
		}
		envMu.Lock()
		defer envMu.Unlock()
		if ort.IsInitialized() {
			err = errors.Join(err, ort.DestroyEnvironment())
		}
	})
	return err
}
