package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/fer-service/internal/emotion"
	"github.com/example/fer-service/internal/imageprocessor"
	"github.com/example/fer-service/internal/inference"
	"github.com/example/fer-service/internal/logging"
)

// ModelSource hands out the classifier once it is available.
type ModelSource interface {
	Model() (inference.Classifier, bool)
}

// PredictionObserver receives prediction telemetry.
type PredictionObserver interface {
	ObserveInference(elapsed time.Duration)
	ObservePrediction(label string)
}

// PredictionUseCase runs the decode, preprocess, classify and label pipeline.
type PredictionUseCase struct {
	models       ModelSource
	preprocessor imageprocessor.Preprocessor
	observer     PredictionObserver
	logger       *zap.Logger
}

// NewPredictionUseCase constructs a new use case instance.
func NewPredictionUseCase(models ModelSource, preprocessor imageprocessor.Preprocessor, observer PredictionObserver, logger *zap.Logger) *PredictionUseCase {
	return &PredictionUseCase{
		models:       models,
		preprocessor: preprocessor,
		observer:     observer,
		logger:       logger.Named("prediction_usecase"),
	}
}

// Predict classifies imageBytes. The image is decoded before readiness is checked, so
// undecodable uploads fail with DecodeFailure even while the model loads. Other
// failures are *Error values of kind NotReady or InferenceFailure.
func (uc *PredictionUseCase) Predict(ctx context.Context, requestID string, imageBytes []byte) (emotion.Scores, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", requestID)

	tensor, err := uc.preprocessor.Process(imageBytes)
	if err != nil {
		wrapped := logging.NewOperationError("imageprocessor.process", err)
		opLogger.Error("failed to preprocess image", append(logging.ErrorFields(wrapped), zap.Int("bytes", len(imageBytes)))...)
		return nil, NewError(KindDecodeFailure, wrapped)
	}

	model, ok := uc.models.Model()
	if !ok {
		opLogger.Warn("model not loaded yet")
		return nil, NewError(KindNotReady, ErrModelNotReady)
	}

	start := time.Now()
	raw, err := model.Classify(ctx, tensor)
	uc.observer.ObserveInference(time.Since(start))
	if err != nil {
		wrapped := logging.NewOperationError("inference.classify", err)
		opLogger.Error("inference failed", logging.ErrorFields(wrapped)...)
		return nil, NewError(KindInferenceFailure, wrapped)
	}

	scores, err := emotion.Map(raw)
	if err != nil {
		wrapped := logging.NewOperationError("emotion.map", err)
		opLogger.Error("unexpected model output", logging.ErrorFields(wrapped)...)
		return nil, NewError(KindInferenceFailure, wrapped)
	}

	label, confidence := scores.Top()
	uc.observer.ObservePrediction(label)
	opLogger.Info("prediction successful",
		zap.String("label", label),
		zap.Float32("confidence", confidence),
		zap.Duration("inference", time.Since(start)))
	return scores, nil
}
