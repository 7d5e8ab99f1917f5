package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/fer-service/internal/emotion"
	"github.com/example/fer-service/internal/inference"
	"github.com/example/fer-service/internal/logging"
	"github.com/example/fer-service/internal/metrics"
	"github.com/example/fer-service/internal/usecase"
)

// DefaultMaxUploadSize bounds the size of a /predict request body.
const DefaultMaxUploadSize = 10 << 20

const maxFeedbackSize = 1 << 20

var (
	errNoImage         = errors.New("no image file provided")
	errInvalidFeedback = errors.New("invalid feedback data")
)

// badInputMessages holds the route specific client message for each BadInput cause.
var badInputMessages = map[error]string{
	errNoImage:         "No image file provided",
	errInvalidFeedback: "Invalid feedback data",
}

// Predictor runs the prediction pipeline.
type Predictor interface {
	Predict(ctx context.Context, requestID string, imageBytes []byte) (emotion.Scores, error)
}

// FeedbackSubmitter accepts user feedback.
type FeedbackSubmitter interface {
	Submit(ctx context.Context, fb usecase.Feedback)
}

// Readiness reports where the model load stands.
type Readiness interface {
	State() inference.State
}

// Dependencies are the collaborators the routes need. Metrics is optional.
type Dependencies struct {
	Predictor     Predictor
	Feedback      FeedbackSubmitter
	Readiness     Readiness
	Metrics       *metrics.Metrics
	MaxUploadSize int64
	Logger        *zap.Logger
}

type feedbackRequest struct {
	IsCorrect *bool `json:"isCorrect" binding:"required"`
}

// errorResponses maps every failure kind to a fixed status and client message.
// BadInput messages come from badInputMessages.
var errorResponses = map[usecase.ErrorKind]struct {
	status  int
	message string
}{
	usecase.KindBadInput:         {http.StatusBadRequest, "Bad request"},
	usecase.KindTooLarge:         {http.StatusRequestEntityTooLarge, "Image file too large"},
	usecase.KindNotReady:         {http.StatusServiceUnavailable, "Model not loaded yet. Please try again later."},
	usecase.KindDecodeFailure:    {http.StatusInternalServerError, "Failed to decode image"},
	usecase.KindInferenceFailure: {http.StatusInternalServerError, "Prediction failed"},
}

// NewRouter builds a gin engine with middleware and every route registered.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.MaxUploadSize <= 0 {
		deps.MaxUploadSize = DefaultMaxUploadSize
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	router := gin.New()
	router.MaxMultipartMemory = deps.MaxUploadSize
	router.Use(RequestID(), Recovery(deps.Logger), CORS(), AccessLog(deps.Logger))
	if deps.Metrics != nil {
		router.Use(Observe(deps.Metrics))
	}

	RegisterRoutes(router, deps)
	return router
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	logger := deps.Logger.Named("handlers")

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	router.GET("/ready", func(c *gin.Context) {
		switch deps.Readiness.State() {
		case inference.StateReady:
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
		case inference.StateFailed:
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "failed", "error": "model load failed"})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
		}
	})

	router.POST("/predict", func(c *gin.Context) {
		requestID := GetRequestID(c)
		opLogger := logging.WithOperation(logger, "handlers.predict", requestID)
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, deps.MaxUploadSize)

		file, err := c.FormFile("image")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(c, opLogger, usecase.NewError(usecase.KindTooLarge, err))
				return
			}
			respondError(c, opLogger, badInput(errNoImage, err))
			return
		}

		src, err := file.Open()
		if err != nil {
			respondError(c, opLogger, badInput(errNoImage, logging.NewOperationError("handlers.open_upload", err)))
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			respondError(c, opLogger, logging.NewOperationError("handlers.read_image", err))
			return
		}
		opLogger.Info("received prediction request", zap.String("filename", file.Filename), zap.Int64("size", file.Size))

		scores, err := deps.Predictor.Predict(c.Request.Context(), requestID, data)
		if err != nil {
			respondError(c, opLogger, err)
			return
		}

		c.JSON(http.StatusOK, scores)
	})

	router.POST("/feedback", func(c *gin.Context) {
		requestID := GetRequestID(c)
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFeedbackSize)

		var req feedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, logging.WithOperation(logger, "handlers.feedback", requestID), badInput(errInvalidFeedback, err))
			return
		}

		deps.Feedback.Submit(c.Request.Context(), usecase.Feedback{
			IsCorrect:  *req.IsCorrect,
			RequestID:  requestID,
			ReceivedAt: time.Now(),
		})
		c.JSON(http.StatusOK, gin.H{"status": "Feedback received"})
	})

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
}

func badInput(cause, err error) error {
	return usecase.NewError(usecase.KindBadInput, fmt.Errorf("%w: %w", cause, err))
}

// respondError writes the fixed response for err's kind. Internal details only reach the log.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	kind := usecase.KindOf(err)
	resp, ok := errorResponses[kind]
	if !ok {
		logger.Error("unclassified failure", logging.ErrorFields(err)...)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	message := resp.message
	switch kind {
	case usecase.KindBadInput:
		for cause, msg := range badInputMessages {
			if errors.Is(err, cause) {
				message = msg
				break
			}
		}
		logger.Warn("request rejected", zap.Stringer("kind", kind), zap.Error(err))
	case usecase.KindTooLarge:
		logger.Warn("upload rejected", zap.Error(err))
	default:
		// Pipeline failures were logged where they happened; tag the response with the step.
		if op := logging.OperationOf(err); op != "" {
			logger.Debug("error response", zap.Stringer("kind", kind), zap.String("failed_operation", op))
		}
	}
	c.JSON(resp.status, gin.H{"error": message})
}
