package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/example/fer-service/internal/logging"
)

// Feedback is a user's verdict on a prediction. It is not linked to any stored prediction.
type Feedback struct {
	IsCorrect  bool
	RequestID  string
	ReceivedAt time.Time
}

// FeedbackObserver receives feedback telemetry.
type FeedbackObserver interface {
	ObserveFeedback(correct bool)
}

type feedbackEvent struct {
	RequestID  string    `json:"request_id"`
	IsCorrect  bool      `json:"is_correct"`
	ReceivedAt time.Time `json:"received_at"`
}

// FeedbackUseCase logs feedback and optionally publishes it to a pub/sub channel.
type FeedbackUseCase struct {
	publisher      Publisher
	channel        string
	observer       FeedbackObserver
	logger         *zap.Logger
	publishTimeout time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu       sync.Mutex
	closed   bool
	inFlight sync.WaitGroup
}

// NewFeedbackUseCase constructs a new use case instance. A nil publisher disables fan-out.
func NewFeedbackUseCase(publisher Publisher, channel string, observer FeedbackObserver, logger *zap.Logger) *FeedbackUseCase {
	return &FeedbackUseCase{
		publisher:      publisher,
		channel:        channel,
		observer:       observer,
		logger:         logger.Named("feedback_usecase"),
		publishTimeout: 2 * time.Second,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Submit records fb and returns without waiting for the publish. Publishing runs
// detached from ctx and is best effort: failures are logged, never returned.
func (uc *FeedbackUseCase) Submit(ctx context.Context, fb Feedback) {
	opLogger := logging.WithOperation(uc.logger, "usecase.submit_feedback", fb.RequestID)

	verdict := "incorrect"
	if fb.IsCorrect {
		verdict = "correct"
	}
	opLogger.Info("Feedback received", zap.String("feedback", verdict))
	uc.observer.ObserveFeedback(fb.IsCorrect)

	if uc.publisher == nil {
		return
	}

	payload, err := json.Marshal(feedbackEvent{
		RequestID:  fb.RequestID,
		IsCorrect:  fb.IsCorrect,
		ReceivedAt: fb.ReceivedAt.UTC(),
	})
	if err != nil {
		opLogger.Error("failed to serialize feedback event", zap.Error(err))
		return
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.closed {
		opLogger.Warn("feedback publisher closed, event dropped")
		return
	}
	uc.inFlight.Add(1)
	go func() {
		defer uc.inFlight.Done()
		pubCtx, cancel := context.WithTimeout(context.Background(), uc.publishTimeout)
		defer cancel()
		if err := uc.publishWithRetry(pubCtx, fb.RequestID, payload); err != nil {
			opLogger.Error("failed to publish feedback", append(logging.ErrorFields(err), zap.String("channel", uc.channel))...)
		}
	}()
}

// Close stops accepting publishes and waits for the ones already started.
func (uc *FeedbackUseCase) Close() {
	uc.mu.Lock()
	uc.closed = true
	uc.mu.Unlock()
	uc.inFlight.Wait()
}

func (uc *FeedbackUseCase) publishWithRetry(ctx context.Context, requestID string, payload []byte) error {
	const operation = "feedback.publish"
	opLogger := logging.WithOperation(uc.logger, operation, requestID)

	attempt := 0
	publish := func() error {
		attempt++
		err := uc.publisher.Publish(ctx, uc.channel, payload)
		if err == nil {
			if attempt > 1 {
				opLogger.Info("redis publish succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		}
		if !retryablePublishError(err) {
			return backoff.Permanent(err)
		}
		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt))
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = uc.initialBackoff
	policy.MaxInterval = uc.maxBackoff

	var retries uint64
	if uc.retryAttempts > 1 {
		retries = uint64(uc.retryAttempts - 1)
	}
	err := backoff.Retry(publish, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx))
	return logging.NewOperationError(operation, err)
}
