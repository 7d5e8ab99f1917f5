package inference

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/example/fer-service/internal/logging"
)

// State describes where the loader is in its single load attempt.
type State int32

const (
	StateLoading State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "loading"
	}
}

// Loader loads a Classifier once in the background and publishes it for readers.
// The model pointer is written at most once; readers observe either nil or the
// fully constructed classifier.
type Loader struct {
	load   LoadFunc
	logger *zap.Logger

	model   atomic.Pointer[Classifier]
	state   atomic.Int32
	err     error
	done    chan struct{}
	started sync.Once

	observers []func(State)
}

// NewLoader returns a Loader that will call load when started.
func NewLoader(load LoadFunc, logger *zap.Logger) *Loader {
	return &Loader{
		load:   load,
		logger: logger.Named("model_loader"),
		done:   make(chan struct{}),
	}
}

// OnSettled registers fn to run once the load attempt finishes, with the final state.
// It must be called before Start.
func (l *Loader) OnSettled(fn func(State)) {
	l.observers = append(l.observers, fn)
}

// Start begins loading on a new goroutine. Subsequent calls are no-ops.
func (l *Loader) Start(ctx context.Context) {
	l.started.Do(func() {
		go l.run(ctx)
	})
}

func (l *Loader) run(ctx context.Context) {
	opLogger := logging.WithOperation(l.logger, "inference.load_model", "")
	opLogger.Info("loading model")
	start := time.Now()

	model, err := l.load(ctx)
	if err == nil && model == nil {
		err = errors.New("loader returned no model")
	}

	if err != nil {
		l.err = logging.NewOperationError("inference.load_model", err)
		l.state.Store(int32(StateFailed))
		opLogger.Error("failed to load model", logging.ErrorFields(l.err)...)
	} else {
		l.model.Store(&model)
		l.state.Store(int32(StateReady))
		opLogger.Info("model loaded successfully", zap.Duration("elapsed", time.Since(start)))
	}
	close(l.done)

	final := l.State()
	for _, fn := range l.observers {
		fn(final)
	}
}

// Model returns the loaded classifier, or false while it is unavailable.
func (l *Loader) Model() (Classifier, bool) {
	p := l.model.Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}

// Ready reports whether the classifier can serve requests.
func (l *Loader) Ready() bool {
	return l.model.Load() != nil
}

// State reports the current load state.
func (l *Loader) State() State {
	return State(l.state.Load())
}

// Done is closed when the load attempt finishes, successfully or not.
func (l *Loader) Done() <-chan struct{} {
	return l.done
}

// Err returns the load failure once Done is closed, or nil.
func (l *Loader) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

// Close releases the classifier if one was loaded.
func (l *Loader) Close() error {
	if model, ok := l.Model(); ok {
		return model.Close()
	}
	return nil
}
