package usecase

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the transport layer can map them to responses
// without inspecting messages.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindBadInput
	KindTooLarge
	KindNotReady
	KindDecodeFailure
	KindInferenceFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindBadInput:
		return "bad_input"
	case KindTooLarge:
		return "too_large"
	case KindNotReady:
		return "not_ready"
	case KindDecodeFailure:
		return "decode_failure"
	case KindInferenceFailure:
		return "inference_failure"
	default:
		return "unknown"
	}
}

// ErrModelNotReady is the cause carried by KindNotReady errors.
var ErrModelNotReady = errors.New("model not loaded")

// Error is a classified failure. Err holds the internal cause and is never shown to clients.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError classifies err under kind.
func NewError(kind ErrorKind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) ErrorKind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindUnknown
}
