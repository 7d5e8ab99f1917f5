package logging

import (
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	logger, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("expected debug level to be accepted, got %v", err)
	}
	if !logger.Core().Enabled(-1) {
		t.Fatal("expected debug entries to be enabled")
	}
}

func TestNewOperationErrorKeepsNil(t *testing.T) {
	if err := NewOperationError("noop", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestOperationOfReturnsInnermost(t *testing.T) {
	base := errors.New("boom")
	inner := NewOperationError("imageprocessor.decode", base)
	outer := NewOperationError("usecase.predict", fmt.Errorf("wrapped: %w", inner))

	if got := OperationOf(outer); got != "imageprocessor.decode" {
		t.Fatalf("unexpected operation: %s", got)
	}
	if !errors.Is(outer, base) {
		t.Fatal("expected chain to unwrap to base error")
	}
	if got := OperationOf(base); got != "" {
		t.Fatalf("expected empty operation, got %s", got)
	}
	if got := outer.Error(); got != "usecase.predict: wrapped: imageprocessor.decode: boom" {
		t.Fatalf("unexpected message: %s", got)
	}
}

func TestErrorFieldsDescribeTrail(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	inner := NewOperationError("inference.classify", errors.New("session closed"))
	outer := NewOperationError("usecase.predict", inner)

	zap.New(core).Error("prediction failed", ErrorFields(outer)...)

	fields := logs.All()[0].ContextMap()
	if fields["failed_operation"] != "inference.classify" {
		t.Fatalf("unexpected failed_operation: %v", fields["failed_operation"])
	}
	if fields["operation_trail"] != "usecase.predict > inference.classify" {
		t.Fatalf("unexpected trail: %v", fields["operation_trail"])
	}
	if fields["error"] != "usecase.predict: inference.classify: session closed" {
		t.Fatalf("unexpected error field: %v", fields["error"])
	}
}

func TestErrorFieldsPlainError(t *testing.T) {
	fields := ErrorFields(errors.New("boom"))
	if len(fields) != 1 {
		t.Fatalf("expected only the error field, got %d", len(fields))
	}
}
