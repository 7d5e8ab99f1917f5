package logging

import (
	"errors"
	"strings"

	"go.uber.org/zap"
)

// OperationError records the step that failed. Request ids belong on the logger
// (see WithOperation), not on the error.
type OperationError struct {
	Operation string
	Err       error
}

func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Operation + ": " + e.Err.Error()
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError wraps err with the operation that produced it. A nil err stays nil.
func NewOperationError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, Err: err}
}

// operations lists the operations recorded on err, outermost first.
func operations(err error) []string {
	var ops []string
	for err != nil {
		var opErr *OperationError
		if !errors.As(err, &opErr) {
			break
		}
		ops = append(ops, opErr.Operation)
		err = opErr.Err
	}
	return ops
}

// OperationOf reports the innermost operation recorded on err, or "" if none.
func OperationOf(err error) string {
	ops := operations(err)
	if len(ops) == 0 {
		return ""
	}
	return ops[len(ops)-1]
}

// ErrorFields returns the zap fields for logging err: the error itself, the
// operation that failed first and the full trail when there is more than one.
func ErrorFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	ops := operations(err)
	if len(ops) > 0 {
		fields = append(fields, zap.String("failed_operation", ops[len(ops)-1]))
	}
	if len(ops) > 1 {
		fields = append(fields, zap.String("operation_trail", strings.Join(ops, " > ")))
	}
	return fields
}
