package vm

import "errors"

// Builder errors.
var (
	ErrBuilderConsumed = errors.New("builder already finished")
	ErrNoSuchLabel     = errors.New("no such label")
	ErrLabelResolved   = errors.New("label already resolved")
	ErrUnresolvedLabel = errors.New("unresolved label")
	ErrBadOperand      = errors.New("operand out of range")
)

// Execution errors.
var (
	ErrNoStore        = errors.New("no store attached")
	ErrCursorClosed   = errors.New("cursor not open")
	ErrStepLimit      = errors.New("step limit exceeded")
	ErrHalted         = errors.New("program already halted")
	ErrNotRow         = errors.New("no result row pending")
	ErrRegisterBounds = errors.New("register out of range")
	ErrHaltAbort      = errors.New("halted with error")
	ErrNotInteger     = errors.New("value is not an integer")
)
