package session

import (
	"github.com/pkg/errors"
)

var (
	ErrNoAgents            = errors.New("session declares no agents")
	ErrAgentHandleZero     = errors.New("agent handle must be non-zero")
	ErrDuplicateCodeObject = errors.New("duplicate code object id")
	ErrInstructionSizeZero = errors.New("instruction size must be positive")
	ErrKernelRangeEmpty    = errors.New("kernel address range is empty")
	ErrUnknownAgent        = errors.New("dispatch references an unknown agent")
	ErrUnknownKernel       = errors.New("dispatch references an unknown kernel")
	ErrUnknownCodeObject   = errors.New("sample references an unknown code object")
	ErrSampleCountZero     = errors.New("sample count must be positive")
)
