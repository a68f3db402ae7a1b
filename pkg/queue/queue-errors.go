package queue

import (
	"github.com/pkg/errors"
)

var (
	ErrAgentNotGPU          = errors.New("agent is not a GPU agent")
	ErrAgentHandleInvalid   = errors.New("agent handle is invalid")
	ErrApiTableIncomplete   = errors.New("api table is incomplete")
	ErrAgentNotSupported    = errors.New("agent not in the supported set")
	ErrAlreadyInitialized   = errors.New("queue controller already initialized")
	ErrContextABISkew       = errors.New("profiling context struct size changed")
	ErrQueueCreationFailed  = errors.New("queue creation failed on a supported agent")
	ErrSignalCreationFailed = errors.New("completion signal creation failed")
)
