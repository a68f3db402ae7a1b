package runtime

import (
	"github.com/pkg/errors"
)

var (
	ErrAgentStructSizeMismatch = errors.New("agent struct size does not match the runtime's")
	ErrAgentNotFound           = errors.New("agent not found")
	ErrQueueNotFound           = errors.New("queue not found")
	ErrSignalNotFound          = errors.New("signal not found")
)
