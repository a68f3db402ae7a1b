package runtime

import (
	"sync"

	"github.com/pkg/errors"
)

// SimRuntime is an in-process stand-in for the GPU compute runtime.
//
// It owns the canonical dispatch tables and a set of agents, creates and
// destroys plain (un-intercepted) queues, and answers agent enumeration.
// A profiling tool intercepts it exactly the way it would intercept the
// real runtime: by overwriting the queue entries of the table returned
// by Table before any queue is created. When no trampoline is installed
// the table is untouched and queue creation goes straight to the native
// implementation.
type SimRuntime struct {
	mu         sync.Mutex
	agents     []Agent
	queues     map[QueueHandle]AgentHandle
	signals    map[SignalHandle]int64
	nextQueue  QueueHandle
	nextSignal SignalHandle
	table      ApiTable
}

// NewSimRuntime builds a runtime exposing the given agents, in
// enumeration order.
func NewSimRuntime(agents ...Agent) *SimRuntime {
	r := &SimRuntime{
		agents:     agents,
		queues:     make(map[QueueHandle]AgentHandle),
		signals:    make(map[SignalHandle]int64),
		nextQueue:  1,
		nextSignal: 1,
	}
	r.table = ApiTable{
		Core: &CoreApiTable{
			QueueCreateFn:  r.nativeCreateQueue,
			QueueDestroyFn: r.nativeDestroyQueue,
		},
		Ext: &ExtApiTable{
			SignalCreateFn:  r.nativeCreateSignal,
			SignalDestroyFn: r.nativeDestroySignal,
		},
	}

	return r
}

// Table returns the live dispatch tables. Tools overwrite entries in
// place; applications go through them via CreateQueue and DestroyQueue.
func (r *SimRuntime) Table() *ApiTable {
	return &r.table
}

// QueryAvailableAgents invokes cb once with the full agent list.
// expectedSize must match AgentStructSize, otherwise the caller was
// compiled against a different agent ABI and enumeration is refused.
func (r *SimRuntime) QueryAvailableAgents(expectedSize uintptr, cb func(agents []Agent) error) error {
	if expectedSize != AgentStructSize {
		return errors.Wrapf(ErrAgentStructSizeMismatch, "expected %d, compiled against %d",
			expectedSize, AgentStructSize)
	}

	agents := make([]Agent, len(r.agents))
	copy(agents, r.agents)

	return cb(agents)
}

// CreateQueue is the application-facing entry point. It dispatches
// through the table so that an installed trampoline observes the call.
func (r *SimRuntime) CreateQueue(
	agent AgentHandle,
	size uint32,
	queueType QueueType,
	errCB QueueErrorFn,
	data any,
	privateSegmentSize uint32,
	groupSegmentSize uint32,
) (QueueHandle, error) {
	return r.table.Core.QueueCreateFn(agent, size, queueType, errCB, data, privateSegmentSize, groupSegmentSize)
}

// DestroyQueue is the application-facing destroy entry point, dispatched
// through the table.
func (r *SimRuntime) DestroyQueue(queue QueueHandle) error {
	return r.table.Core.QueueDestroyFn(queue)
}

func (r *SimRuntime) nativeCreateQueue(
	agent AgentHandle,
	_ uint32,
	_ QueueType,
	_ QueueErrorFn,
	_ any,
	_ uint32,
	_ uint32,
) (QueueHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	for _, a := range r.agents {
		if a.Handle == agent {
			found = true
			break
		}
	}
	if !found {
		return 0, errors.Wrapf(ErrAgentNotFound, "agent %#x", uint64(agent))
	}

	handle := r.nextQueue
	r.nextQueue++
	r.queues[handle] = agent

	return handle, nil
}

func (r *SimRuntime) nativeDestroyQueue(queue QueueHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.queues[queue]; !ok {
		return errors.Wrapf(ErrQueueNotFound, "queue %#x", uint64(queue))
	}
	delete(r.queues, queue)

	return nil
}

func (r *SimRuntime) nativeCreateSignal(initial int64) (SignalHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle := r.nextSignal
	r.nextSignal++
	r.signals[handle] = initial

	return handle, nil
}

func (r *SimRuntime) nativeDestroySignal(signal SignalHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.signals[signal]; !ok {
		return errors.Wrapf(ErrSignalNotFound, "signal %#x", uint64(signal))
	}
	delete(r.signals, signal)

	return nil
}

// QueueCount returns the number of live native queues.
func (r *SimRuntime) QueueCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.queues)
}
