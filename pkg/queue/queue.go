package queue

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/gpukit/gpuprof/pkg/runtime"
)

// ClientID identifies one registered callback pair. IDs are allocated by
// the controller, start at 1, increase monotonically and are never
// reused; zero is never a valid id.
type ClientID int64

// Dispatch is one unit of work submitted through an intercepted queue.
type Dispatch struct {
	KernelName   string
	CodeObjectID uint64
	KernelBegin  uint64
}

// QueueCB observes a kernel dispatch as it is submitted on a queue.
type QueueCB func(q *Queue, d *Dispatch)

// CompletedCB observes a kernel dispatch once its completion signal fires.
type CompletedCB func(q *Queue, d *Dispatch)

type callbackPair struct {
	queueCB     QueueCB
	completedCB CompletedCB
}

// Queue owns one intercepted command queue: the real runtime queue
// handle, its completion signal, and the per-client callback table.
// Dispatches submitted on it are forwarded to every registered callback.
type Queue struct {
	cache  *AgentCache
	handle runtime.QueueHandle
	signal runtime.SignalHandle
	errCB  runtime.QueueErrorFn
	data   any

	mu        sync.RWMutex
	callbacks map[ClientID]callbackPair
}

// NewQueue creates the real runtime queue through the saved (pre-hook)
// core table and wraps it. The agent was claimed supported, so failure
// to create the underlying queue is loud, never a silent fallback to an
// un-intercepted queue.
func NewQueue(
	cache *AgentCache,
	size uint32,
	queueType runtime.QueueType,
	errCB runtime.QueueErrorFn,
	data any,
	privateSegmentSize uint32,
	groupSegmentSize uint32,
) (*Queue, error) {
	handle, err := cache.core.QueueCreateFn(
		cache.agent.Handle, size, queueType, errCB, data, privateSegmentSize, groupSegmentSize)
	if err != nil {
		return nil, errors.Wrapf(ErrQueueCreationFailed, "agent %#x: %v", uint64(cache.agent.Handle), err)
	}

	signal, err := cache.ext.SignalCreateFn(0)
	if err != nil {
		_ = cache.core.QueueDestroyFn(handle)
		return nil, errors.Wrapf(ErrSignalCreationFailed, "agent %#x: %v", uint64(cache.agent.Handle), err)
	}

	return &Queue{
		cache:     cache,
		handle:    handle,
		signal:    signal,
		errCB:     errCB,
		data:      data,
		callbacks: make(map[ClientID]callbackPair),
	}, nil
}

// Handle returns the real runtime queue handle.
func (q *Queue) Handle() runtime.QueueHandle {
	return q.handle
}

// Agent returns the agent this queue belongs to.
func (q *Queue) Agent() runtime.Agent {
	return q.cache.Agent()
}

// RegisterCallback attaches a callback pair under the given client id.
// Registering an id that is already attached is a no-op.
func (q *Queue) RegisterCallback(id ClientID, queueCB QueueCB, completedCB CompletedCB) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.callbacks[id]; ok {
		return
	}
	q.callbacks[id] = callbackPair{queueCB: queueCB, completedCB: completedCB}
}

// RemoveCallback detaches the callback pair for the given client id.
// Removing an unknown id is a no-op.
func (q *Queue) RemoveCallback(id ClientID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.callbacks, id)
}

// CallbackCount returns the number of attached callback pairs.
func (q *Queue) CallbackCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return len(q.callbacks)
}

// Submit drives a dispatch through every registered queue callback.
func (q *Queue) Submit(d *Dispatch) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, cb := range q.callbacks {
		if cb.queueCB != nil {
			cb.queueCB(q, d)
		}
	}
}

// Complete drives a dispatch completion through every registered
// completion callback.
func (q *Queue) Complete(d *Dispatch) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, cb := range q.callbacks {
		if cb.completedCB != nil {
			cb.completedCB(q, d)
		}
	}
}

// Destroy releases the real runtime queue and its completion signal.
func (q *Queue) Destroy() error {
	if err := q.cache.ext.SignalDestroyFn(q.signal); err != nil {
		return errors.Wrapf(err, "destroying signal for queue %#x", uint64(q.handle))
	}
	if err := q.cache.core.QueueDestroyFn(q.handle); err != nil {
		return errors.Wrapf(err, "destroying queue %#x", uint64(q.handle))
	}

	return nil
}
