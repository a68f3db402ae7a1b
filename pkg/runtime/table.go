package runtime

// QueueType selects how packets on a queue may be consumed.
type QueueType uint32

const (
	QueueTypeMulti QueueType = iota
	QueueTypeSingle
)

// QueueHandle is the runtime-assigned identity of a command queue.
type QueueHandle uint64

// SignalHandle is the runtime-assigned identity of a completion signal.
type SignalHandle uint64

// QueueErrorFn is the application callback the runtime invokes on
// asynchronous queue errors.
type QueueErrorFn func(err error, queue QueueHandle, data any)

// CreateQueueFn creates a command queue on an agent and returns its handle.
type CreateQueueFn func(
	agent AgentHandle,
	size uint32,
	queueType QueueType,
	errCB QueueErrorFn,
	data any,
	privateSegmentSize uint32,
	groupSegmentSize uint32,
) (QueueHandle, error)

// DestroyQueueFn destroys a command queue.
type DestroyQueueFn func(queue QueueHandle) error

// CoreApiTable is the runtime's core dispatch table. A profiling tool
// intercepts queue lifecycle by overwriting QueueCreateFn and
// QueueDestroyFn; every other entry is left untouched.
type CoreApiTable struct {
	QueueCreateFn  CreateQueueFn
	QueueDestroyFn DestroyQueueFn
}

// CreateSignalFn creates a completion signal with an initial value.
type CreateSignalFn func(initial int64) (SignalHandle, error)

// DestroySignalFn destroys a completion signal.
type DestroySignalFn func(signal SignalHandle) error

// ExtApiTable is the runtime's extension dispatch table. Interception
// never rewrites it; intercepted queues use it to allocate their
// completion signals.
type ExtApiTable struct {
	SignalCreateFn  CreateSignalFn
	SignalDestroyFn DestroySignalFn
}

// ApiTable bundles the dispatch tables handed to a tool at runtime
// initialization.
type ApiTable struct {
	Core *CoreApiTable
	Ext  *ExtApiTable
}
