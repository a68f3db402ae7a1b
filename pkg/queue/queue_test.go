package queue_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gpukit/gpuprof/pkg/queue"
	"github.com/gpukit/gpuprof/pkg/runtime"
)

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()

	rt := runtime.NewSimRuntime(runtime.Agent{Handle: gpuHandleA, Type: runtime.AgentTypeGPU, Name: "gfx90a"})
	table := rt.Table()

	cache, err := queue.NewAgentCache(
		runtime.Agent{Handle: gpuHandleA, Type: runtime.AgentTypeGPU, Name: "gfx90a"}, 0, table.Core, table.Ext)
	require.NoError(t, err)

	q, err := queue.NewQueue(cache, 1024, runtime.QueueTypeMulti, nil, nil, 0, 0)
	require.NoError(t, err)

	return q
}

func TestNewAgentCacheRejectsNonGPU(t *testing.T) {
	rt := runtime.NewSimRuntime()
	table := rt.Table()

	_, err := queue.NewAgentCache(
		runtime.Agent{Handle: cpuHandle, Type: runtime.AgentTypeCPU}, 0, table.Core, table.Ext)
	require.ErrorIs(t, err, queue.ErrAgentNotGPU)
}

func TestNewAgentCacheRejectsIncompleteTable(t *testing.T) {
	_, err := queue.NewAgentCache(
		runtime.Agent{Handle: gpuHandleA, Type: runtime.AgentTypeGPU}, 0, &runtime.CoreApiTable{}, &runtime.ExtApiTable{})
	require.ErrorIs(t, err, queue.ErrApiTableIncomplete)
}

func TestNewQueueFailsLoudlyWhenRuntimeRefuses(t *testing.T) {
	// The runtime does not know the agent, so the underlying queue
	// creation fails even though the cache claims support.
	rt := runtime.NewSimRuntime()
	table := rt.Table()

	cache, err := queue.NewAgentCache(
		runtime.Agent{Handle: gpuHandleA, Type: runtime.AgentTypeGPU}, 0, table.Core, table.Ext)
	require.NoError(t, err)

	_, err = queue.NewQueue(cache, 1024, runtime.QueueTypeMulti, nil, nil, 0, 0)
	require.ErrorIs(t, err, queue.ErrQueueCreationFailed)
}

func TestRegisterCallbackIsIdempotent(t *testing.T) {
	q := newTestQueue(t)

	var calls int
	q.RegisterCallback(1, func(*queue.Queue, *queue.Dispatch) { calls++ }, nil)
	q.RegisterCallback(1, func(*queue.Queue, *queue.Dispatch) { calls += 100 }, nil)
	require.Equal(t, 1, q.CallbackCount())

	q.Submit(&queue.Dispatch{KernelName: "vec_add"})
	require.Equal(t, 1, calls)
}

func TestRemoveCallbackIsIdempotent(t *testing.T) {
	q := newTestQueue(t)

	q.RegisterCallback(1, func(*queue.Queue, *queue.Dispatch) {}, nil)
	q.RemoveCallback(1)
	q.RemoveCallback(1)
	require.Equal(t, 0, q.CallbackCount())
}

func TestSubmitInvokesEveryCallback(t *testing.T) {
	q := newTestQueue(t)

	var first, second int
	q.RegisterCallback(1, func(_ *queue.Queue, d *queue.Dispatch) {
		require.Equal(t, "vec_add", d.KernelName)
		first++
	}, nil)
	q.RegisterCallback(2, func(*queue.Queue, *queue.Dispatch) { second++ }, nil)

	q.Submit(&queue.Dispatch{KernelName: "vec_add"})
	require.Equal(t, 1, first)
	require.Equal(t, 1, second)
}

func TestCompleteInvokesCompletionCallbacks(t *testing.T) {
	q := newTestQueue(t)

	var submitted, completed int
	q.RegisterCallback(1,
		func(*queue.Queue, *queue.Dispatch) { submitted++ },
		func(*queue.Queue, *queue.Dispatch) { completed++ },
	)

	d := &queue.Dispatch{KernelName: "vec_add"}
	q.Submit(d)
	q.Complete(d)
	require.Equal(t, 1, submitted)
	require.Equal(t, 1, completed)
}
