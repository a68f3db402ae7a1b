package queue_test

import (
	"sync"
	"testing"

	log "github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gpukit/gpuprof/pkg/queue"
	"github.com/gpukit/gpuprof/pkg/runtime"
)

const (
	gpuHandleA = runtime.AgentHandle(0x10)
	gpuHandleB = runtime.AgentHandle(0x20)
	cpuHandle  = runtime.AgentHandle(0x30)
)

func testAgents() []runtime.Agent {
	return []runtime.Agent{
		{Handle: gpuHandleA, Type: runtime.AgentTypeGPU, Node: 0, Name: "gfx90a-0"},
		{Handle: gpuHandleB, Type: runtime.AgentTypeGPU, Node: 1, Name: "gfx90a-1"},
		{Handle: cpuHandle, Type: runtime.AgentTypeCPU, Node: 2, Name: "host"},
	}
}

func interceptingContexts() []*runtime.Context {
	return []*runtime.Context{
		{BufferedTracer: runtime.NewBufferedTracer(runtime.TracingDomainKernelDispatch)},
	}
}

func newTestController(t *testing.T, agents []runtime.Agent, contexts []*runtime.Context) (*queue.Controller, *runtime.SimRuntime) {
	t.Helper()

	rt := runtime.NewSimRuntime(agents...)
	controller := queue.NewController(log.Nop())
	require.NoError(t, controller.Init(rt.Table(), rt, contexts))

	return controller, rt
}

func createQueue(t *testing.T, rt *runtime.SimRuntime, agent runtime.AgentHandle) runtime.QueueHandle {
	t.Helper()

	handle, err := rt.CreateQueue(agent, 1024, runtime.QueueTypeMulti, nil, nil, 0, 0)
	require.NoError(t, err)

	return handle
}

func TestInitBuildsSupportedAgents(t *testing.T) {
	controller, _ := newTestController(t, testAgents(), interceptingContexts())

	supported := controller.SupportedAgents()
	require.Len(t, supported, 2)
	for _, cache := range supported {
		require.Equal(t, runtime.AgentTypeGPU, cache.Agent().Type)
	}
}

func TestSupportedAgentsIsACopy(t *testing.T) {
	controller, _ := newTestController(t, testAgents(), interceptingContexts())

	supported := controller.SupportedAgents()
	for i := range supported {
		delete(supported, i)
	}

	require.Len(t, controller.SupportedAgents(), 2)
}

func TestInitIsolatesAgentCacheFailures(t *testing.T) {
	agents := append(testAgents(), runtime.Agent{Handle: 0, Type: runtime.AgentTypeGPU, Node: 3, Name: "broken"})
	controller, rt := newTestController(t, agents, interceptingContexts())

	// The broken agent is excluded; the healthy ones still intercept.
	require.Len(t, controller.SupportedAgents(), 2)

	handle := createQueue(t, rt, gpuHandleA)
	_, ok := controller.Queue(handle)
	require.True(t, ok)
}

func TestInitRunsExactlyOnce(t *testing.T) {
	controller, rt := newTestController(t, testAgents(), interceptingContexts())

	err := controller.Init(rt.Table(), rt, interceptingContexts())
	require.ErrorIs(t, err, queue.ErrAlreadyInitialized)
}

func TestNoInterceptionWithoutServiceRequests(t *testing.T) {
	controller, rt := newTestController(t, testAgents(), nil)

	// The table was left untouched: the queue is created natively and
	// never becomes visible to the controller.
	handle := createQueue(t, rt, gpuHandleA)
	require.Equal(t, 1, rt.QueueCount())

	_, ok := controller.Queue(handle)
	require.False(t, ok)
}

func TestInterceptionEnabledByCounterCollection(t *testing.T) {
	contexts := []*runtime.Context{{CounterCollection: true}}
	controller, rt := newTestController(t, testAgents(), contexts)

	handle := createQueue(t, rt, gpuHandleA)
	_, ok := controller.Queue(handle)
	require.True(t, ok)
}

func TestInterceptionEnabledByMemoryCopyTracing(t *testing.T) {
	contexts := []*runtime.Context{
		{BufferedTracer: runtime.NewBufferedTracer(runtime.TracingDomainMemoryCopy)},
	}
	controller, rt := newTestController(t, testAgents(), contexts)

	handle := createQueue(t, rt, gpuHandleB)
	_, ok := controller.Queue(handle)
	require.True(t, ok)
}

func TestUnsupportedAgentQueueCreationFails(t *testing.T) {
	_, rt := newTestController(t, testAgents(), interceptingContexts())

	_, err := rt.CreateQueue(cpuHandle, 1024, runtime.QueueTypeMulti, nil, nil, 0, 0)
	require.ErrorIs(t, err, queue.ErrAgentNotSupported)
}

func TestCallbackReplayedOntoNewQueue(t *testing.T) {
	controller, rt := newTestController(t, testAgents(), interceptingContexts())

	agentA := controller.SupportedAgents()
	var agent runtime.Agent
	for _, cache := range agentA {
		if cache.Agent().Handle == gpuHandleA {
			agent = cache.Agent()
		}
	}

	controller.AddCallback(agent, func(*queue.Queue, *queue.Dispatch) {}, nil)

	handle := createQueue(t, rt, gpuHandleA)
	q, ok := controller.Queue(handle)
	require.True(t, ok)
	require.Equal(t, 1, q.CallbackCount())
}

func TestCallbackAttachedToLiveQueue(t *testing.T) {
	controller, rt := newTestController(t, testAgents(), interceptingContexts())

	handle := createQueue(t, rt, gpuHandleA)
	q, ok := controller.Queue(handle)
	require.True(t, ok)
	require.Equal(t, 0, q.CallbackCount())

	controller.AddCallback(q.Agent(), func(*queue.Queue, *queue.Dispatch) {}, nil)
	require.Equal(t, 1, q.CallbackCount())
}

func TestCallbackNotAttachedAcrossAgents(t *testing.T) {
	controller, rt := newTestController(t, testAgents(), interceptingContexts())

	handleA := createQueue(t, rt, gpuHandleA)
	handleB := createQueue(t, rt, gpuHandleB)
	qA, _ := controller.Queue(handleA)
	qB, _ := controller.Queue(handleB)

	controller.AddCallback(qA.Agent(), func(*queue.Queue, *queue.Dispatch) {}, nil)

	require.Equal(t, 1, qA.CallbackCount())
	require.Equal(t, 0, qB.CallbackCount())
}

func TestClientIDsStrictlyIncreasing(t *testing.T) {
	controller, _ := newTestController(t, testAgents(), interceptingContexts())

	agent := runtime.Agent{Handle: gpuHandleA, Type: runtime.AgentTypeGPU}
	var last queue.ClientID
	for i := 0; i < 10; i++ {
		id := controller.AddCallback(agent, nil, nil)
		require.Greater(t, id, queue.ClientID(0))
		require.Greater(t, id, last)
		last = id
	}
}

func TestRemoveCallbackDetachesEverywhere(t *testing.T) {
	controller, rt := newTestController(t, testAgents(), interceptingContexts())

	handle := createQueue(t, rt, gpuHandleA)
	q, _ := controller.Queue(handle)

	id := controller.AddCallback(q.Agent(), func(*queue.Queue, *queue.Dispatch) {}, nil)
	require.Equal(t, 1, q.CallbackCount())

	controller.RemoveCallback(id)
	require.Equal(t, 0, q.CallbackCount())
}

func TestIdempotentTeardown(t *testing.T) {
	controller, rt := newTestController(t, testAgents(), interceptingContexts())

	// Unknown ids are no-ops.
	controller.RemoveCallback(queue.ClientID(42))
	controller.DestroyQueue(runtime.QueueHandle(42))

	handle := createQueue(t, rt, gpuHandleA)
	require.NoError(t, rt.DestroyQueue(handle))
	_, ok := controller.Queue(handle)
	require.False(t, ok)
	require.Equal(t, 0, rt.QueueCount())

	// Destroying again is a no-op.
	controller.DestroyQueue(handle)
}

func TestConcurrentRegistrationAndCreation(t *testing.T) {
	const (
		numCallbacks = 16
		numQueues    = 8
	)

	controller, rt := newTestController(t, testAgents(), interceptingContexts())
	agent := runtime.Agent{Handle: gpuHandleA, Type: runtime.AgentTypeGPU}

	var wg sync.WaitGroup
	handles := make([]runtime.QueueHandle, numQueues)
	errs := make([]error, numQueues)
	for i := 0; i < numCallbacks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			controller.AddCallback(agent, func(*queue.Queue, *queue.Dispatch) {}, nil)
		}()
	}
	for i := 0; i < numQueues; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = rt.CreateQueue(gpuHandleA, 1024, runtime.QueueTypeMulti, nil, nil, 0, 0)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	// Whatever the interleaving, every queue converged to the full
	// callback set: attached by replay or directly, never twice.
	for _, handle := range handles {
		q, ok := controller.Queue(handle)
		require.True(t, ok)
		require.Equal(t, numCallbacks, q.CallbackCount())
	}
}
