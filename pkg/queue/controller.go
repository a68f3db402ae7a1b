package queue

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/gpukit/gpuprof/pkg/runtime"
)

// expectedContextSize pins the profiling-context ABI this controller was
// written against: one service flag word plus the buffered-tracer
// pointer. Adding a field to runtime.Context must be paired with a
// decision on whether the new service requires queue interception; bump
// this once that decision is made.
const expectedContextSize = 2 * unsafe.Sizeof(uintptr(0))

type callbackRegistration struct {
	agent       runtime.Agent
	queueCB     QueueCB
	completedCB CompletedCB
}

// Controller is the single authority for which queues exist, which
// agents are supported and which callbacks observe which queues. It
// installs the queue create/destroy trampolines into the runtime's
// dispatch table when any registered profiling context needs to observe
// dispatches, and leaves the table untouched otherwise.
//
// The callback registry and the queue map are independently
// lock-protected. Every operation touching both acquires the registry
// lock first and the queue map lock second, so that for any
// interleaving a callback is attached to a queue exactly once: either
// replayed during AddQueue or attached directly during AddCallback.
type Controller struct {
	logger log.Logger

	initMu      sync.Mutex
	initialized bool

	// Saved pre-hook copies of the runtime tables. Intercepted queues
	// are built against these, not against the hooked live table.
	coreTable runtime.CoreApiTable
	extTable  runtime.ExtApiTable

	supportedAgents map[int]*AgentCache

	cbMu         sync.RWMutex
	nextClientID ClientID
	callbacks    map[ClientID]callbackRegistration

	qMu    sync.RWMutex
	queues map[runtime.QueueHandle]*Queue
}

func NewController(logger log.Logger) *Controller {
	return &Controller{
		logger:          logger.With().Str("component", "queue-controller").Logger(),
		supportedAgents: make(map[int]*AgentCache),
		nextClientID:    1,
		callbacks:       make(map[ClientID]callbackRegistration),
		queues:          make(map[runtime.QueueHandle]*Queue),
	}
}

// Init stores the runtime's tables, builds the supported-agent set and
// installs the queue trampolines when a registered context requests
// counter collection or buffered tracing of kernel dispatches or memory
// copies. It must run exactly once, after the runtime's tables are
// available and before any queue is created.
func (c *Controller) Init(table *runtime.ApiTable, enum runtime.AgentEnumerator, contexts []*runtime.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized {
		return ErrAlreadyInitialized
	}
	if runtime.ContextStructSize != expectedContextSize {
		return errors.Wrapf(ErrContextABISkew, "compiled against %d, runtime reports %d",
			expectedContextSize, runtime.ContextStructSize)
	}

	c.coreTable = *table.Core
	c.extTable = *table.Ext

	err := enum.QueryAvailableAgents(runtime.AgentStructSize, func(agents []runtime.Agent) error {
		for i, agent := range agents {
			if agent.Type != runtime.AgentTypeGPU {
				continue
			}
			cache, err := NewAgentCache(agent, i, &c.coreTable, &c.extTable)
			if err != nil {
				// The agent is excluded from interception; the others
				// still initialize.
				c.logger.Error().Err(err).
					Uint64("agent", uint64(agent.Handle)).
					Msg("GPU agent construction failed, its queues will not be intercepted")
				continue
			}
			c.supportedAgents[i] = cache
		}

		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to enumerate agents")
	}

	if interceptionRequested(contexts) {
		table.Core.QueueCreateFn = c.createQueue
		table.Core.QueueDestroyFn = c.destroyQueue
		c.logger.Debug().Msg("queue interception installed")
	}
	c.initialized = true

	return nil
}

// interceptionRequested reports whether any registered context needs to
// observe kernel dispatches.
func interceptionRequested(contexts []*runtime.Context) bool {
	for _, ctx := range contexts {
		if ctx == nil {
			continue
		}
		if ctx.CounterCollection {
			return true
		}
		if ctx.BufferedTracer.Domain(runtime.TracingDomainKernelDispatch) ||
			ctx.BufferedTracer.Domain(runtime.TracingDomainMemoryCopy) {
			return true
		}
	}

	return false
}

// createQueue is the queue-create trampoline. It builds an intercepted
// Queue on the supported agent and registers it with the controller.
func (c *Controller) createQueue(
	agent runtime.AgentHandle,
	size uint32,
	queueType runtime.QueueType,
	errCB runtime.QueueErrorFn,
	data any,
	privateSegmentSize uint32,
	groupSegmentSize uint32,
) (runtime.QueueHandle, error) {
	for _, cache := range c.supportedAgents {
		if cache.Agent().Handle != agent {
			continue
		}
		q, err := NewQueue(cache, size, queueType, errCB, data, privateSegmentSize, groupSegmentSize)
		if err != nil {
			c.logger.Error().Err(err).Uint64("agent", uint64(agent)).Msg("failed to create intercepted queue")
			return 0, err
		}
		c.AddQueue(q.Handle(), q)

		return q.Handle(), nil
	}

	c.logger.Error().Uint64("agent", uint64(agent)).Msg("could not find agent")

	return 0, errors.Wrapf(ErrAgentNotSupported, "agent %#x", uint64(agent))
}

// destroyQueue is the queue-destroy trampoline.
func (c *Controller) destroyQueue(handle runtime.QueueHandle) error {
	c.DestroyQueue(handle)

	return nil
}

// AddQueue takes ownership of an intercepted queue and replays every
// registered callback whose agent matches onto it. A queue is never
// visible in the queue map without every callback registered for its
// agent at insertion time already attached.
func (c *Controller) AddQueue(id runtime.QueueHandle, q *Queue) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.qMu.Lock()
	defer c.qMu.Unlock()

	c.queues[id] = q
	agent := q.Agent().Handle
	for cbid, reg := range c.callbacks {
		if reg.agent.Handle == agent {
			q.RegisterCallback(cbid, reg.queueCB, reg.completedCB)
		}
	}
}

// DestroyQueue removes and releases the queue for the given identity.
// Unknown identities are a no-op.
func (c *Controller) DestroyQueue(id runtime.QueueHandle) {
	c.qMu.Lock()
	q, ok := c.queues[id]
	if ok {
		delete(c.queues, id)
	}
	c.qMu.Unlock()

	if !ok {
		return
	}
	if err := q.Destroy(); err != nil {
		c.logger.Error().Err(err).Uint64("queue", uint64(id)).Msg("failed to destroy queue")
	}
}

// AddCallback registers a callback pair for an agent and attaches it to
// every currently live queue belonging to that agent. The returned
// client id can be used to remove the callback.
func (c *Controller) AddCallback(agent runtime.Agent, queueCB QueueCB, completedCB CompletedCB) ClientID {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()

	id := c.nextClientID
	c.nextClientID++
	c.callbacks[id] = callbackRegistration{agent: agent, queueCB: queueCB, completedCB: completedCB}

	c.qMu.Lock()
	defer c.qMu.Unlock()
	for _, q := range c.queues {
		if q.Agent().Handle == agent.Handle {
			q.RegisterCallback(id, queueCB, completedCB)
		}
	}

	return id
}

// RemoveCallback erases the registration and detaches it from every
// live queue. Unknown ids are a no-op.
func (c *Controller) RemoveCallback(id ClientID) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()

	delete(c.callbacks, id)

	c.qMu.Lock()
	defer c.qMu.Unlock()
	for _, q := range c.queues {
		q.RemoveCallback(id)
	}
}

// Queue returns the live intercepted queue for the given identity.
func (c *Controller) Queue(id runtime.QueueHandle) (*Queue, bool) {
	c.qMu.RLock()
	defer c.qMu.RUnlock()

	q, ok := c.queues[id]

	return q, ok
}

// CoreTable returns the saved pre-hook core table.
func (c *Controller) CoreTable() runtime.CoreApiTable {
	return c.coreTable
}

// ExtTable returns the saved pre-hook extension table.
func (c *Controller) ExtTable() runtime.ExtApiTable {
	return c.extTable
}

// SupportedAgents returns a copy of the supported-agent set keyed by
// enumeration index. The controller's own set never changes after Init.
func (c *Controller) SupportedAgents() map[int]*AgentCache {
	agents := make(map[int]*AgentCache, len(c.supportedAgents))
	for i, cache := range c.supportedAgents {
		agents[i] = cache
	}

	return agents
}
