package queue

import (
	"github.com/pkg/errors"

	"github.com/gpukit/gpuprof/pkg/runtime"
)

// AgentCache is an immutable per-agent snapshot built once at controller
// initialization. It carries the agent identity and the runtime entry
// points needed to construct intercepted queues on that agent.
//
// Construction failure marks the agent unsupported; it is not fatal to
// the initialization of the other agents.
type AgentCache struct {
	agent runtime.Agent
	index int
	core  *runtime.CoreApiTable
	ext   *runtime.ExtApiTable
}

func NewAgentCache(agent runtime.Agent, index int, core *runtime.CoreApiTable, ext *runtime.ExtApiTable) (*AgentCache, error) {
	if agent.Type != runtime.AgentTypeGPU {
		return nil, errors.Wrapf(ErrAgentNotGPU, "agent %#x", uint64(agent.Handle))
	}
	if agent.Handle == 0 {
		return nil, errors.Wrapf(ErrAgentHandleInvalid, "agent at enumeration index %d", index)
	}
	if core == nil || core.QueueCreateFn == nil || core.QueueDestroyFn == nil {
		return nil, errors.Wrap(ErrApiTableIncomplete, "core table")
	}
	if ext == nil || ext.SignalCreateFn == nil || ext.SignalDestroyFn == nil {
		return nil, errors.Wrap(ErrApiTableIncomplete, "ext table")
	}

	return &AgentCache{
		agent: agent,
		index: index,
		core:  core,
		ext:   ext,
	}, nil
}

// Agent returns the cached agent record.
func (c *AgentCache) Agent() runtime.Agent {
	return c.agent
}

// Index returns the agent's enumeration index.
func (c *AgentCache) Index() int {
	return c.index
}
