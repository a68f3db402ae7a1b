package runtime

import (
	"unsafe"
)

// AgentType discriminates the kind of compute device an agent is.
type AgentType uint32

const (
	AgentTypeCPU AgentType = iota
	AgentTypeGPU
)

// AgentHandle is the runtime-assigned identity of an agent.
type AgentHandle uint64

// Agent is one compute device known to the runtime, as reported by
// agent enumeration.
type Agent struct {
	Handle AgentHandle
	Type   AgentType
	Node   uint32
	Name   string
}

// AgentStructSize is the size of Agent this package was compiled against.
// Enumeration callers pass the size they expect so that version skew
// between the runtime and the tool is detected instead of silently
// misreading agent records.
const AgentStructSize = unsafe.Sizeof(Agent{})

// AgentEnumerator enumerates the agents the runtime knows about.
//
// The callback is invoked exactly once with the full agent list.
// expectedSize is the agent struct size the caller was compiled against
// and must match AgentStructSize.
type AgentEnumerator interface {
	QueryAvailableAgents(expectedSize uintptr, cb func(agents []Agent) error) error
}
