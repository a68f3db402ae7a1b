package session

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/gpukit/gpuprof/pkg/codeobj"
	"github.com/gpukit/gpuprof/pkg/runtime"
)

// Session describes one recorded profiling session for replay: the
// services the tool requested, the agents the runtime exposed, the code
// objects that were loaded with their decoded instruction streams, the
// kernel dispatches the application issued and the PC samples the
// hardware delivered.
type Session struct {
	Services    Services     `yaml:"services"`
	Agents      []Agent      `yaml:"agents"`
	CodeObjects []CodeObject `yaml:"code_objects"`
	Dispatches  []Dispatch   `yaml:"dispatches"`
	Samples     []Sample     `yaml:"samples"`
}

// Services mirrors what the registered profiling contexts requested.
type Services struct {
	CounterCollection     bool `yaml:"counter_collection"`
	KernelDispatchTracing bool `yaml:"kernel_dispatch_tracing"`
	MemoryCopyTracing     bool `yaml:"memory_copy_tracing"`
}

type Agent struct {
	Handle uint64 `yaml:"handle"`
	Type   string `yaml:"type"`
	Name   string `yaml:"name"`
}

type CodeObject struct {
	ID           uint64        `yaml:"id"`
	Kernels      []Kernel      `yaml:"kernels"`
	Instructions []Instruction `yaml:"instructions"`
}

type Kernel struct {
	Name  string `yaml:"name"`
	Begin uint64 `yaml:"begin"`
	End   uint64 `yaml:"end"`
}

type Instruction struct {
	Address uint64 `yaml:"address"`
	Size    uint64 `yaml:"size"`
	Inst    string `yaml:"inst"`
	Comment string `yaml:"comment"`
}

type Dispatch struct {
	Agent      uint64 `yaml:"agent"`
	CodeObject uint64 `yaml:"code_object"`
	Kernel     string `yaml:"kernel"`
}

type Sample struct {
	CodeObject uint64 `yaml:"code_object"`
	Address    uint64 `yaml:"address"`
	ExecMask   uint64 `yaml:"exec_mask"`
	Count      uint64 `yaml:"count"`
}

// Load reads and validates a session description file.
func Load(path string) (*Session, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read session file %s", path)
	}

	var s Session
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrapf(err, "failed to parse session file %s", path)
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid session file %s", path)
	}

	return &s, nil
}

// Validate checks the session's internal references.
func (s *Session) Validate() error {
	if len(s.Agents) == 0 {
		return ErrNoAgents
	}

	agents := make(map[uint64]struct{}, len(s.Agents))
	for _, a := range s.Agents {
		if a.Handle == 0 {
			return errors.Wrapf(ErrAgentHandleZero, "agent %q", a.Name)
		}
		agents[a.Handle] = struct{}{}
	}

	objects := make(map[uint64]struct{}, len(s.CodeObjects))
	kernels := make(map[string]struct{})
	for _, co := range s.CodeObjects {
		if _, ok := objects[co.ID]; ok {
			return errors.Wrapf(ErrDuplicateCodeObject, "code object %d", co.ID)
		}
		objects[co.ID] = struct{}{}
		for _, in := range co.Instructions {
			if in.Size == 0 {
				return errors.Wrapf(ErrInstructionSizeZero, "address %#x in code object %d", in.Address, co.ID)
			}
		}
		for _, k := range co.Kernels {
			if k.End <= k.Begin {
				return errors.Wrapf(ErrKernelRangeEmpty, "kernel %q", k.Name)
			}
			kernels[k.Name] = struct{}{}
		}
	}

	for _, d := range s.Dispatches {
		if _, ok := agents[d.Agent]; !ok {
			return errors.Wrapf(ErrUnknownAgent, "dispatch of %q on agent %#x", d.Kernel, d.Agent)
		}
		if _, ok := kernels[d.Kernel]; !ok {
			return errors.Wrapf(ErrUnknownKernel, "dispatch of %q", d.Kernel)
		}
	}
	for _, sm := range s.Samples {
		if _, ok := objects[sm.CodeObject]; !ok {
			return errors.Wrapf(ErrUnknownCodeObject, "sample at %#x", sm.Address)
		}
		if sm.Count == 0 {
			return errors.Wrapf(ErrSampleCountZero, "sample at %#x", sm.Address)
		}
	}

	return nil
}

// TotalSamples returns the collected-sample total the session reports,
// used as the conservation reference at dump time.
func (s *Session) TotalSamples() uint64 {
	var total uint64
	for _, sm := range s.Samples {
		total += sm.Count
	}

	return total
}

// RuntimeAgents converts the session's agents to runtime agent records,
// in enumeration order.
func (s *Session) RuntimeAgents() []runtime.Agent {
	agents := make([]runtime.Agent, 0, len(s.Agents))
	for i, a := range s.Agents {
		t := runtime.AgentTypeCPU
		if a.Type == "gpu" {
			t = runtime.AgentTypeGPU
		}
		agents = append(agents, runtime.Agent{
			Handle: runtime.AgentHandle(a.Handle),
			Type:   t,
			Node:   uint32(i),
			Name:   a.Name,
		})
	}

	return agents
}

// Contexts converts the requested services to registered profiling
// contexts, consumed by the queue controller's interception decision.
func (s *Session) Contexts() []*runtime.Context {
	var domains []runtime.TracingDomain
	if s.Services.KernelDispatchTracing {
		domains = append(domains, runtime.TracingDomainKernelDispatch)
	}
	if s.Services.MemoryCopyTracing {
		domains = append(domains, runtime.TracingDomainMemoryCopy)
	}

	ctx := &runtime.Context{
		CounterCollection: s.Services.CounterCollection,
	}
	if len(domains) > 0 {
		ctx.BufferedTracer = runtime.NewBufferedTracer(domains...)
	}

	return []*runtime.Context{ctx}
}

// TranslatorInstructions converts one code object's instruction stream
// to the translator's decoded form.
func (co *CodeObject) TranslatorInstructions() []codeobj.Instruction {
	instructions := make([]codeobj.Instruction, 0, len(co.Instructions))
	for _, in := range co.Instructions {
		instructions = append(instructions, codeobj.Instruction{
			CodeObjectID: co.ID,
			Address:      in.Address,
			Size:         in.Size,
			Text:         in.Inst,
			Comment:      in.Comment,
		})
	}

	return instructions
}
