package profile

import (
	"github.com/gpukit/gpuprof/pkg/codeobj"
)

// SampleInstruction aggregates the PC samples attributed to one decoded
// instruction: the total count and the per-execution-mask counts. It is
// created lazily on the first sample for the instruction and never
// deleted during a profiling session.
type SampleInstruction struct {
	inst           *codeobj.Instruction
	sampleCount    uint64
	execMaskCounts map[uint64]uint64
}

func newSampleInstruction(inst *codeobj.Instruction) *SampleInstruction {
	return &SampleInstruction{
		inst:           inst,
		execMaskCounts: make(map[uint64]uint64),
	}
}

func (s *SampleInstruction) add(execMask uint64) {
	s.sampleCount++
	s.execMaskCounts[execMask]++
}

// Inst returns the instruction identity this aggregate belongs to.
func (s *SampleInstruction) Inst() *codeobj.Instruction {
	return s.inst
}

// SampleCount returns the total number of samples attributed to the
// instruction.
func (s *SampleInstruction) SampleCount() uint64 {
	return s.sampleCount
}

// ExecMaskCounts returns the per-execution-mask sample counts. The map
// is owned by the aggregate; callers must not mutate it.
func (s *SampleInstruction) ExecMaskCounts() map[uint64]uint64 {
	return s.execMaskCounts
}

// FlatProfile maps instruction identities to their sample aggregates.
// It is the single source of truth for how many samples landed on each
// exact decoded instruction; entries are never removed during a session.
type FlatProfile struct {
	samples map[*codeobj.Instruction]*SampleInstruction
}

func NewFlatProfile() *FlatProfile {
	return &FlatProfile{
		samples: make(map[*codeobj.Instruction]*SampleInstruction),
	}
}

// RecordSample attributes one sample with the given execution mask to
// the instruction, creating its aggregate on first observation.
func (p *FlatProfile) RecordSample(inst *codeobj.Instruction, execMask uint64) {
	s, ok := p.samples[inst]
	if !ok {
		s = newSampleInstruction(inst)
		p.samples[inst] = s
	}
	s.add(execMask)
}

// GetSampleInstruction returns the aggregate for the instruction, or
// nil when no sample has been observed for it.
func (p *FlatProfile) GetSampleInstruction(inst *codeobj.Instruction) *SampleInstruction {
	return p.samples[inst]
}
