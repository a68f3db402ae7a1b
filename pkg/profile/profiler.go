package profile

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/gpukit/gpuprof/pkg/codeobj"
)

// FlatProfiler bundles the address translator, the kernel object map
// and the flat profile under one coarse lock. Kernel decoding and
// sample recording interleave unpredictably with delivery threads;
// holding the lock across a whole decode loop is acceptable because
// code object loads are rare next to sample delivery volume.
//
// The profiler has an explicit lifecycle: construct with
// NewFlatProfiler, tear down with Fini. Callers must quiesce sample
// delivery before reporting for the conservation check to be valid.
type FlatProfiler struct {
	mu         sync.Mutex
	translator codeobj.Translator
	kernels    *KernelObjectMap
	flat       *FlatProfile
}

func NewFlatProfiler(translator codeobj.Translator) *FlatProfiler {
	return &FlatProfiler{
		translator: translator,
		kernels:    NewKernelObjectMap(),
		flat:       NewFlatProfile(),
	}
}

// LoadKernel decodes the kernel's instruction stream and retains it for
// reporting. Called once per code-object-load/kernel-register event.
func (p *FlatProfiler) LoadKernel(codeObjectID uint64, kernelName string, beginAddress, endAddress uint64) (*KernelObject, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.kernels == nil {
		return nil, ErrProfilerFinalized
	}
	k, err := NewKernelObject(p.translator, codeObjectID, kernelName, beginAddress, endAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load kernel %s", kernelName)
	}
	p.kernels.Insert(k)

	return k, nil
}

// RecordSample attributes one raw PC sample to its decoded instruction.
// A sample whose address resolves to no known code object is a lookup
// failure, never a silent drop.
func (p *FlatProfiler) RecordSample(codeObjectID, address, execMask uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.flat == nil {
		return ErrProfilerFinalized
	}
	inst, err := p.translator.Get(codeObjectID, address)
	if err != nil {
		return errors.Wrapf(err, "failed to attribute sample at %#x", address)
	}
	p.flat.RecordSample(inst, execMask)

	return nil
}

// WriteReport writes the flat-profile report and runs the conservation
// check against the externally collected total. Sample delivery must be
// quiesced first, otherwise the report is only a lower bound.
func (p *FlatProfiler) WriteReport(w io.Writer, collectedTotal uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.kernels == nil {
		return ErrProfilerFinalized
	}

	return WriteFlatProfile(w, p.kernels, p.flat, collectedTotal)
}

// KernelObjects returns the kernel object map for read-only traversal.
func (p *FlatProfiler) KernelObjects() *KernelObjectMap {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.kernels
}

// FlatProfile returns the aggregation state for read-only access.
func (p *FlatProfiler) FlatProfile() *FlatProfile {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.flat
}

// Fini releases the profiler's state. Teardown is explicit so that its
// order relative to other process-wide state is not left to chance.
func (p *FlatProfiler) Fini() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.translator = nil
	p.kernels = nil
	p.flat = nil
}
