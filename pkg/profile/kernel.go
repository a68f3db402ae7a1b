package profile

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/gpukit/gpuprof/pkg/codeobj"
)

// kernelDescriptorSuffix is appended by the loader to kernel symbol
// names on registration; it is stripped so kernels are reported under
// their source name.
const kernelDescriptorSuffix = ".kd"

// KernelObject holds the fully decoded instruction stream of one loaded
// kernel symbol instance. It is immutable after construction.
type KernelObject struct {
	codeObjectID uint64
	kernelName   string
	beginAddress uint64
	endAddress   uint64
	instructions []*codeobj.Instruction
}

// NewKernelObject eagerly decodes the [begin, end) range of the kernel
// through the translator, one instruction at a time.
//
// A lookup failure fails construction instead of producing a silently
// truncated stream, and a zero-size instruction fails construction
// instead of looping forever.
func NewKernelObject(translator codeobj.Translator, codeObjectID uint64, kernelName string, beginAddress, endAddress uint64) (*KernelObject, error) {
	k := &KernelObject{
		codeObjectID: codeObjectID,
		kernelName:   strings.TrimSuffix(kernelName, kernelDescriptorSuffix),
		beginAddress: beginAddress,
		endAddress:   endAddress,
	}

	vaddr := beginAddress
	for vaddr < endAddress {
		inst, err := translator.Get(codeObjectID, vaddr)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode %#x in kernel %s", vaddr, k.kernelName)
		}
		if inst.Size == 0 {
			return nil, errors.Wrapf(ErrInstructionSizeInvalid, "%#x in kernel %s", vaddr, k.kernelName)
		}
		k.instructions = append(k.instructions, inst)
		vaddr += inst.Size
	}

	return k, nil
}

// CodeObjectID returns the id of the code object load the kernel
// belongs to.
func (k *KernelObject) CodeObjectID() uint64 {
	return k.codeObjectID
}

// KernelName returns the kernel name, without the loader's descriptor
// suffix.
func (k *KernelObject) KernelName() string {
	return k.kernelName
}

// BeginAddress returns the first virtual address of the kernel.
func (k *KernelObject) BeginAddress() uint64 {
	return k.beginAddress
}

// EndAddress returns the address one past the last instruction.
func (k *KernelObject) EndAddress() uint64 {
	return k.endAddress
}

// IterateInstructions visits the decoded instructions in address order.
func (k *KernelObject) IterateInstructions(visit func(inst *codeobj.Instruction)) {
	for _, inst := range k.instructions {
		visit(inst)
	}
}

// KernelObjectMap is the append-only set of every kernel object created
// during the session. It performs no decoding itself.
//
// Entries are never removed, not even on code object unload: a long
// session with many load/unload cycles over the same address range
// accumulates stale instruction identities.
type KernelObjectMap struct {
	objects []*KernelObject
}

func NewKernelObjectMap() *KernelObjectMap {
	return &KernelObjectMap{}
}

// Insert appends a kernel object to the map.
func (m *KernelObjectMap) Insert(k *KernelObject) {
	m.objects = append(m.objects, k)
}

// Len returns the number of kernel objects inserted so far.
func (m *KernelObjectMap) Len() int {
	return len(m.objects)
}

// IterateKernelObjects visits every kernel object in insertion order.
// The traversal is restartable; the order carries no meaning.
func (m *KernelObjectMap) IterateKernelObjects(visit func(k *KernelObject)) {
	for _, k := range m.objects {
		visit(k)
	}
}
