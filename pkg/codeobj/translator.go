package codeobj

import (
	"sync"

	"github.com/pkg/errors"
)

// TableTranslator is a Translator backed by pre-decoded instruction
// tables, one per loaded code object. It stands in for a disassembler
// when the instruction stream is already known, as in session replay
// and tests.
type TableTranslator struct {
	mu      sync.RWMutex
	objects map[uint64]map[uint64]*Instruction
}

func NewTableTranslator() *TableTranslator {
	return &TableTranslator{
		objects: make(map[uint64]map[uint64]*Instruction),
	}
}

// AddCodeObject registers the decoded instruction stream of one code
// object load. The instructions are copied once; the stored pointers
// are the identities Get returns from then on.
func (t *TableTranslator) AddCodeObject(id uint64, instructions []Instruction) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.objects[id]; ok {
		return errors.Wrapf(ErrCodeObjectExists, "code object %d", id)
	}

	table := make(map[uint64]*Instruction, len(instructions))
	for i := range instructions {
		inst := instructions[i]
		inst.CodeObjectID = id
		if _, ok := table[inst.Address]; ok {
			return errors.Wrapf(ErrDuplicateAddress, "address %#x in code object %d", inst.Address, id)
		}
		table[inst.Address] = &inst
	}
	t.objects[id] = table

	return nil
}

// Get returns the instruction decoded at vaddr within the code object,
// with a stable pointer across calls.
func (t *TableTranslator) Get(codeObjectID, vaddr uint64) (*Instruction, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	table, ok := t.objects[codeObjectID]
	if !ok {
		return nil, errors.Wrapf(ErrCodeObjectNotFound, "code object %d", codeObjectID)
	}
	inst, ok := table[vaddr]
	if !ok {
		return nil, errors.Wrapf(ErrAddressNotMapped, "address %#x in code object %d", vaddr, codeObjectID)
	}

	return inst, nil
}
