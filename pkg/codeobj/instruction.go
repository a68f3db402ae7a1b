package codeobj

// Instruction is one decoded instruction at a fixed virtual address
// inside one code object load.
//
// Identity is the *Instruction pointer: the same machine code loaded
// twice (e.g. the same kernel on two devices) decodes to two distinct
// Instruction values, and samples attributed to them are never merged.
type Instruction struct {
	CodeObjectID uint64
	Address      uint64
	Size         uint64
	Text         string
	Comment      string
}

// Translator resolves a (code object id, virtual address) pair to the
// decoded instruction at that address.
//
// Implementations must return the same *Instruction for repeated
// lookups of the same loaded address, so that instruction identity is
// stable across kernel decoding and sample attribution. A lookup that
// cannot be resolved returns an error, never a nil instruction.
type Translator interface {
	Get(codeObjectID, vaddr uint64) (*Instruction, error)
}
