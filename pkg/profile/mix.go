package profile

import (
	"strings"

	"github.com/gpukit/gpuprof/pkg/codeobj"
)

// InstructionMix is a coarse classification of a kernel's instruction
// stream by execution unit.
type InstructionMix struct {
	Vector  int
	Scalar  int
	Waitcnt int
	Other   int
}

// ComputeInstructionMix classifies every decoded instruction of the
// kernel by its mnemonic prefix.
func ComputeInstructionMix(k *KernelObject) InstructionMix {
	var mix InstructionMix

	k.IterateInstructions(func(inst *codeobj.Instruction) {
		switch {
		case strings.HasPrefix(inst.Text, "v_"):
			mix.Vector++
		case strings.HasPrefix(inst.Text, "s_waitcnt"):
			mix.Waitcnt++
		case strings.HasPrefix(inst.Text, "s_"):
			mix.Scalar++
		default:
			mix.Other++
		}
	})

	return mix
}
