package profile

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/gpukit/gpuprof/pkg/codeobj"
)

const reportRule = "===================================="

// WriteFlatProfile renders the per-instruction execution profile as
// text. It is a pure function of the kernel object map, the flat
// profile and the externally collected sample total; it mutates no
// aggregation state.
//
// Every instruction must be counted toward the grand total exactly
// once: meeting the same identity twice means code object load/unload
// tracking is broken, and a grand total that differs from the collected
// total is a conservation violation. Both are hard failures.
func WriteFlatProfile(w io.Writer, kernels *KernelObjectMap, flat *FlatProfile, collectedTotal uint64) error {
	var (
		sb      strings.Builder
		visited = make(map[*codeobj.Instruction]struct{})
		decoded uint64
		err     error
	)

	kernels.IterateKernelObjects(func(k *KernelObject) {
		if err != nil {
			return
		}
		fmt.Fprintf(&sb, "\n%s\n", reportRule)
		fmt.Fprintf(&sb, "The kernel: %s with the begin address: %#x from code object with id: %d\n",
			k.KernelName(), k.BeginAddress(), k.CodeObjectID())

		k.IterateInstructions(func(inst *codeobj.Instruction) {
			if err != nil {
				return
			}
			fmt.Fprintf(&sb, "\t%s\t%s\tsamples: ", inst.Text, inst.Comment)

			s := flat.GetSampleInstruction(inst)
			if s == nil {
				sb.WriteString("0\n")
				return
			}

			if _, ok := visited[s.Inst()]; ok {
				err = errors.Wrapf(ErrInstructionDoubleCounted, "%s at %#x", inst.Text, inst.Address)
				return
			}
			visited[s.Inst()] = struct{}{}
			decoded += s.SampleCount()

			fmt.Fprintf(&sb, "%d", s.SampleCount())
			if writeErr := writeExecMasks(&sb, s); writeErr != nil {
				err = writeErr
				return
			}
			sb.WriteByte('\n')
		})
		fmt.Fprintf(&sb, "%s\n", reportRule)
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(&sb, "\nThe total number of decoded   samples: %d\n", decoded)
	fmt.Fprintf(&sb, "The total number of collected samples: %d\n", collectedTotal)

	if decoded != collectedTotal {
		return errors.Wrapf(ErrSampleConservationViolated, "decoded %d, collected %d", decoded, collectedTotal)
	}
	// At least one sample must have been decoded and delivered.
	if decoded == 0 {
		return ErrNoSamplesDecoded
	}

	if _, werr := io.WriteString(w, sb.String()); werr != nil {
		return errors.Wrap(werr, "failed to write flat profile report")
	}

	return nil
}

// writeExecMasks renders the per-mask counts and checks them against
// the instruction's total.
func writeExecMasks(sb *strings.Builder, s *SampleInstruction) error {
	masks := s.ExecMaskCounts()

	if len(masks) <= 1 {
		for mask, count := range masks {
			fmt.Fprintf(sb, ", exec_mask: %#x", mask)
			if count != s.SampleCount() {
				return errors.Wrapf(ErrExecMaskSumMismatch, "mask %#x has %d of %d samples",
					mask, count, s.SampleCount())
			}
		}
		return nil
	}

	sorted := make([]uint64, 0, len(masks))
	for mask := range masks {
		sorted = append(sorted, mask)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum uint64
	for _, mask := range sorted {
		fmt.Fprintf(sb, "\n\t\texec_mask: %#x\tsamples: %d", mask, masks[mask])
		sum += masks[mask]
	}
	if sum != s.SampleCount() {
		return errors.Wrapf(ErrExecMaskSumMismatch, "masks sum to %d of %d samples", sum, s.SampleCount())
	}

	return nil
}
