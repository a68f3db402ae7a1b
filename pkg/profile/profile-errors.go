package profile

import (
	"github.com/pkg/errors"
)

var (
	ErrInstructionSizeInvalid     = errors.New("decoded instruction has zero size")
	ErrInstructionDoubleCounted   = errors.New("instruction counted more than once")
	ErrExecMaskSumMismatch        = errors.New("execution mask counts do not sum to the sample count")
	ErrSampleConservationViolated = errors.New("decoded sample total does not match the collected total")
	ErrNoSamplesDecoded           = errors.New("no PC samples were decoded")
	ErrProfilerFinalized          = errors.New("flat profiler already finalized")
)
