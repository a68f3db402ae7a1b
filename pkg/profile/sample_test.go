package profile_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gpukit/gpuprof/pkg/codeobj"
	"github.com/gpukit/gpuprof/pkg/profile"
)

func TestSingleMaskConservation(t *testing.T) {
	flat := profile.NewFlatProfile()
	inst := &codeobj.Instruction{CodeObjectID: 1, Address: 0x1000, Size: 4, Text: "v_mov_b32 v0, v1"}

	for i := 0; i < 5; i++ {
		flat.RecordSample(inst, 0xF)
	}

	s := flat.GetSampleInstruction(inst)
	require.NotNil(t, s)
	require.Equal(t, uint64(5), s.SampleCount())
	require.Equal(t, map[uint64]uint64{0xF: 5}, s.ExecMaskCounts())
}

func TestMultiMaskConservation(t *testing.T) {
	flat := profile.NewFlatProfile()
	inst := &codeobj.Instruction{CodeObjectID: 1, Address: 0x1000, Size: 4, Text: "v_mov_b32 v0, v1"}

	for i := 0; i < 3; i++ {
		flat.RecordSample(inst, 0xF)
	}
	for i := 0; i < 2; i++ {
		flat.RecordSample(inst, 0x3)
	}

	s := flat.GetSampleInstruction(inst)
	require.NotNil(t, s)
	require.Equal(t, uint64(5), s.SampleCount())

	var sum uint64
	for _, count := range s.ExecMaskCounts() {
		sum += count
	}
	require.Equal(t, uint64(5), sum)
}

func TestUnsampledInstructionIsAbsent(t *testing.T) {
	flat := profile.NewFlatProfile()
	inst := &codeobj.Instruction{CodeObjectID: 1, Address: 0x1000, Size: 4}

	require.Nil(t, flat.GetSampleInstruction(inst))
}

func TestIdentitySeparationAcrossLoads(t *testing.T) {
	// The same kernel text loaded through two code object ids yields
	// two identities whose counts are never merged.
	translator := codeobj.NewTableTranslator()
	stream := []codeobj.Instruction{{Address: 0x1000, Size: 4, Text: "v_mov_b32 v0, v1"}}
	require.NoError(t, translator.AddCodeObject(1, stream))
	require.NoError(t, translator.AddCodeObject(2, stream))

	first, err := translator.Get(1, 0x1000)
	require.NoError(t, err)
	second, err := translator.Get(2, 0x1000)
	require.NoError(t, err)

	flat := profile.NewFlatProfile()
	flat.RecordSample(first, 0xF)
	flat.RecordSample(first, 0xF)
	flat.RecordSample(second, 0xF)

	require.Equal(t, uint64(2), flat.GetSampleInstruction(first).SampleCount())
	require.Equal(t, uint64(1), flat.GetSampleInstruction(second).SampleCount())
}
