package codeobj_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gpukit/gpuprof/pkg/codeobj"
)

func fixedSizeStream(begin, end, size uint64) []codeobj.Instruction {
	var instructions []codeobj.Instruction
	for vaddr := begin; vaddr < end; vaddr += size {
		instructions = append(instructions, codeobj.Instruction{
			Address: vaddr,
			Size:    size,
			Text:    "v_mov_b32 v0, v1",
		})
	}

	return instructions
}

func TestGetReturnsStableIdentity(t *testing.T) {
	translator := codeobj.NewTableTranslator()
	require.NoError(t, translator.AddCodeObject(1, fixedSizeStream(0x1000, 0x1010, 4)))

	first, err := translator.Get(1, 0x1004)
	require.NoError(t, err)
	second, err := translator.Get(1, 0x1004)
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, uint64(1), first.CodeObjectID)
	require.Equal(t, uint64(0x1004), first.Address)
}

func TestGetUnknownCodeObject(t *testing.T) {
	translator := codeobj.NewTableTranslator()

	_, err := translator.Get(7, 0x1000)
	require.ErrorIs(t, err, codeobj.ErrCodeObjectNotFound)
}

func TestGetUnmappedAddress(t *testing.T) {
	translator := codeobj.NewTableTranslator()
	require.NoError(t, translator.AddCodeObject(1, fixedSizeStream(0x1000, 0x1010, 4)))

	_, err := translator.Get(1, 0x2000)
	require.ErrorIs(t, err, codeobj.ErrAddressNotMapped)
}

func TestAddCodeObjectRejectsDuplicateID(t *testing.T) {
	translator := codeobj.NewTableTranslator()
	require.NoError(t, translator.AddCodeObject(1, fixedSizeStream(0x1000, 0x1010, 4)))

	err := translator.AddCodeObject(1, fixedSizeStream(0x1000, 0x1010, 4))
	require.ErrorIs(t, err, codeobj.ErrCodeObjectExists)
}

func TestAddCodeObjectRejectsDuplicateAddress(t *testing.T) {
	translator := codeobj.NewTableTranslator()

	err := translator.AddCodeObject(1, []codeobj.Instruction{
		{Address: 0x1000, Size: 4, Text: "s_nop"},
		{Address: 0x1000, Size: 4, Text: "s_nop"},
	})
	require.ErrorIs(t, err, codeobj.ErrDuplicateAddress)
}

func TestTwoLoadsAreDistinctIdentities(t *testing.T) {
	translator := codeobj.NewTableTranslator()
	require.NoError(t, translator.AddCodeObject(1, fixedSizeStream(0x1000, 0x1010, 4)))
	require.NoError(t, translator.AddCodeObject(2, fixedSizeStream(0x1000, 0x1010, 4)))

	first, err := translator.Get(1, 0x1000)
	require.NoError(t, err)
	second, err := translator.Get(2, 0x1000)
	require.NoError(t, err)

	// Same text, same address, different loads: distinct identities.
	require.Equal(t, first.Text, second.Text)
	require.NotSame(t, first, second)
}
