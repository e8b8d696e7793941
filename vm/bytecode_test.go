package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	code := Code{
		{Op: OpVersion, Major: 1, Minor: 0, Patch: 0},
		{Op: OpModule, Name: "m", Body: Code{
			{Op: OpFunc, Name: "f", Body: Code{
				{Op: OpConstInteger, I32: -42},
				{Op: OpConstFloat, F32: 3.5},
				{Op: OpConstString, Str: "hello"},
				{Op: OpConstBoolean, B: true},
				{Op: OpGetLocal, U32: 2},
				{Op: OpThen, Body: Code{{Op: OpBreak}}, Else: Code{{Op: OpContinue}}, HasElse: true},
				{Op: OpLoop, Body: Code{{Op: OpDup}, {Op: OpPop}}},
				{Op: OpCall, ModName: "other", Name: "g", Argc: 3},
				{Op: OpReturn},
			}},
		}},
		{Op: OpLoadModule, Name: "native", Body: Code{
			{Op: OpGetFunction, Name: "raw"},
			{Op: OpGetFunction, Name: "sym", Alias: "aliased", HasAlias: true},
		}},
	}

	data, err := Encode(code)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, code, decoded)
}

func TestDecodeTruncatedStreamErrors(t *testing.T) {
	code := Code{{Op: OpConstInteger, I32: 7}}
	data, err := Encode(code)
	require.NoError(t, err)

	_, err = Decode(data[:len(data)-1])
	require.ErrorIs(t, err, ErrTruncatedStream)
}

func TestDecodeUnknownOpcodeErrors(t *testing.T) {
	_, err := Decode([]byte{0xAB})
	require.ErrorIs(t, err, ErrUnknownOpcode)
}

func TestEncodeRejectsBareElseOrAlias(t *testing.T) {
	_, err := Encode(Code{{Op: OpElse}})
	require.ErrorIs(t, err, ErrMisplacedTag)

	_, err = Encode(Code{{Op: OpAlias, Str: "x"}})
	require.ErrorIs(t, err, ErrMisplacedTag)
}

func TestBigEndianWriteLittleEndianReadAgree(t *testing.T) {
	data, err := Encode(Code{{Op: OpConstInteger, I32: 0x01020304}})
	require.NoError(t, err)

	// opcode byte, then 4 operand bytes written big-endian.
	require.Len(t, data, 5)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, data[1:])

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, int32(0x01020304), decoded[0].I32)
}
