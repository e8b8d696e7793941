package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeSkipsCommentsAndWhitespace(t *testing.T) {
	toks, err := tokenize("(op.add) ; trailing comment\n(pop)")
	require.NoError(t, err)
	require.Len(t, toks, 6)
	assert.Equal(t, tokLParen, toks[0].kind)
	assert.Equal(t, "op.add", toks[1].text)
	assert.Equal(t, tokRParen, toks[2].kind)
	assert.Equal(t, tokLParen, toks[3].kind)
	assert.Equal(t, "pop", toks[4].text)
}

func TestTokenizeUnterminatedStringErrors(t *testing.T) {
	_, err := tokenize(`(str.const "unterminated)`)
	require.ErrorIs(t, err, ErrUnterminatedString)
}

func TestTokenizeStringHasNoEscapeProcessing(t *testing.T) {
	toks, err := tokenize(`(str.const "a\nb")`)
	require.NoError(t, err)
	var found bool
	for _, tk := range toks {
		if tk.kind == tokString {
			assert.Equal(t, `a\nb`, tk.text)
			found = true
		}
	}
	assert.True(t, found)
}

func TestParseUnmatchedParenErrors(t *testing.T) {
	toks, err := tokenize("(fn \"f\"")
	require.NoError(t, err)
	_, err = parseProgram(toks)
	require.ErrorIs(t, err, ErrUnmatchedParen)
}

func TestAssembleProducesVersionHeader(t *testing.T) {
	code, err := Assemble(`(mod "m" (fn "f" (return)))`)
	require.NoError(t, err)
	require.NotEmpty(t, code)
	assert.Equal(t, OpVersion, code[0].Op)
	assert.Equal(t, VersionMajor, code[0].Major)
	assert.Equal(t, VersionMinor, code[0].Minor)
	assert.Equal(t, VersionPatch, code[0].Patch)
}

func TestLowerThenWithoutElse(t *testing.T) {
	code, err := Assemble(`(mod "m" (fn "f" (bool.const true) (then (pop))))`)
	require.NoError(t, err)
	fnInstr := code[1].Body[0]
	thenInstr := fnInstr.Body[1]
	assert.Equal(t, OpThen, thenInstr.Op)
	assert.False(t, thenInstr.HasElse)
	assert.Len(t, thenInstr.Body, 1)
}

func TestLowerFnGetAlias(t *testing.T) {
	code, err := Assemble(`(mod.load "lib" (fn.get "raw" as "nice"))`)
	require.NoError(t, err)
	getInstr := code[1].Body[0]
	assert.Equal(t, OpGetFunction, getInstr.Op)
	assert.Equal(t, "raw", getInstr.Name)
	assert.True(t, getInstr.HasAlias)
	assert.Equal(t, "nice", getInstr.Alias)
}

func TestLowerUnknownMnemonicErrors(t *testing.T) {
	_, err := Assemble(`(mod "m" (fn "f" (bogus.op)))`)
	require.ErrorIs(t, err, ErrUnknownMnemonic)
}

func TestDisassembleRoundTripsThroughReassembly(t *testing.T) {
	src := `(mod "m" (fn "f" (i32.const 2) (i32.const 3) (op.add) (return)))`
	code, err := Assemble(src)
	require.NoError(t, err)

	text := Disassemble(code)
	reassembled, err := Assemble(text)
	require.NoError(t, err)
	assert.Equal(t, code, reassembled)
}
