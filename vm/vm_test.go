package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, src string) *VM {
	t.Helper()
	machine := New()
	require.NoError(t, machine.LoadSource(src))
	return machine
}

func TestArithmeticAndCall(t *testing.T) {
	src := `
		(mod "m"
			(fn "f"
				(i32.const 2)
				(i32.const 3)
				(op.add)
				(return)))
	`
	machine := mustLoad(t, src)
	results, err := machine.Call("m", "f", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	v, ok := results[0].AsInt()
	require.True(t, ok)
	assert.Equal(t, int32(5), v)
}

func TestDivisionByZero(t *testing.T) {
	src := `
		(mod "m"
			(fn "f"
				(i32.const 1)
				(i32.const 0)
				(op.div)
				(return)))
	`
	machine := mustLoad(t, src)
	_, err := machine.Call("m", "f", nil)
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestSubtractionOperandOrderLiteralScenario(t *testing.T) {
	src := `
		(mod "m"
			(fn "f"
				(i32.const 10)
				(i32.const 3)
				(op.sub)
				(return)))
	`
	machine := mustLoad(t, src)
	results, err := machine.Call("m", "f", nil)
	require.NoError(t, err)
	v, ok := results[0].AsInt()
	require.True(t, ok)
	assert.Equal(t, int32(7), v)
}

func TestThenElse(t *testing.T) {
	src := `
		(mod "m"
			(fn "pick"
				(bool.const true)
				(then
					(i32.const 1)
				else
					(i32.const 2))
				(return)))
	`
	machine := mustLoad(t, src)
	results, err := machine.Call("m", "pick", nil)
	require.NoError(t, err)
	v, ok := results[0].AsInt()
	require.True(t, ok)
	assert.Equal(t, int32(1), v)
}

func TestLoopBreak(t *testing.T) {
	src := `
		(mod "m"
			(fn "count"
				(local.reserve 1)
				(i32.const 0)
				(local.set 0)
				(loop
					(local.get 0)
					(op.inc)
					(local.set 0)
					(local.get 0)
					(i32.const 3)
					(cmp.ge)
					(then (break)))
				(local.get 0)
				(return)))
	`
	machine := mustLoad(t, src)
	results, err := machine.Call("m", "count", nil)
	require.NoError(t, err)
	v, ok := results[0].AsInt()
	require.True(t, ok)
	assert.Equal(t, int32(3), v)
}

func TestFieldAliasingThroughSharedHandle(t *testing.T) {
	src := `
		(mod "m"
			(fn "f"
				(local.reserve 2)
				(alloc 1)
				(local.set 0)
				(local.get 0)
				(local.set 1)
				(local.get 0)
				(i32.const 9)
				(field.set 0)
				(local.get 1)
				(field.get 0)
				(return)))
	`
	machine := mustLoad(t, src)
	results, err := machine.Call("m", "f", nil)
	require.NoError(t, err)
	v, ok := results[0].AsInt()
	require.True(t, ok)
	assert.Equal(t, int32(9), v)
}

func TestArgumentOrderPreservedAcrossCall(t *testing.T) {
	src := `
		(mod "m"
			(fn "sub"
				(local.get 0)
				(local.get 1)
				(op.sub)
				(return))
			(fn "main"
				(i32.const 10)
				(i32.const 3)
				(call "m" "sub" 2)
				(return)))
	`
	machine := mustLoad(t, src)
	results, err := machine.Call("m", "main", nil)
	require.NoError(t, err)
	v, ok := results[0].AsInt()
	require.True(t, ok)
	assert.Equal(t, int32(7), v)
}

func TestUnknownFunctionRaisesError(t *testing.T) {
	machine := mustLoad(t, `(mod "m" (fn "f" (return)))`)
	_, err := machine.Call("m", "missing", nil)
	require.ErrorIs(t, err, ErrUnknownFunction)
}

func TestVersionMismatchRejected(t *testing.T) {
	code := Code{
		{Op: OpVersion, Major: VersionMajor + 1, Minor: 0, Patch: 0},
	}
	machine := New()
	err := machine.Load(code)
	require.ErrorIs(t, err, ErrVersionMismatch)
}

func TestRegisterBuiltinLibraryAndCallNative(t *testing.T) {
	RegisterBuiltinLibrary("math.ext", map[string]NativeFunc{
		"double": func(args []Value) (*Value, error) {
			v, _ := args[0].AsInt()
			result := Int(v * 2)
			return &result, nil
		},
	})

	src := `
		(mod.load "math.ext"
			(fn.get "double" as "twice"))
		(mod "m"
			(fn "f"
				(i32.const 21)
				(call "math.ext" "twice" 1)
				(return)))
	`
	machine := mustLoad(t, src)
	results, err := machine.Call("m", "f", nil)
	require.NoError(t, err)
	v, ok := results[0].AsInt()
	require.True(t, ok)
	assert.Equal(t, int32(42), v)
}
