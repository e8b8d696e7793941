package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadRejectsNonDeclarationAtTopLevel(t *testing.T) {
	code := Code{
		{Op: OpVersion, Major: VersionMajor, Minor: VersionMinor, Patch: VersionPatch},
		{Op: OpPop},
	}
	machine := New()
	err := machine.Load(code)
	require.ErrorIs(t, err, ErrUnexpectedAtTopLevel)
}

func TestLoadRejectsNonFuncInsideModule(t *testing.T) {
	code := Code{
		{Op: OpVersion, Major: VersionMajor, Minor: VersionMinor, Patch: VersionPatch},
		{Op: OpModule, Name: "m", Body: Code{{Op: OpPop}}},
	}
	machine := New()
	err := machine.Load(code)
	require.ErrorIs(t, err, ErrUnexpectedInModule)
}

func TestLoadRejectsDuplicateFunctionInModule(t *testing.T) {
	code := Code{
		{Op: OpVersion, Major: VersionMajor, Minor: VersionMinor, Patch: VersionPatch},
		{Op: OpModule, Name: "m", Body: Code{
			{Op: OpFunc, Name: "f", Body: Code{{Op: OpReturn}}},
			{Op: OpFunc, Name: "f", Body: Code{{Op: OpReturn}}},
		}},
	}
	machine := New()
	err := machine.Load(code)
	require.ErrorIs(t, err, ErrDuplicateFunction)
}

func TestLoadRejectsMissingLibrary(t *testing.T) {
	code := Code{
		{Op: OpVersion, Major: VersionMajor, Minor: VersionMinor, Patch: VersionPatch},
		{Op: OpLoadModule, Name: "nonexistent.so.not.registered", Body: Code{
			{Op: OpGetFunction, Name: "sym"},
		}},
	}
	machine := New()
	err := machine.Load(code)
	require.ErrorIs(t, err, ErrLibraryOpenFailed)
}

func TestLoadRejectsDuplicateModuleNames(t *testing.T) {
	code := Code{
		{Op: OpVersion, Major: VersionMajor, Minor: VersionMinor, Patch: VersionPatch},
		{Op: OpModule, Name: "m", Body: nil},
		{Op: OpModule, Name: "m", Body: nil},
	}
	machine := New()
	err := machine.Load(code)
	require.ErrorIs(t, err, ErrDuplicateFunction)
}
