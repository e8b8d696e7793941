package vm

import "fmt"

/*
	A loaded program is a flat sequence of top-level declarations: exactly
	one leading Version, any number of Module declarations, and any number
	of LoadModule declarations. Nothing else may appear at the top level,
	and Module/LoadModule bodies are restricted the same way one level
	down - the loader is the single place these shape rules are enforced,
	before a single instruction executes.
*/

// loadProgram validates and installs every declaration in code into vm.
func loadProgram(vm *VM, code Code) error {
	if len(code) == 0 || code[0].Op != OpVersion {
		return fmt.Errorf("%w: program must begin with a version header", ErrVersionMismatch)
	}
	if err := checkVersion(code[0]); err != nil {
		return err
	}

	for _, decl := range code[1:] {
		switch decl.Op {
		case OpModule:
			mod, err := buildStaticModule(decl)
			if err != nil {
				return err
			}
			if err := vm.RegisterModule(mod); err != nil {
				return err
			}

		case OpLoadModule:
			mod, err := buildDynamicModule(vm, decl)
			if err != nil {
				return err
			}
			if err := vm.RegisterModule(mod); err != nil {
				return err
			}

		default:
			return fmt.Errorf("%w: %s", ErrUnexpectedAtTopLevel, decl.Op)
		}
	}

	return nil
}

func checkVersion(header Instruction) error {
	if header.Major != VersionMajor || header.Minor != VersionMinor || header.Patch != VersionPatch {
		return fmt.Errorf("%w: program wants %d.%d.%d, runtime is %d.%d.%d",
			ErrVersionMismatch, header.Major, header.Minor, header.Patch,
			VersionMajor, VersionMinor, VersionPatch)
	}
	return nil
}

// buildStaticModule turns a Module declaration's Func children into a
// Module of interpreted functions.
func buildStaticModule(decl Instruction) (*Module, error) {
	mod := newModule(decl.Name)
	for _, child := range decl.Body {
		if child.Op != OpFunc {
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedInModule, child.Op)
		}
		fn := &Function{Name: child.Name, Kind: FuncCode, Body: child.Body}
		if err := mod.define(fn); err != nil {
			return nil, err
		}
	}
	return mod, nil
}

// buildDynamicModule resolves a LoadModule declaration's GetFunction
// children against the named dynamic library (see dynlib.go) and wraps
// each resolved symbol as a native Function, honoring any `as` alias.
func buildDynamicModule(vm *VM, decl Instruction) (*Module, error) {
	lib, err := openLibrary(vm, decl.Name)
	if err != nil {
		return nil, err
	}

	mod := newModule(decl.Name)
	for _, child := range decl.Body {
		if child.Op != OpGetFunction {
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedInLoad, child.Op)
		}
		native, err := lib.Resolve(child.Name)
		if err != nil {
			return nil, err
		}

		exposedName := child.Name
		if child.HasAlias {
			exposedName = child.Alias
		}

		fn := &Function{Name: exposedName, Kind: FuncNative, Native: native}
		if err := mod.define(fn); err != nil {
			return nil, err
		}
	}

	vm.dynamic[decl.Name] = lib
	return mod, nil
}
