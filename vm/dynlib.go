package vm

import (
	"fmt"
	"plugin"
	"sync"
)

/*
	Dynamic modules come from two sources: real OS shared libraries opened
	with the standard library's plugin package, and builtins the host
	process registers by name before loading a program.

	The builtin registry is a name-keyed table of symbol tables that the
	host populates ahead of time; openLibrary consults it before ever
	touching the OS loader, so tests and embedders can wire native
	functions without shipping a compiled .so.
*/

// DynamicModule resolves named native symbols out of an opened library.
type DynamicModule interface {
	Resolve(symbol string) (NativeFunc, error)
	Close() error
}

var (
	builtinMu   sync.Mutex
	builtinLibs = map[string]map[string]NativeFunc{}
)

// RegisterBuiltinLibrary makes an in-process native library available
// under name, without going through the OS dynamic loader at all. Host
// programs call this before loading any bytecode that names the library
// in a mod.load declaration.
func RegisterBuiltinLibrary(name string, symbols map[string]NativeFunc) {
	builtinMu.Lock()
	defer builtinMu.Unlock()
	builtinLibs[name] = symbols
}

// builtinModule implements DynamicModule over a fixed symbol table.
type builtinModule struct {
	symbols map[string]NativeFunc
}

func (b *builtinModule) Resolve(symbol string) (NativeFunc, error) {
	fn, ok := b.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSymbolNotFound, symbol)
	}
	return fn, nil
}

func (b *builtinModule) Close() error { return nil }

// pluginModule implements DynamicModule over a real *plugin.Plugin. Every
// exported symbol a guest program resolves must itself be a NativeFunc -
// a library author writes `var Add vm.NativeFunc = func(args []vm.Value)
// (*vm.Value, error) { ... }` and exports Add.
type pluginModule struct {
	p *plugin.Plugin
}

func (m *pluginModule) Resolve(symbol string) (NativeFunc, error) {
	sym, err := m.p.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrSymbolNotFound, symbol, err)
	}
	switch fn := sym.(type) {
	case NativeFunc:
		return fn, nil
	case *NativeFunc:
		return *fn, nil
	default:
		return nil, fmt.Errorf("%w: %q is not a vm.NativeFunc", ErrSymbolBadSignature, symbol)
	}
}

func (m *pluginModule) Close() error { return nil }

// openLibrary resolves name to a DynamicModule, preferring a builtin
// registered via RegisterBuiltinLibrary and falling back to opening name
// as a path to a real .so plugin.
func openLibrary(vm *VM, name string) (DynamicModule, error) {
	if existing, ok := vm.dynamic[name]; ok {
		return existing, nil
	}

	builtinMu.Lock()
	symbols, ok := builtinLibs[name]
	builtinMu.Unlock()
	if ok {
		return &builtinModule{symbols: symbols}, nil
	}

	p, err := plugin.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrLibraryOpenFailed, name, err)
	}
	return &pluginModule{p: p}, nil
}
