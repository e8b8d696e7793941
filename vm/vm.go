package vm

import (
	"fmt"

	"go.uber.org/zap"
)

/*
	VM is the host-embeddable entry point: construct one, register any
	builtin native modules the host wants available, load a program, then
	invoke functions by module+name. Everything else in this package is
	reachable only through these operations.

	There is no program counter to save and restore - the call stack IS
	the Go call stack, one execCode per nested Code body, and locals live
	one frame per call in localStack.
*/

// frame holds the local variable slots for one in-flight function call.
type frame struct {
	locals []Value
}

// VM owns all loaded modules and the state of one logical thread of
// execution. A VM is not safe for concurrent use from multiple goroutines;
// host code that wants concurrency runs multiple VMs, each with its own
// modules and stacks.
type VM struct {
	modules map[string]*Module
	dynamic map[string]DynamicModule

	stack      []Value
	localStack []*frame

	logger *zap.Logger
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithLogger attaches a structured logger used by the dump and hi
// diagnostic opcodes (see diag.go). Without one, those opcodes use a
// no-op logger and are silent.
func WithLogger(logger *zap.Logger) Option {
	return func(vm *VM) { vm.logger = logger }
}

// New constructs an empty VM with no modules loaded.
func New(opts ...Option) *VM {
	vm := &VM{
		modules: make(map[string]*Module),
		dynamic: make(map[string]DynamicModule),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// RegisterModule installs a module that was built directly by host code
// (typically via CodeBuilder or a hand-assembled NativeFunc table) rather
// than loaded from a program. It fails if a module of the same name is
// already registered.
func (vm *VM) RegisterModule(m *Module) error {
	if _, exists := vm.modules[m.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateFunction, m.Name)
	}
	vm.modules[m.Name] = m
	return nil
}

// LoadSource assembles program text and loads the resulting program.
func (vm *VM) LoadSource(src string) error {
	code, err := Assemble(src)
	if err != nil {
		return err
	}
	return vm.Load(code)
}

// LoadBytecode decodes a binary program and loads it.
func (vm *VM) LoadBytecode(data []byte) error {
	code, err := Decode(data)
	if err != nil {
		return err
	}
	return vm.Load(code)
}

// Load installs every module and dynamic module declared at the top
// level of code into the VM, after checking the leading version header.
func (vm *VM) Load(code Code) error {
	return loadProgram(vm, code)
}

// HasFunction reports whether module/name names a loaded function.
func (vm *VM) HasFunction(module, name string) bool {
	_, ok := vm.lookupFunction(module, name)
	return ok
}

// Function returns the descriptor for module/name, if loaded.
func (vm *VM) Function(module, name string) (*Function, bool) {
	return vm.lookupFunction(module, name)
}

func (vm *VM) lookupFunction(module, name string) (*Function, bool) {
	mod, ok := vm.modules[module]
	if !ok {
		return nil, false
	}
	fn, ok := mod.Functions[name]
	return fn, ok
}

// Call invokes module.name with args and returns what it left on the
// operand stack beyond the stack depth it started with. Internal VM
// panics (stack underflow, type mismatches, unknown symbols) are
// recovered and turned into the returned error; see run.go.
func (vm *VM) Call(module, name string, args []Value) (results []Value, err error) {
	return vm.execute(module, name, args)
}
