package vm

import "fmt"

/*
	execute is the one place exec.go's raise() panics get recovered: set up
	a deferred recover, do the work, let the recover turn a panic into a
	normal return. It returns an error instead of printing one, since Call
	is a library entry point rather than a CLI command.

	A VM that errors mid-call is left with a stack and frame depth that no
	longer mean anything, so execute always resets both before returning.
*/

func (vm *VM) execute(module, name string, args []Value) (results []Value, err error) {
	baseStack := len(vm.stack)

	defer func() {
		if r := recover(); r != nil {
			vm.stack = vm.stack[:0]
			vm.localStack = vm.localStack[:0]
			if rerr, ok := r.(*runtimeError); ok {
				err = fmt.Errorf("%s: %w", rerr.op, rerr.err)
				return
			}
			panic(r)
		}
	}()

	argc := uint32(len(args))
	for _, a := range args {
		vm.push(a)
	}
	vm.call(module, name, argc)

	if len(vm.stack) < baseStack {
		return nil, nil
	}
	results = append(results, vm.stack[baseStack:]...)
	vm.stack = vm.stack[:baseStack]
	return results, nil
}
