package vm

/*
	dump and hi are the VM's two diagnostic opcodes: dump logs a snapshot
	of the operand stack and the current locals frame, hi is a bare
	heartbeat marker. Both go through the VM's *zap.Logger, so a host
	embedding the VM can route, filter or silence them the way it already
	handles the rest of its logging.
*/

func (vm *VM) diagDump() {
	stack := make([]string, len(vm.stack))
	for i, v := range vm.stack {
		stack[i] = v.String()
	}

	var locals []string
	if len(vm.localStack) > 0 {
		fr := vm.currentFrame()
		locals = make([]string, len(fr.locals))
		for i, v := range fr.locals {
			locals[i] = v.String()
		}
	}

	vm.logger.Sugar().Infow("dump",
		"depth", len(vm.stack), "stack", stack,
		"frames", len(vm.localStack), "locals", locals)
}

func (vm *VM) diagHi() {
	vm.logger.Sugar().Info("hi")
}
