package vm

/*
	execCode walks a Code tree directly - there is no program counter and
	no jump table. Control flow out of the ordinary (return/break/continue)
	is threaded back up through the recursion as a ctrl value rather than
	a Go error, since it isn't a failure; genuine failures (stack
	underflow, type mismatches, unknown locals) are raised as panics (see
	errors.go) and recovered once, at the Call boundary in run.go, rather
	than threaded through every return in this file.
*/

type ctrl byte

const (
	ctrlNone ctrl = iota
	ctrlReturn
	ctrlBreak
	ctrlContinue
)

func (vm *VM) push(v Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() Value {
	if len(vm.stack) == 0 {
		raise(OpNone, ErrStackUnderflow)
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek() Value {
	if len(vm.stack) == 0 {
		raise(OpNone, ErrStackUnderflow)
	}
	return vm.stack[len(vm.stack)-1]
}

func (vm *VM) currentFrame() *frame {
	if len(vm.localStack) == 0 {
		raise(OpNone, ErrNoCurrentFrame)
	}
	return vm.localStack[len(vm.localStack)-1]
}

func (vm *VM) pushFrame(fr *frame) { vm.localStack = append(vm.localStack, fr) }

func (vm *VM) popFrame() {
	vm.localStack = vm.localStack[:len(vm.localStack)-1]
}

// execCode runs every instruction in code in order, stopping early if one
// of them signals non-local control flow.
func (vm *VM) execCode(code Code) ctrl {
	for _, instr := range code {
		if c := vm.execInstr(instr); c != ctrlNone {
			return c
		}
	}
	return ctrlNone
}

func (vm *VM) execInstr(instr Instruction) ctrl {
	switch instr.Op {
	case OpNone:

	case OpDump:
		vm.diagDump()
	case OpHi:
		vm.diagHi()

	case OpConstInteger:
		vm.push(Int(instr.I32))
	case OpConstFloat:
		vm.push(Float(instr.F32))
	case OpConstString:
		vm.push(Str(instr.Str))
	case OpConstBoolean:
		vm.push(Bool(instr.B))

	case OpPop:
		vm.pop()
	case OpDup:
		vm.push(vm.peek())

	case OpAdd:
		// Two strings concatenate, the value pushed first on the left.
		if n := len(vm.stack); n >= 2 {
			a, aok := vm.stack[n-2].AsString()
			b, bok := vm.stack[n-1].AsString()
			if aok && bok {
				vm.pop()
				vm.pop()
				vm.push(Str(a + b))
				break
			}
		}
		vm.binaryArith(instr.Op, func(a, b int32) int32 { return a + b }, func(a, b float32) float32 { return a + b })
	case OpSub:
		// Non-commutative: result is the value pushed first minus the value
		// pushed last, i.e. the second-from-top operand minus the top.
		vm.binaryArith(instr.Op, func(a, b int32) int32 { return a - b }, func(a, b float32) float32 { return a - b })
	case OpMul:
		vm.binaryArith(instr.Op, func(a, b int32) int32 { return a * b }, func(a, b float32) float32 { return a * b })
	case OpDiv:
		vm.divide(instr.Op)

	case OpInc:
		vm.unaryArith(instr.Op, 1)
	case OpDec:
		vm.unaryArith(instr.Op, -1)

	case OpEq:
		vm.compare(instr.Op)
	case OpNe:
		vm.compare(instr.Op)
	case OpLt:
		vm.compare(instr.Op)
	case OpLe:
		vm.compare(instr.Op)
	case OpGt:
		vm.compare(instr.Op)
	case OpGe:
		vm.compare(instr.Op)

	case OpGetLocal:
		fr := vm.currentFrame()
		if int(instr.U32) >= len(fr.locals) {
			raise(instr.Op, ErrLocalIndex)
		}
		vm.push(fr.locals[instr.U32])
	case OpSetLocal:
		fr := vm.currentFrame()
		if int(instr.U32) >= len(fr.locals) {
			raise(instr.Op, ErrLocalIndex)
		}
		fr.locals[instr.U32] = vm.pop()
	case OpReserveLocal:
		fr := vm.currentFrame()
		if need := int(instr.U32); need > len(fr.locals) {
			grown := make([]Value, need)
			copy(grown, fr.locals)
			for i := len(fr.locals); i < need; i++ {
				grown[i] = Null()
			}
			fr.locals = grown
		}

	case OpAlloc:
		vm.push(ObjectValue(NewValuesObject(instr.U32)))
	case OpGetField:
		obj := vm.popObject(instr.Op)
		v, err := obj.GetField(instr.U32)
		if err != nil {
			raise(instr.Op, err)
		}
		vm.push(v)
	case OpSetField:
		val := vm.pop()
		obj := vm.popObject(instr.Op)
		if err := obj.SetField(instr.U32, val); err != nil {
			raise(instr.Op, err)
		}

	case OpCall:
		vm.call(instr.ModName, instr.Name, instr.Argc)

	case OpThen:
		cond, ok := vm.pop().AsBool()
		if !ok {
			raise(instr.Op, ErrTypeMismatch)
		}
		if cond {
			return vm.execCode(instr.Body)
		}
		if instr.HasElse {
			return vm.execCode(instr.Else)
		}

	case OpLoop:
		for {
			c := vm.execCode(instr.Body)
			switch c {
			case ctrlBreak:
				return ctrlNone
			case ctrlReturn:
				return ctrlReturn
			case ctrlContinue, ctrlNone:
				continue
			}
		}

	case OpReturn:
		return ctrlReturn
	case OpBreak:
		return ctrlBreak
	case OpContinue:
		return ctrlContinue

	case OpVersion, OpFunc, OpModule, OpLoadModule, OpGetFunction:
		raise(instr.Op, ErrDeclarationAtRuntime)

	default:
		raise(instr.Op, ErrUnknownOpcode)
	}

	return ctrlNone
}

func (vm *VM) popObject(op Op) *Object {
	v := vm.pop()
	obj, ok := v.AsObject()
	if !ok {
		raise(op, ErrTypeMismatch)
	}
	return obj
}

func (vm *VM) binaryArith(op Op, intOp func(a, b int32) int32, floatOp func(a, b float32) float32) {
	b := vm.pop()
	a := vm.pop()

	if ai, ok := a.AsInt(); ok {
		bi, ok := b.AsInt()
		if !ok {
			raise(op, ErrTypeMismatch)
		}
		vm.push(Int(intOp(ai, bi)))
		return
	}
	if af, ok := a.AsFloat(); ok {
		bf, ok := b.AsFloat()
		if !ok {
			raise(op, ErrTypeMismatch)
		}
		vm.push(Float(floatOp(af, bf)))
		return
	}
	raise(op, ErrTypeMismatch)
}

// divide mirrors op.sub's non-commutative operand order: the dividend is
// the value pushed first (second from top), the divisor is the one pushed
// last (top of stack).
func (vm *VM) divide(op Op) {
	b := vm.pop()
	a := vm.pop()

	if ai, ok := a.AsInt(); ok {
		bi, ok := b.AsInt()
		if !ok {
			raise(op, ErrTypeMismatch)
		}
		if bi == 0 {
			raise(op, ErrDivisionByZero)
		}
		vm.push(Int(ai / bi))
		return
	}
	if af, ok := a.AsFloat(); ok {
		bf, ok := b.AsFloat()
		if !ok {
			raise(op, ErrTypeMismatch)
		}
		if bf == 0 {
			raise(op, ErrDivisionByZero)
		}
		vm.push(Float(af / bf))
		return
	}
	raise(op, ErrTypeMismatch)
}

func (vm *VM) unaryArith(op Op, delta int32) {
	v := vm.pop()
	if i, ok := v.AsInt(); ok {
		vm.push(Int(i + delta))
		return
	}
	if f, ok := v.AsFloat(); ok {
		vm.push(Float(f + float32(delta)))
		return
	}
	raise(op, ErrTypeMismatch)
}

func (vm *VM) compare(op Op) {
	b := vm.pop()
	a := vm.pop()

	switch op {
	case OpEq:
		vm.push(Bool(valuesEqual(a, b)))
		return
	case OpNe:
		vm.push(Bool(!valuesEqual(a, b)))
		return
	}

	// Ordering comparisons require the same numeric kind.
	if ai, ok := a.AsInt(); ok {
		bi, ok := b.AsInt()
		if !ok {
			raise(op, ErrTypeMismatch)
		}
		vm.push(Bool(orderInt(op, ai, bi)))
		return
	}
	if af, ok := a.AsFloat(); ok {
		bf, ok := b.AsFloat()
		if !ok {
			raise(op, ErrTypeMismatch)
		}
		vm.push(Bool(orderFloat(op, af, bf)))
		return
	}
	raise(op, ErrTypeMismatch)
}

func orderInt(op Op, a, b int32) bool {
	switch op {
	case OpLt:
		return a < b
	case OpLe:
		return a <= b
	case OpGt:
		return a > b
	case OpGe:
		return a >= b
	}
	return false
}

func orderFloat(op Op, a, b float32) bool {
	switch op {
	case OpLt:
		return a < b
	case OpLe:
		return a <= b
	case OpGt:
		return a > b
	case OpGe:
		return a >= b
	}
	return false
}

func valuesEqual(a, b Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case KindNull:
		return true
	case KindBoolean:
		av, _ := a.AsBool()
		bv, _ := b.AsBool()
		return av == bv
	case KindInteger:
		av, _ := a.AsInt()
		bv, _ := b.AsInt()
		return av == bv
	case KindFloat:
		av, _ := a.AsFloat()
		bv, _ := b.AsFloat()
		return av == bv
	case KindString:
		av, _ := a.AsString()
		bv, _ := b.AsString()
		return av == bv
	case KindObject:
		ao, _ := a.AsObject()
		bo, _ := b.AsObject()
		return ao == bo
	default:
		return false
	}
}

// call resolves module.name, pops argc arguments off the stack in their
// original left-to-right order, and runs the function.
func (vm *VM) call(module, name string, argc uint32) {
	fn, ok := vm.lookupFunction(module, name)
	if !ok {
		if _, modExists := vm.modules[module]; !modExists {
			raise(OpCall, ErrUnknownModule)
		}
		raise(OpCall, ErrUnknownFunction)
	}

	args := make([]Value, argc)
	for i := int(argc) - 1; i >= 0; i-- {
		args[i] = vm.pop()
	}

	switch fn.Kind {
	case FuncNative:
		result, err := fn.Native(args)
		if err != nil {
			raise(OpCall, err)
		}
		if result != nil {
			vm.push(*result)
		}

	case FuncCode:
		fr := &frame{locals: append([]Value(nil), args...)}
		vm.pushFrame(fr)
		vm.execCode(fn.Body)
		vm.popFrame()

	default:
		raise(OpCall, ErrUnknownFunction)
	}
}
