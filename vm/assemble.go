package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// VersionMajor, VersionMinor and VersionPatch identify this implementation's
// own bytecode version. assemble() stamps every program with this triple;
// the loader (loader.go) rejects anything that doesn't match exactly.
const (
	VersionMajor uint8 = 1
	VersionMinor uint8 = 0
	VersionPatch uint8 = 0
)

// Assemble tokenizes and parses src, lowers it to an instruction tree, and
// prepends a version header derived from this implementation's own
// version - the textual front end never reads a version out of the
// source, only the one it's built with.
func Assemble(src string) (Code, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	forms, err := parseProgram(toks)
	if err != nil {
		return nil, err
	}

	code := make(Code, 0, len(forms)+1)
	code = append(code, Instruction{Op: OpVersion, Major: VersionMajor, Minor: VersionMinor, Patch: VersionPatch})

	for _, form := range forms {
		instr, err := lowerForm(form)
		if err != nil {
			return nil, err
		}
		code = append(code, instr)
	}

	return code, nil
}

func lowerForm(s sexpr) (Instruction, error) {
	if s.kind != sexprList || len(s.list) == 0 {
		return Instruction{}, fmt.Errorf("%w: expected (mnemonic ...) form", ErrUnexpectedToken)
	}

	head := s.list[0]
	if head.kind != sexprAtom {
		return Instruction{}, fmt.Errorf("%w: expected mnemonic, got string literal", ErrUnexpectedToken)
	}
	mnemonic := head.atom
	args := s.list[1:]

	switch mnemonic {
	case "dump":
		return Instruction{Op: OpDump}, noArgs(mnemonic, args)
	case "hi":
		return Instruction{Op: OpHi}, noArgs(mnemonic, args)
	case "pop":
		return Instruction{Op: OpPop}, noArgs(mnemonic, args)
	case "dup":
		return Instruction{Op: OpDup}, noArgs(mnemonic, args)
	case "op.add":
		return Instruction{Op: OpAdd}, noArgs(mnemonic, args)
	case "op.sub":
		return Instruction{Op: OpSub}, noArgs(mnemonic, args)
	case "op.mul":
		return Instruction{Op: OpMul}, noArgs(mnemonic, args)
	case "op.div":
		return Instruction{Op: OpDiv}, noArgs(mnemonic, args)
	case "op.inc":
		return Instruction{Op: OpInc}, noArgs(mnemonic, args)
	case "op.dec":
		return Instruction{Op: OpDec}, noArgs(mnemonic, args)
	case "cmp.eq":
		return Instruction{Op: OpEq}, noArgs(mnemonic, args)
	case "cmp.ne":
		return Instruction{Op: OpNe}, noArgs(mnemonic, args)
	case "cmp.lt":
		return Instruction{Op: OpLt}, noArgs(mnemonic, args)
	case "cmp.le":
		return Instruction{Op: OpLe}, noArgs(mnemonic, args)
	case "cmp.gt":
		return Instruction{Op: OpGt}, noArgs(mnemonic, args)
	case "cmp.ge":
		return Instruction{Op: OpGe}, noArgs(mnemonic, args)
	case "return":
		return Instruction{Op: OpReturn}, noArgs(mnemonic, args)
	case "break":
		return Instruction{Op: OpBreak}, noArgs(mnemonic, args)
	case "continue":
		return Instruction{Op: OpContinue}, noArgs(mnemonic, args)

	case "version":
		return lowerVersion(args)

	case "str.const":
		text, err := oneString(mnemonic, args)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: OpConstString, Str: text}, nil

	case "i32.const":
		v, err := oneInt(mnemonic, args)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: OpConstInteger, I32: v}, nil

	case "f32.const":
		v, err := oneFloat(mnemonic, args)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: OpConstFloat, F32: v}, nil

	case "bool.const":
		v, err := oneBool(mnemonic, args)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: OpConstBoolean, B: v}, nil

	case "local.get":
		v, err := oneU32(mnemonic, args)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: OpGetLocal, U32: v}, nil

	case "local.set":
		v, err := oneU32(mnemonic, args)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: OpSetLocal, U32: v}, nil

	case "local.reserve":
		v, err := oneU32(mnemonic, args)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: OpReserveLocal, U32: v}, nil

	case "alloc":
		v, err := oneU32(mnemonic, args)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: OpAlloc, U32: v}, nil

	case "field.get":
		v, err := oneU32(mnemonic, args)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: OpGetField, U32: v}, nil

	case "field.set":
		v, err := oneU32(mnemonic, args)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: OpSetField, U32: v}, nil

	case "call":
		return lowerCall(args)

	case "fn":
		return lowerFn(args)

	case "mod":
		return lowerMod(args)

	case "mod.load":
		return lowerModLoad(args)

	case "fn.get":
		return lowerFnGet(args)

	case "then":
		return lowerThen(args)

	case "loop":
		return lowerLoop(args)

	default:
		return Instruction{}, fmt.Errorf("%w: %q", ErrUnknownMnemonic, mnemonic)
	}
}

func noArgs(mnemonic string, args []sexpr) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: %s takes no arguments", ErrMalformedOperand, mnemonic)
	}
	return nil
}

func textOf(s sexpr) (string, bool) {
	if s.kind == sexprAtom || s.kind == sexprString {
		return s.atom, true
	}
	return "", false
}

func oneString(mnemonic string, args []sexpr) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: %s expects exactly one string argument", ErrMalformedOperand, mnemonic)
	}
	text, ok := textOf(args[0])
	if !ok {
		return "", fmt.Errorf("%w: %s expects a string argument", ErrMalformedOperand, mnemonic)
	}
	return text, nil
}

func oneInt(mnemonic string, args []sexpr) (int32, error) {
	text, err := oneString(mnemonic, args)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(text, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformedOperand, mnemonic, err)
	}
	return int32(v), nil
}

func oneU32(mnemonic string, args []sexpr) (uint32, error) {
	text, err := oneString(mnemonic, args)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(text, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformedOperand, mnemonic, err)
	}
	return uint32(v), nil
}

func oneFloat(mnemonic string, args []sexpr) (float32, error) {
	text, err := oneString(mnemonic, args)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(text, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformedOperand, mnemonic, err)
	}
	return float32(v), nil
}

func oneBool(mnemonic string, args []sexpr) (bool, error) {
	text, err := oneString(mnemonic, args)
	if err != nil {
		return false, err
	}
	switch text {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s expects true or false, got %q", ErrMalformedOperand, mnemonic, text)
	}
}

func lowerVersion(args []sexpr) (Instruction, error) {
	text, err := oneString("version", args)
	if err != nil {
		return Instruction{}, err
	}
	parts := strings.Split(text, ".")
	if len(parts) != 3 {
		return Instruction{}, fmt.Errorf("%w: version expects MAJOR.MINOR.PATCH, got %q", ErrMalformedOperand, text)
	}
	nums := make([]uint8, 3)
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return Instruction{}, fmt.Errorf("%w: version component %q: %v", ErrMalformedOperand, p, err)
		}
		nums[i] = uint8(v)
	}
	return Instruction{Op: OpVersion, Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func lowerCall(args []sexpr) (Instruction, error) {
	if len(args) != 3 {
		return Instruction{}, fmt.Errorf("%w: call expects (call MOD FN N)", ErrMalformedOperand)
	}
	mod, ok := textOf(args[0])
	if !ok {
		return Instruction{}, fmt.Errorf("%w: call module name", ErrMalformedOperand)
	}
	fn, ok := textOf(args[1])
	if !ok {
		return Instruction{}, fmt.Errorf("%w: call function name", ErrMalformedOperand)
	}
	argc, err := oneU32("call", args[2:])
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{Op: OpCall, ModName: mod, Name: fn, Argc: argc}, nil
}

func lowerBody(forms []sexpr) (Code, error) {
	body := make(Code, 0, len(forms))
	for _, f := range forms {
		instr, err := lowerForm(f)
		if err != nil {
			return nil, err
		}
		body = append(body, instr)
	}
	return body, nil
}

func lowerFn(args []sexpr) (Instruction, error) {
	if len(args) < 1 {
		return Instruction{}, fmt.Errorf("%w: fn expects a name", ErrMalformedOperand)
	}
	name, ok := textOf(args[0])
	if !ok {
		return Instruction{}, fmt.Errorf("%w: fn name", ErrMalformedOperand)
	}
	body, err := lowerBody(args[1:])
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{Op: OpFunc, Name: name, Body: body}, nil
}

func lowerMod(args []sexpr) (Instruction, error) {
	if len(args) < 1 {
		return Instruction{}, fmt.Errorf("%w: mod expects a name", ErrMalformedOperand)
	}
	name, ok := textOf(args[0])
	if !ok {
		return Instruction{}, fmt.Errorf("%w: mod name", ErrMalformedOperand)
	}
	body, err := lowerBody(args[1:])
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{Op: OpModule, Name: name, Body: body}, nil
}

func lowerModLoad(args []sexpr) (Instruction, error) {
	if len(args) < 1 {
		return Instruction{}, fmt.Errorf("%w: mod.load expects a library name", ErrMalformedOperand)
	}
	name, ok := textOf(args[0])
	if !ok {
		return Instruction{}, fmt.Errorf("%w: mod.load name", ErrMalformedOperand)
	}
	body, err := lowerBody(args[1:])
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{Op: OpLoadModule, Name: name, Body: body}, nil
}

func lowerFnGet(args []sexpr) (Instruction, error) {
	if len(args) != 1 && len(args) != 3 {
		return Instruction{}, fmt.Errorf("%w: fn.get expects (fn.get NAME) or (fn.get NAME as ALIAS)", ErrMalformedOperand)
	}
	name, ok := textOf(args[0])
	if !ok {
		return Instruction{}, fmt.Errorf("%w: fn.get name", ErrMalformedOperand)
	}
	instr := Instruction{Op: OpGetFunction, Name: name}
	if len(args) == 3 {
		if !args[1].isAtom("as") {
			return Instruction{}, fmt.Errorf("%w: fn.get expects `as` before the alias", ErrMalformedOperand)
		}
		alias, ok := textOf(args[2])
		if !ok {
			return Instruction{}, fmt.Errorf("%w: fn.get alias", ErrMalformedOperand)
		}
		instr.Alias = alias
		instr.HasAlias = true
	}
	return instr, nil
}

// lowerThen reads children as the then-arm until it sees the atom "else",
// then reads the remainder as the else-arm.
func lowerThen(args []sexpr) (Instruction, error) {
	splitAt := -1
	for i, a := range args {
		if a.isAtom("else") {
			splitAt = i
			break
		}
	}

	var thenForms, elseForms []sexpr
	hasElse := splitAt >= 0
	if hasElse {
		thenForms = args[:splitAt]
		elseForms = args[splitAt+1:]
	} else {
		thenForms = args
	}

	thenBody, err := lowerBody(thenForms)
	if err != nil {
		return Instruction{}, err
	}
	instr := Instruction{Op: OpThen, Body: thenBody}
	if hasElse {
		elseBody, err := lowerBody(elseForms)
		if err != nil {
			return Instruction{}, err
		}
		instr.Else = elseBody
		instr.HasElse = true
	}
	return instr, nil
}

func lowerLoop(args []sexpr) (Instruction, error) {
	body, err := lowerBody(args)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{Op: OpLoop, Body: body}, nil
}
