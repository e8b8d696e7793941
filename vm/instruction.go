package vm

import "fmt"

/*
	The instruction set is a closed tree, not a flat linear array: Func,
	Module, LoadModule, Then and Loop all carry a nested Code sequence as
	one of their operands. There is no jump/address instruction anywhere
	in this set - structured control flow is expressed by nesting, and the
	interpreter (exec.go) walks the tree directly instead of resolving
	jump targets.

	Op values double as the wire opcode byte (see bytecode.go) so the
	codec and the tree share one source of truth for the opcode space.
*/

type Op byte

const (
	OpNone Op = 0x00

	OpDump     Op = 0x01
	OpHi       Op = 0x02
	OpFunc     Op = 0x03
	OpCall     Op = 0x04
	OpAlloc    Op = 0x05
	OpGetField Op = 0x06
	OpSetField Op = 0x07

	OpGetLocal Op = 0x09
	OpSetLocal Op = 0x0A
	OpPop      Op = 0x0B
	OpDup      Op = 0x0C
	OpAdd      Op = 0x0D
	OpSub      Op = 0x0E
	OpMul      Op = 0x0F
	OpDiv      Op = 0x10
	OpEq       Op = 0x11
	OpNe       Op = 0x12
	OpLt       Op = 0x13
	OpLe       Op = 0x14
	OpGt       Op = 0x15
	OpGe       Op = 0x16
	OpVersion  Op = 0x17

	OpReserveLocal Op = 0x18
	OpLoadModule   Op = 0x19
	OpGetFunction  Op = 0x1A
	OpModule       Op = 0x1B

	// Codes reserved for this implementation's own extensions, documented
	// here so the wire format is pinned.
	OpInc   Op = 0x1C
	OpDec   Op = 0x1D
	OpAlias Op = 0x1E

	OpConstString  Op = 0x40
	OpConstInteger Op = 0x41
	OpConstFloat   Op = 0x42
	OpConstBoolean Op = 0x43

	OpContinue Op = 0xF9
	OpBreak    Op = 0xFA
	OpLoop     Op = 0xFB
	OpElse     Op = 0xFC
	OpThen     Op = 0xFD
	OpReturn   Op = 0xFE
)

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "?unknown-op?"
}

var opNames = map[Op]string{
	OpNone:         "none",
	OpDump:         "dump",
	OpHi:           "hi",
	OpFunc:         "fn",
	OpCall:         "call",
	OpAlloc:        "alloc",
	OpGetField:     "field.get",
	OpSetField:     "field.set",
	OpGetLocal:     "local.get",
	OpSetLocal:     "local.set",
	OpPop:          "pop",
	OpDup:          "dup",
	OpAdd:          "op.add",
	OpSub:          "op.sub",
	OpMul:          "op.mul",
	OpDiv:          "op.div",
	OpEq:           "cmp.eq",
	OpNe:           "cmp.ne",
	OpLt:           "cmp.lt",
	OpLe:           "cmp.le",
	OpGt:           "cmp.gt",
	OpGe:           "cmp.ge",
	OpVersion:      "version",
	OpReserveLocal: "local.reserve",
	OpLoadModule:   "mod.load",
	OpGetFunction:  "fn.get",
	OpModule:       "mod",
	OpInc:          "op.inc",
	OpDec:          "op.dec",
	OpAlias:        "as",
	OpConstString:  "str.const",
	OpConstInteger: "i32.const",
	OpConstFloat:   "f32.const",
	OpConstBoolean: "bool.const",
	OpContinue:     "continue",
	OpBreak:        "break",
	OpLoop:         "loop",
	OpElse:         "else",
	OpThen:         "then",
	OpReturn:       "return",
}

// Instruction is one node of the instruction tree. Only the fields
// relevant to Op are populated; which ones those are is documented next
// to each Op's assembler/codec/exec handling.
type Instruction struct {
	Op Op

	Name  string // fn/mod/mod.load name, fn.get symbol name, call fn name
	Alias string // fn.get alias, if any
	HasAlias bool

	ModName string // call: module name
	Argc    uint32 // call: argument count

	U32 uint32 // local.get/set index, local.reserve count, alloc count, field index

	I32 int32   // i32.const
	F32 float32 // f32.const
	B   bool    // bool.const
	Str string  // str.const

	Major, Minor, Patch uint8 // version

	Body     Code // fn/mod/mod.load body, then-arm, loop body
	Else     Code // then: else-arm
	HasElse  bool
}

// Code is an ordered sequence of Instruction, used for top-level programs,
// function bodies, module bodies, conditional arms and loop bodies alike.
type Code []Instruction

// CodeBuilder is a small fluent helper for constructing Code without going
// through the text assembler - useful for host code (most often a native
// module) that wants to hand the VM a synthesized trampoline body.
type CodeBuilder struct {
	code Code
}

func NewCodeBuilder() *CodeBuilder { return &CodeBuilder{} }

func (b *CodeBuilder) PushInt(v int32) *CodeBuilder {
	b.code = append(b.code, Instruction{Op: OpConstInteger, I32: v})
	return b
}

func (b *CodeBuilder) PushFloat(v float32) *CodeBuilder {
	b.code = append(b.code, Instruction{Op: OpConstFloat, F32: v})
	return b
}

func (b *CodeBuilder) PushString(v string) *CodeBuilder {
	b.code = append(b.code, Instruction{Op: OpConstString, Str: v})
	return b
}

func (b *CodeBuilder) PushBool(v bool) *CodeBuilder {
	b.code = append(b.code, Instruction{Op: OpConstBoolean, B: v})
	return b
}

func (b *CodeBuilder) Call(mod, fn string, argc uint32) *CodeBuilder {
	b.code = append(b.code, Instruction{Op: OpCall, ModName: mod, Name: fn, Argc: argc})
	return b
}

func (b *CodeBuilder) Return() *CodeBuilder {
	b.code = append(b.code, Instruction{Op: OpReturn})
	return b
}

func (b *CodeBuilder) Raw(i Instruction) *CodeBuilder {
	b.code = append(b.code, i)
	return b
}

func (b *CodeBuilder) Build() Code { return b.code }

// FuncKind distinguishes a Code-backed function from a host-native one.
type FuncKind byte

const (
	FuncCode FuncKind = iota
	FuncNative
)

// NativeFunc is the signature every dynamic-library symbol and every
// host-registered builtin must satisfy: take a vector of Values, return an
// optional Value (nil means "pushes nothing").
type NativeFunc func(args []Value) (*Value, error)

// Function is a named callable, either interpreted Code or a host Native.
type Function struct {
	Name   string
	Kind   FuncKind
	Body   Code
	Native NativeFunc
}

// Module is a named mapping from function name to Function.
type Module struct {
	Name      string
	Functions map[string]*Function
}

func newModule(name string) *Module {
	return &Module{Name: name, Functions: make(map[string]*Function)}
}

func (m *Module) define(fn *Function) error {
	if _, exists := m.Functions[fn.Name]; exists {
		return fmt.Errorf("%w: %q already defined in module %q", ErrDuplicateFunction, fn.Name, m.Name)
	}
	m.Functions[fn.Name] = fn
	return nil
}
