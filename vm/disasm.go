package vm

import (
	"fmt"
	"strconv"
	"strings"
)

/*
	Disassemble renders a Code tree back to the textual assembler form
	(token.go/sexpr.go/assemble.go), the inverse of Assemble. It exists
	mostly for the `dis` CLI subcommand and for debugging a decoded
	bytecode file without a copy of its original source lying around.
*/

// Disassemble renders code as indented, human-readable assembler source.
// The leading version header Assemble always stamps on is omitted, since
// re-assembling the output would otherwise stamp a second one.
func Disassemble(code Code) string {
	if len(code) > 0 && code[0].Op == OpVersion {
		code = code[1:]
	}
	var b strings.Builder
	writeCode(&b, code, 0)
	return b.String()
}

func writeIndent(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
}

func writeCode(b *strings.Builder, code Code, depth int) {
	for _, instr := range code {
		writeInstruction(b, instr, depth)
	}
}

func writeInstruction(b *strings.Builder, instr Instruction, depth int) {
	writeIndent(b, depth)

	switch instr.Op {
	case OpVersion:
		fmt.Fprintf(b, "(version %d.%d.%d)\n", instr.Major, instr.Minor, instr.Patch)

	case OpConstInteger:
		fmt.Fprintf(b, "(i32.const %d)\n", instr.I32)
	case OpConstFloat:
		fmt.Fprintf(b, "(f32.const %s)\n", strconv.FormatFloat(float64(instr.F32), 'g', -1, 32))
	case OpConstString:
		fmt.Fprintf(b, "(str.const %q)\n", instr.Str)
	case OpConstBoolean:
		fmt.Fprintf(b, "(bool.const %t)\n", instr.B)

	case OpGetLocal, OpSetLocal, OpReserveLocal, OpAlloc, OpGetField, OpSetField:
		fmt.Fprintf(b, "(%s %d)\n", instr.Op, instr.U32)

	case OpCall:
		fmt.Fprintf(b, "(call %q %q %d)\n", instr.ModName, instr.Name, instr.Argc)

	case OpGetFunction:
		if instr.HasAlias {
			fmt.Fprintf(b, "(fn.get %q as %q)\n", instr.Name, instr.Alias)
		} else {
			fmt.Fprintf(b, "(fn.get %q)\n", instr.Name)
		}

	case OpFunc:
		fmt.Fprintf(b, "(fn %q\n", instr.Name)
		writeCode(b, instr.Body, depth+1)
		writeIndent(b, depth)
		b.WriteString(")\n")

	case OpModule:
		fmt.Fprintf(b, "(mod %q\n", instr.Name)
		writeCode(b, instr.Body, depth+1)
		writeIndent(b, depth)
		b.WriteString(")\n")

	case OpLoadModule:
		fmt.Fprintf(b, "(mod.load %q\n", instr.Name)
		writeCode(b, instr.Body, depth+1)
		writeIndent(b, depth)
		b.WriteString(")\n")

	case OpThen:
		b.WriteString("(then\n")
		writeCode(b, instr.Body, depth+1)
		if instr.HasElse {
			writeIndent(b, depth)
			b.WriteString("else\n")
			writeCode(b, instr.Else, depth+1)
		}
		writeIndent(b, depth)
		b.WriteString(")\n")

	case OpLoop:
		b.WriteString("(loop\n")
		writeCode(b, instr.Body, depth+1)
		writeIndent(b, depth)
		b.WriteString(")\n")

	default:
		fmt.Fprintf(b, "(%s)\n", instr.Op)
	}
}
