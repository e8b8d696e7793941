package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

/*
	Each instruction serializes as a 1-byte opcode followed by its
	operands. Multi-byte integers and floats are WRITTEN big-endian, but
	READ by reversing the stored byte order and decoding little-endian -
	the two conventions agree (reversing a big-endian byte run yields
	exactly its little-endian run), so encode -> decode is the identity,
	but the two halves of this file must each use their own convention
	rather than sharing one - that's the whole point of writing it this
	way, and it's pinned by the round-trip tests in bytecode_test.go.

	Compound instructions (Func, Module, LoadModule, Loop) are framed: a
	u32 byte-length of the body precedes the body bytes. Then frames its
	then-arm the same way, and an Else opcode plus a second framed body
	may immediately follow - the decoder speculatively consumes the next
	opcode and restores its read position if it isn't the tag it's
	looking for. GetFunction does the same lookahead for its optional
	Alias tag.
*/

// ---- encoding ----

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) writeByte(b byte) { e.buf.WriteByte(b) }

func (e *encoder) writeU8(v uint8) { e.buf.WriteByte(v) }

func (e *encoder) writeU32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) writeI32(v int32) { e.writeU32(uint32(v)) }

func (e *encoder) writeF32(v float32) { e.writeU32(math.Float32bits(v)) }

func (e *encoder) writeBool(v bool) {
	if v {
		e.writeU8(1)
	} else {
		e.writeU8(0)
	}
}

func (e *encoder) writeString(s string) {
	e.writeU32(uint32(len(s)))
	e.buf.WriteString(s)
}

// Encode serializes a top-level Code sequence to its bytecode form.
func Encode(code Code) ([]byte, error) {
	enc := &encoder{}
	if err := encodeCode(enc, code); err != nil {
		return nil, err
	}
	return enc.buf.Bytes(), nil
}

func encodeCode(enc *encoder, code Code) error {
	for _, instr := range code {
		if err := encodeInstruction(enc, instr); err != nil {
			return err
		}
	}
	return nil
}

// encodeFramed encodes code into its own buffer so the caller can prefix
// it with a u32 length, as Func/Module/LoadModule/Loop/Then all require.
func encodeFramed(code Code) ([]byte, error) {
	inner := &encoder{}
	if err := encodeCode(inner, code); err != nil {
		return nil, err
	}
	return inner.buf.Bytes(), nil
}

func encodeInstruction(enc *encoder, instr Instruction) error {
	enc.writeByte(byte(instr.Op))

	switch instr.Op {
	case OpNone, OpDump, OpHi, OpPop, OpDup,
		OpAdd, OpSub, OpMul, OpDiv, OpInc, OpDec,
		OpEq, OpNe, OpLt, OpLe, OpGt, OpGe,
		OpReturn, OpBreak, OpContinue:
		// no operands

	case OpVersion:
		enc.writeU8(instr.Major)
		enc.writeU8(instr.Minor)
		enc.writeU8(instr.Patch)

	case OpConstString:
		enc.writeString(instr.Str)
	case OpConstInteger:
		enc.writeI32(instr.I32)
	case OpConstFloat:
		enc.writeF32(instr.F32)
	case OpConstBoolean:
		enc.writeBool(instr.B)

	case OpGetLocal, OpSetLocal, OpReserveLocal, OpAlloc, OpGetField, OpSetField:
		enc.writeU32(instr.U32)

	case OpCall:
		enc.writeString(instr.ModName)
		enc.writeString(instr.Name)
		enc.writeU32(instr.Argc)

	case OpFunc, OpModule, OpLoadModule:
		enc.writeString(instr.Name)
		body, err := encodeFramed(instr.Body)
		if err != nil {
			return err
		}
		enc.writeU32(uint32(len(body)))
		enc.buf.Write(body)

	case OpGetFunction:
		enc.writeString(instr.Name)
		if instr.HasAlias {
			enc.writeByte(byte(OpAlias))
			enc.writeString(instr.Alias)
		}

	case OpLoop:
		body, err := encodeFramed(instr.Body)
		if err != nil {
			return err
		}
		enc.writeU32(uint32(len(body)))
		enc.buf.Write(body)

	case OpThen:
		thenBody, err := encodeFramed(instr.Body)
		if err != nil {
			return err
		}
		enc.writeU32(uint32(len(thenBody)))
		enc.buf.Write(thenBody)
		if instr.HasElse {
			enc.writeByte(byte(OpElse))
			elseBody, err := encodeFramed(instr.Else)
			if err != nil {
				return err
			}
			enc.writeU32(uint32(len(elseBody)))
			enc.buf.Write(elseBody)
		}

	case OpElse, OpAlias:
		return fmt.Errorf("%w: %s may not appear outside its parent instruction", ErrMisplacedTag, instr.Op)

	default:
		return fmt.Errorf("%w: 0x%02X", ErrUnknownOpcode, byte(instr.Op))
	}

	return nil
}

// ---- decoding ----

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) remaining() int { return len(d.data) - d.pos }

func (d *decoder) readByte() (byte, error) {
	if d.remaining() < 1 {
		return 0, ErrTruncatedStream
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) readU8() (uint8, error) { return d.readByte() }

// readU32 reverses the stored (big-endian-written) bytes and decodes them
// little-endian, per the documented asymmetric wire convention.
func (d *decoder) readU32() (uint32, error) {
	if d.remaining() < 4 {
		return 0, ErrTruncatedStream
	}
	raw := d.data[d.pos : d.pos+4]
	d.pos += 4
	var rev [4]byte
	rev[0], rev[1], rev[2], rev[3] = raw[3], raw[2], raw[1], raw[0]
	return binary.LittleEndian.Uint32(rev[:]), nil
}

func (d *decoder) readI32() (int32, error) {
	v, err := d.readU32()
	return int32(v), err
}

func (d *decoder) readF32() (float32, error) {
	v, err := d.readU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (d *decoder) readBool() (bool, error) {
	b, err := d.readByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (d *decoder) readString() (string, error) {
	n, err := d.readU32()
	if err != nil {
		return "", err
	}
	if d.remaining() < int(n) {
		return "", ErrTruncatedStream
	}
	b := d.data[d.pos : d.pos+int(n)]
	d.pos += int(n)
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// peekOp speculatively reads the next opcode byte; if the caller decides
// it isn't what it wanted, restore() rewinds to before the peek.
func (d *decoder) peekOp() (Op, int, error) {
	save := d.pos
	b, err := d.readByte()
	if err != nil {
		return 0, save, err
	}
	return Op(b), save, nil
}

func (d *decoder) restore(pos int) { d.pos = pos }

// Decode deserializes a top-level bytecode stream into a Code sequence.
func Decode(data []byte) (Code, error) {
	dec := &decoder{data: data}
	code, err := decodeCode(dec, len(data))
	if err != nil {
		return nil, err
	}
	return code, nil
}

// decodeCode decodes instructions until dec.pos reaches end.
func decodeCode(dec *decoder, end int) (Code, error) {
	var code Code
	for dec.pos < end {
		instr, err := decodeInstruction(dec)
		if err != nil {
			return nil, err
		}
		code = append(code, instr)
	}
	return code, nil
}

func decodeFramed(dec *decoder) (Code, error) {
	length, err := dec.readU32()
	if err != nil {
		return nil, err
	}
	end := dec.pos + int(length)
	if end > len(dec.data) {
		return nil, ErrTruncatedStream
	}
	return decodeCode(dec, end)
}

func decodeInstruction(dec *decoder) (Instruction, error) {
	opByte, err := dec.readByte()
	if err != nil {
		return Instruction{}, err
	}
	op := Op(opByte)

	switch op {
	case OpNone, OpDump, OpHi, OpPop, OpDup,
		OpAdd, OpSub, OpMul, OpDiv, OpInc, OpDec,
		OpEq, OpNe, OpLt, OpLe, OpGt, OpGe,
		OpReturn, OpBreak, OpContinue:
		return Instruction{Op: op}, nil

	case OpVersion:
		major, err := dec.readU8()
		if err != nil {
			return Instruction{}, err
		}
		minor, err := dec.readU8()
		if err != nil {
			return Instruction{}, err
		}
		patch, err := dec.readU8()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: op, Major: major, Minor: minor, Patch: patch}, nil

	case OpConstString:
		s, err := dec.readString()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: op, Str: s}, nil

	case OpConstInteger:
		v, err := dec.readI32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: op, I32: v}, nil

	case OpConstFloat:
		v, err := dec.readF32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: op, F32: v}, nil

	case OpConstBoolean:
		v, err := dec.readBool()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: op, B: v}, nil

	case OpGetLocal, OpSetLocal, OpReserveLocal, OpAlloc, OpGetField, OpSetField:
		v, err := dec.readU32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: op, U32: v}, nil

	case OpCall:
		modName, err := dec.readString()
		if err != nil {
			return Instruction{}, err
		}
		fnName, err := dec.readString()
		if err != nil {
			return Instruction{}, err
		}
		argc, err := dec.readU32()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: op, ModName: modName, Name: fnName, Argc: argc}, nil

	case OpFunc, OpModule, OpLoadModule:
		name, err := dec.readString()
		if err != nil {
			return Instruction{}, err
		}
		body, err := decodeFramed(dec)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: op, Name: name, Body: body}, nil

	case OpGetFunction:
		name, err := dec.readString()
		if err != nil {
			return Instruction{}, err
		}
		instr := Instruction{Op: op, Name: name}
		tag, savePos, err := dec.peekOp()
		if err == nil && tag == OpAlias {
			alias, err := dec.readString()
			if err != nil {
				return Instruction{}, err
			}
			instr.Alias = alias
			instr.HasAlias = true
		} else {
			dec.restore(savePos)
		}
		return instr, nil

	case OpLoop:
		body, err := decodeFramed(dec)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: op, Body: body}, nil

	case OpThen:
		thenBody, err := decodeFramed(dec)
		if err != nil {
			return Instruction{}, err
		}
		instr := Instruction{Op: op, Body: thenBody}
		tag, savePos, err := dec.peekOp()
		if err == nil && tag == OpElse {
			elseBody, err := decodeFramed(dec)
			if err != nil {
				return Instruction{}, err
			}
			instr.Else = elseBody
			instr.HasElse = true
		} else {
			dec.restore(savePos)
		}
		return instr, nil

	case OpElse:
		return Instruction{}, fmt.Errorf("%w: else at top level of decode", ErrMisplacedTag)
	case OpAlias:
		return Instruction{}, fmt.Errorf("%w: alias at top level of decode", ErrMisplacedTag)

	default:
		return Instruction{}, fmt.Errorf("%w: 0x%02X", ErrUnknownOpcode, opByte)
	}
}
