package vm

import "fmt"

/*
	Values are a tagged union with exactly six variants. Every opcode that
	touches a Value enforces its own type rules at dispatch time (see
	exec.go) rather than the Value type itself trying to be statically
	typed - there's no value in fighting Go's type system to recreate a
	dynamic one.

	Object is the one variant with reference semantics: copying a Value
	that holds an Object copies the handle, not the cell. Field writes
	through any handle are visible through all of them, including Dup'd
	copies of the same handle. There is no reference counting; the host
	GC reclaims an Object once nothing holds its handle anymore.
*/

// Kind identifies which variant of Value is populated.
type Kind byte

const (
	KindNull Kind = iota
	KindBoolean
	KindInteger
	KindFloat
	KindString
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	default:
		return "?unknown-kind?"
	}
}

// Value is the VM's uniform dynamically typed value. Zero value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int32
	f    float32
	s    string
	obj  *Object
}

func Null() Value                 { return Value{kind: KindNull} }
func Bool(b bool) Value           { return Value{kind: KindBoolean, b: b} }
func Int(i int32) Value           { return Value{kind: KindInteger, i: i} }
func Float(f float32) Value       { return Value{kind: KindFloat, f: f} }
func Str(s string) Value          { return Value{kind: KindString, s: s} }
func ObjectValue(o *Object) Value { return Value{kind: KindObject, obj: o} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool)       { return v.b, v.kind == KindBoolean }
func (v Value) AsInt() (int32, bool)       { return v.i, v.kind == KindInteger }
func (v Value) AsFloat() (float32, bool)   { return v.f, v.kind == KindFloat }
func (v Value) AsString() (string, bool)   { return v.s, v.kind == KindString }
func (v Value) AsObject() (*Object, bool)  { return v.obj, v.kind == KindObject }

// Clone returns a shallow copy. For Object values this copies the handle,
// not the cell - the defining property of shared ownership.
func (v Value) Clone() Value { return v }

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBoolean:
		return fmt.Sprintf("%t", v.b)
	case KindInteger:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindObject:
		return v.obj.String()
	default:
		return "?unknown-value?"
	}
}

// ObjectKind distinguishes the two flavors of Object cell.
type ObjectKind byte

const (
	ObjectValues ObjectKind = iota
	ObjectNative
)

// Object is a shared, interior-mutable heap cell. Multiple Values may hold
// the same *Object; field.set writes through one handle are visible
// through all others, and through Dup'd copies of the same handle.
type Object struct {
	kind   ObjectKind
	fields []Value // ObjectValues: dense, length fixed at Allocate time
	native any     // ObjectNative: opaque host payload for dynamic modules
}

// NewValuesObject allocates an Object with n Null fields.
func NewValuesObject(n uint32) *Object {
	fields := make([]Value, n)
	for i := range fields {
		fields[i] = Null()
	}
	return &Object{kind: ObjectValues, fields: fields}
}

// NewNativeObject wraps an opaque host payload, used by dynamic modules
// that need to stash state a guest program merely carries around by handle.
func NewNativeObject(payload any) *Object {
	return &Object{kind: ObjectNative, native: payload}
}

func (o *Object) Kind() ObjectKind { return o.kind }

func (o *Object) Len() int { return len(o.fields) }

func (o *Object) GetField(i uint32) (Value, error) {
	if o.kind != ObjectValues {
		return Value{}, fmt.Errorf("%w: object is not a Values object", ErrFieldIndex)
	}
	if int(i) >= len(o.fields) {
		return Value{}, fmt.Errorf("%w: field index %d out of range (len %d)", ErrFieldIndex, i, len(o.fields))
	}
	return o.fields[i], nil
}

func (o *Object) SetField(i uint32, val Value) error {
	if o.kind != ObjectValues {
		return fmt.Errorf("%w: object is not a Values object", ErrFieldIndex)
	}
	if int(i) >= len(o.fields) {
		return fmt.Errorf("%w: field index %d out of range (len %d)", ErrFieldIndex, i, len(o.fields))
	}
	o.fields[i] = val
	return nil
}

func (o *Object) Native() any { return o.native }

func (o *Object) String() string {
	switch o.kind {
	case ObjectValues:
		return fmt.Sprintf("object(%d fields)", len(o.fields))
	case ObjectNative:
		return "object(native)"
	default:
		return "object(?)"
	}
}
