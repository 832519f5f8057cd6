package vm

import "fmt"

// ---------------------------------------------------------------------------
// Type: item and accumulator type tags
// ---------------------------------------------------------------------------

// Type is the 3-bit tag stored in item headers and carried by Value.
type Type uint8

const (
	TypeBuiltinCode Type = 0 // index into the builtin table (0 reserved)
	TypeCode        Type = 1 // code offset
	TypeI32         Type = 2 // 32-bit integer
	TypeObject      Type = 3 // object header offset
)

// Valid reports whether t is one of the defined tags.
func (t Type) Valid() bool {
	return t <= TypeObject
}

// String implements the Stringer interface.
func (t Type) String() string {
	switch t {
	case TypeBuiltinCode:
		return "BuiltinCode"
	case TypeCode:
		return "Code"
	case TypeI32:
		return "I32"
	case TypeObject:
		return "Object"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// ---------------------------------------------------------------------------
// Value: the accumulator
// ---------------------------------------------------------------------------

// Value is a tagged accumulator value. Data is the index, offset or integer
// depending on Type.
type Value struct {
	Type Type
	Data uint32
}

// I32 returns an integer value.
func I32(v uint32) Value { return Value{Type: TypeI32, Data: v} }

// Code returns a code-offset value.
func Code(offset uint32) Value { return Value{Type: TypeCode, Data: offset} }

// BuiltinCode returns a builtin-index value.
func BuiltinCode(index uint32) Value { return Value{Type: TypeBuiltinCode, Data: index} }

// ObjectRef returns an object-offset value.
func ObjectRef(offset uint32) Value { return Value{Type: TypeObject, Data: offset} }

// IsI32 reports whether v holds an integer.
func (v Value) IsI32() bool {
	return v.Type == TypeI32
}

// String renders the value the way the frame dump does.
func (v Value) String() string {
	return fmt.Sprintf("%s(#%s)", v.Type, hexWord(v.Data))
}

// hexWord formats a word as XXXX_XXXX.
func hexWord(x uint32) string {
	return fmt.Sprintf("%04X_%04X", x>>16, x&0xFFFF)
}
