package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode is the top 3 bits of an instruction word.
type Opcode uint8

const (
	OpDef      Opcode = 0 // define item in current frame; Def(0) halts
	OpSet      Opcode = 1 // overwrite a visible item
	OpPush     Opcode = 2 // push frame (0) or named nested object
	OpInherent Opcode = 3 // immediate selects an Inherent operation
	OpJump     Opcode = 4 // absolute jump
	OpVal      Opcode = 5 // load item (0 = root object)
	OpXlo      Opcode = 6 // low 29 bits of a literal
	OpXhi      Opcode = 7 // high 3 bits of a literal
)

// Inherent selects the operation of an OpInherent word.
type Inherent uint32

const (
	InherentCall  Inherent = 0
	InherentPop   Inherent = 1
	InherentAlloc Inherent = 2
)

const (
	immBits  = 29
	immMask  = 1<<immBits - 1
	xhiLimit = 1 << 3
)

// ErrImmediateOutOfRange is returned when an immediate does not fit its
// instruction's field.
var ErrImmediateOutOfRange = errors.New("immediate out of range")

var opcodeNames = [...]string{
	OpDef:      "DEF",
	OpSet:      "SET",
	OpPush:     "PUSH",
	OpInherent: "INHERENT",
	OpJump:     "JUMP",
	OpVal:      "VAL",
	OpXlo:      "XLO",
	OpXhi:      "XHI",
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("UNKNOWN_%d", uint8(op))
}

// String implements the Stringer interface.
func (h Inherent) String() string {
	switch h {
	case InherentCall:
		return "CALL"
	case InherentPop:
		return "POP"
	case InherentAlloc:
		return "ALLOC"
	}
	return fmt.Sprintf("INHERENT_%d", uint32(h))
}

// immLimit is one past the largest immediate op accepts.
func (op Opcode) immLimit() uint32 {
	if op == OpXhi {
		return xhiLimit
	}
	return 1 << immBits
}

// ---------------------------------------------------------------------------
// Insn: decoded instruction
// ---------------------------------------------------------------------------

// Insn is a decoded instruction word. For OpInherent, N holds the Inherent
// selector.
type Insn struct {
	Op Opcode
	N  uint32
}

// Def returns a Def instruction.
func Def(id uint32) Insn { return Insn{OpDef, id} }

// Set returns a Set instruction.
func Set(id uint32) Insn { return Insn{OpSet, id} }

// Push returns a Push instruction.
func Push(id uint32) Insn { return Insn{OpPush, id} }

// Jump returns a Jump instruction.
func Jump(target uint32) Insn { return Insn{OpJump, target} }

// Val returns a Val instruction.
func Val(id uint32) Insn { return Insn{OpVal, id} }

// Xlo returns an Xlo instruction.
func Xlo(n uint32) Insn { return Insn{OpXlo, n} }

// Xhi returns an Xhi instruction.
func Xhi(n uint32) Insn { return Insn{OpXhi, n} }

// Call returns the instruction that enters the code or builtin held in X.
func Call() Insn { return Insn{OpInherent, uint32(InherentCall)} }

// Pop returns the instruction that leaves the current frame or object.
func Pop() Insn { return Insn{OpInherent, uint32(InherentPop)} }

// Alloc returns the instruction that reserves X bytes in the top frame.
func Alloc() Insn { return Insn{OpInherent, uint32(InherentAlloc)} }

// Inherent returns the selector of an OpInherent instruction.
func (i Insn) Inherent() Inherent {
	return Inherent(i.N)
}

// String renders the instruction in disassembly form.
func (i Insn) String() string {
	switch i.Op {
	case OpInherent:
		return i.Inherent().String()
	case OpXlo, OpXhi, OpJump:
		return fmt.Sprintf("%s #%s", i.Op, hexWord(i.N))
	}
	return fmt.Sprintf("%s %d", i.Op, i.N)
}

// DecodeInsn splits an instruction word into opcode and immediate.
func DecodeInsn(word uint32) Insn {
	return Insn{Op: Opcode(word >> immBits), N: word & immMask}
}

// EncodeInsn packs an instruction into a word. Immediates that do not fit
// their field are rejected rather than truncated.
func EncodeInsn(i Insn) (uint32, error) {
	if i.Op > OpXhi {
		return 0, fmt.Errorf("encode %s: invalid opcode", i.Op)
	}
	if i.N >= i.Op.immLimit() {
		return 0, fmt.Errorf("encode %s: %d: %w", i.Op, i.N, ErrImmediateOutOfRange)
	}
	return uint32(i.Op)<<immBits | i.N, nil
}

// MustEncode is EncodeInsn for statically known instructions.
func MustEncode(i Insn) uint32 {
	w, err := EncodeInsn(i)
	if err != nil {
		panic(err)
	}
	return w
}

// ---------------------------------------------------------------------------
// Item headers
// ---------------------------------------------------------------------------

// ItemID names an item within one object. 0 is reserved.
type ItemID uint32

// DecodeItemHeader splits an item header word into type and id.
func DecodeItemHeader(word uint32) (Type, ItemID) {
	return Type(word >> immBits), ItemID(word & immMask)
}

// EncodeItemHeader packs a type and id into an item header word.
func EncodeItemHeader(t Type, id ItemID) uint32 {
	return uint32(t)<<immBits | uint32(id)&immMask
}

// ---------------------------------------------------------------------------
// Builder: helper for constructing programs
// ---------------------------------------------------------------------------

// Builder assembles a program. The first encoding error is kept and
// reported by Words.
type Builder struct {
	words []uint32
	err   error
}

// NewBuilder creates an empty program builder.
func NewBuilder() *Builder {
	return &Builder{words: make([]uint32, 0, 32)}
}

// Emit appends instructions.
func (b *Builder) Emit(insns ...Insn) *Builder {
	for _, i := range insns {
		w, err := EncodeInsn(i)
		if err != nil {
			if b.err == nil {
				b.err = fmt.Errorf("word %d: %w", len(b.words), err)
			}
			continue
		}
		b.words = append(b.words, w)
	}
	return b
}

// EmitLiteral appends the Xlo/Xhi pair that loads v into the accumulator.
func (b *Builder) EmitLiteral(v uint32) *Builder {
	b.Emit(Xlo(v & immMask))
	if hi := v >> immBits; hi != 0 {
		b.Emit(Xhi(hi))
	}
	return b
}

// PC returns the byte offset of the next emitted word.
func (b *Builder) PC() uint32 {
	return uint32(len(b.words)) * 4
}

// Words returns the assembled program.
func (b *Builder) Words() ([]uint32, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.words, nil
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Disassemble returns a listing of code. names, if non-nil, annotates item
// ids with debug names.
func Disassemble(code []uint32, names map[uint32]string) string {
	var sb strings.Builder
	for idx, w := range code {
		i := DecodeInsn(w)
		fmt.Fprintf(&sb, "%04X  %08X  %s", idx*4, w, i)
		switch i.Op {
		case OpDef, OpSet, OpPush, OpVal:
			if name, ok := names[i.N]; ok && i.N != 0 {
				fmt.Fprintf(&sb, "  ; %s", name)
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
