package vm

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	imms := []uint32{0, 1, 2, 0x1234, 0xFFFF, 0x0FFF_FFFF, 0x1FFF_FFFF}
	ops := []Opcode{OpDef, OpSet, OpPush, OpInherent, OpJump, OpVal, OpXlo}

	for _, op := range ops {
		for _, n := range imms {
			in := Insn{Op: op, N: n}
			w, err := EncodeInsn(in)
			if err != nil {
				t.Fatalf("EncodeInsn(%v): %v", in, err)
			}
			if got := DecodeInsn(w); got != in {
				t.Errorf("DecodeInsn(EncodeInsn(%v)) = %v", in, got)
			}
		}
	}

	for n := uint32(0); n < 8; n++ {
		in := Xhi(n)
		w, err := EncodeInsn(in)
		if err != nil {
			t.Fatalf("EncodeInsn(%v): %v", in, err)
		}
		if got := DecodeInsn(w); got != in {
			t.Errorf("DecodeInsn(EncodeInsn(%v)) = %v", in, got)
		}
	}
}

func TestEncodeRejectsOutOfRange(t *testing.T) {
	tests := []Insn{
		Def(1 << 29),
		Val(0xFFFF_FFFF),
		Xlo(0x2000_0000),
		Xhi(8),
		Xhi(0x1FFF_FFFF),
		{Op: Opcode(8), N: 0},
	}
	for _, in := range tests {
		if _, err := EncodeInsn(in); err == nil {
			t.Errorf("EncodeInsn(%v) succeeded, want error", in)
		}
	}
	if _, err := EncodeInsn(Xhi(8)); !errors.Is(err, ErrImmediateOutOfRange) {
		t.Errorf("EncodeInsn(Xhi(8)) error = %v, want ErrImmediateOutOfRange", err)
	}
}

func TestKnownEncodings(t *testing.T) {
	tests := []struct {
		insn Insn
		word uint32
	}{
		{Def(0), 0x0000_0000},
		{Set(3), 0x2000_0003},
		{Push(1), 0x4000_0001},
		{Call(), 0x6000_0000},
		{Pop(), 0x6000_0001},
		{Alloc(), 0x6000_0002},
		{Jump(8), 0x8000_0008},
		{Val(0), 0xA000_0000},
		{Xlo(0x1FFF_FFFF), 0xDFFF_FFFF},
		{Xhi(7), 0xE000_0007},
	}
	for _, tt := range tests {
		if got := MustEncode(tt.insn); got != tt.word {
			t.Errorf("MustEncode(%v) = %08X, want %08X", tt.insn, got, tt.word)
		}
	}
}

func TestDecodeUnknownInherent(t *testing.T) {
	i := DecodeInsn(0x6000_0005)
	if i.Op != OpInherent || i.Inherent() != Inherent(5) {
		t.Fatalf("DecodeInsn = %v, want inherent 5", i)
	}
	if got := i.String(); got != "INHERENT_5" {
		t.Errorf("String() = %q, want INHERENT_5", got)
	}
}

func TestItemHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		ty   Type
		id   ItemID
		word uint32
	}{
		{TypeBuiltinCode, 1, 0x0000_0001},
		{TypeCode, 2, 0x2000_0002},
		{TypeI32, 0x1FFF_FFFF, 0x5FFF_FFFF},
		{TypeObject, 5, 0x6000_0005},
	}
	for _, tt := range tests {
		w := EncodeItemHeader(tt.ty, tt.id)
		if w != tt.word {
			t.Errorf("EncodeItemHeader(%v, %d) = %08X, want %08X", tt.ty, tt.id, w, tt.word)
		}
		ty, id := DecodeItemHeader(w)
		if ty != tt.ty || id != tt.id {
			t.Errorf("DecodeItemHeader(%08X) = (%v, %d), want (%v, %d)", w, ty, id, tt.ty, tt.id)
		}
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		insn Insn
		want string
	}{
		{Push(0), "PUSH 0"},
		{Def(12), "DEF 12"},
		{Pop(), "POP"},
		{Call(), "CALL"},
		{Alloc(), "ALLOC"},
		{Xlo(0x1FFF_FFFF), "XLO #1FFF_FFFF"},
		{Jump(16), "JUMP #0000_0010"},
	}
	for _, tt := range tests {
		if got := tt.insn.String(); got != tt.want {
			t.Errorf("%#v.String() = %q, want %q", tt.insn, got, tt.want)
		}
	}
}

func TestBuilderEmitLiteral(t *testing.T) {
	code, err := NewBuilder().EmitLiteral(0xFFFF_FFFF).EmitLiteral(5).Words()
	if err != nil {
		t.Fatalf("Words: %v", err)
	}
	want := []uint32{MustEncode(Xlo(0x1FFF_FFFF)), MustEncode(Xhi(7)), MustEncode(Xlo(5))}
	if len(code) != len(want) {
		t.Fatalf("len(code) = %d, want %d", len(code), len(want))
	}
	for i := range want {
		if code[i] != want[i] {
			t.Errorf("code[%d] = %08X, want %08X", i, code[i], want[i])
		}
	}
}

func TestBuilderKeepsFirstError(t *testing.T) {
	b := NewBuilder().Emit(Xlo(1), Xhi(9), Def(1<<29))
	if b.PC() != 4 {
		t.Errorf("PC() = %d, want 4", b.PC())
	}
	_, err := b.Words()
	if err == nil {
		t.Fatal("Words succeeded, want error")
	}
	if !strings.Contains(err.Error(), "word 1") {
		t.Errorf("error = %q, want it to name word 1", err)
	}
}

func TestDisassemble(t *testing.T) {
	code, _ := NewBuilder().Emit(Push(0), Xlo(4), Def(3), Pop(), Def(0)).Words()
	out := Disassemble(code, map[uint32]string{3: "counter"})

	for _, want := range []string{"0000  40000000  PUSH 0", "DEF 3  ; counter", "000C  60000001  POP", "DEF 0\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("Disassemble output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "\n") != 5 {
		t.Errorf("Disassemble produced %d lines, want 5", strings.Count(out, "\n"))
	}
}
