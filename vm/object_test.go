package vm

import (
	"bytes"
	"testing"
)

func expectInvariant(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected invariant violation, got none")
		}
		if _, ok := r.(*InvariantViolation); !ok {
			t.Fatalf("panic value = %#v, want *InvariantViolation", r)
		}
	}()
	fn()
}

func TestArenaLoadStore(t *testing.T) {
	a := NewArena(0)
	if at := a.Grow(8); at != 0 {
		t.Fatalf("Grow returned %d, want 0", at)
	}
	a.Store32(4, 0x1122_3344)
	if !bytes.Equal(a.Bytes()[4:8], []byte{0x44, 0x33, 0x22, 0x11}) {
		t.Errorf("bytes = % x, want little-endian 44 33 22 11", a.Bytes()[4:8])
	}
	if got := a.Load32(4); got != 0x1122_3344 {
		t.Errorf("Load32 = %08X, want 11223344", got)
	}
	if at := a.AppendWord(7); at != 8 || a.Len() != 12 {
		t.Errorf("AppendWord at %d len %d, want 8 and 12", at, a.Len())
	}
}

func TestArenaTruncateClears(t *testing.T) {
	a := NewArena(16)
	a.Grow(8)
	a.Store32(4, 0xDEAD_BEEF)
	a.Truncate(4)
	a.Grow(4)
	if got := a.Load32(4); got != 0 {
		t.Errorf("reclaimed word = %08X, want 0", got)
	}
}

func TestArenaOutOfRange(t *testing.T) {
	a := NewArena(0)
	a.Grow(4)
	expectInvariant(t, func() { a.Load32(1) })
	expectInvariant(t, func() { a.Store32(4, 1) })
	expectInvariant(t, func() { a.Truncate(8) })
}

func TestRootObjectLayout(t *testing.T) {
	code := []uint32{MustEncode(Def(0)), MustEncode(Def(0))}
	m := NewMachine(code)

	if m.GP != 8 || m.FP != 8 {
		t.Fatalf("GP, FP = %d, %d, want 8, 8", m.GP, m.FP)
	}
	if m.Arena().Len() != 8+HeaderSize {
		t.Errorf("arena length = %d, want %d", m.Arena().Len(), 8+HeaderSize)
	}
	if h := m.Header(m.GP); h != (Header{}) {
		t.Errorf("root header = %+v, want zero", h)
	}
	if !m.IsTop(m.GP) {
		t.Error("root should be the arena top")
	}
	if got := m.Code(); len(got) != 2 || got[1] != code[1] {
		t.Errorf("Code() = %v, want %v", got, code)
	}
}

func TestHeaderFieldOffsets(t *testing.T) {
	m := NewMachine(nil)
	m.Arena().Grow(12)
	p := m.GP

	m.SetCap(p, 12)
	m.SetSize(p, 8)
	m.SetBase(p, 0x10)
	m.SetPrev(p, 0x20)
	m.SetRet(p, 0x30)

	want := []uint32{12, 8, 0x10, 0x20, 0x30}
	for i, w := range want {
		if got := m.Arena().Load32(uint32(p) + uint32(i)*4); got != w {
			t.Errorf("field +%d = %d, want %d", i*4, got, w)
		}
	}
	if m.BodyOffset(p, 4) != uint32(p)+HeaderSize+4 {
		t.Errorf("BodyOffset(4) = %d", m.BodyOffset(p, 4))
	}
}

func TestSetCapPastArenaPanics(t *testing.T) {
	m := NewMachine(nil)
	expectInvariant(t, func() { m.SetCap(m.GP, 4) })
}

func TestSetSizePastCapPanics(t *testing.T) {
	m := NewMachine(nil)
	expectInvariant(t, func() { m.SetSize(m.GP, 4) })
}

func TestEnsureSpaceGrowsTopOnly(t *testing.T) {
	m := NewMachine(nil)
	if f := m.ensureSpace(m.GP, 8); f != nil {
		t.Fatalf("ensureSpace on top: %v", f)
	}
	if m.Cap(m.GP) != 8 || m.Arena().Len() != HeaderSize+8 {
		t.Errorf("cap %d len %d, want 8 and %d", m.Cap(m.GP), m.Arena().Len(), HeaderSize+8)
	}

	// Something above the root makes it non-top.
	m.Arena().Grow(4)
	if f := m.ensureSpace(m.GP, 16); f == nil || f.Kind != FaultFrameFull {
		t.Errorf("ensureSpace on non-top = %v, want FrameFull", f)
	}
	if m.Cap(m.GP) != 8 {
		t.Errorf("cap changed to %d after fault", m.Cap(m.GP))
	}
}

func TestUnknownItemTagPanics(t *testing.T) {
	m := NewMachine(nil)
	m.ensureSpace(m.GP, 8)
	m.appendScalar(m.GP, 1, I32(5))
	m.Arena().Store32(m.BodyOffset(m.GP, 0), 0xE000_0001) // tag 7
	expectInvariant(t, func() { m.findInFrame(m.GP, 2) })
}

func TestCorruptSizePanics(t *testing.T) {
	m := NewMachine(nil)
	m.ensureSpace(m.GP, 8)
	m.appendScalar(m.GP, 1, I32(5))
	m.Arena().Store32(uint32(m.GP)+offSize, 4)
	expectInvariant(t, func() { m.findInFrame(m.GP, 2) })
}

func TestPrevCyclePanics(t *testing.T) {
	m := NewMachine([]uint32{MustEncode(Val(9))})
	m.Arena().Grow(HeaderSize)
	f := Obj(uint32(m.GP) + HeaderSize)
	m.SetPrev(f, f)
	m.FP = f
	expectInvariant(t, func() { m.Step() })
	expectInvariant(t, func() { m.Frames() })
}
