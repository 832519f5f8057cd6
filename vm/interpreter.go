package vm

import (
	"fmt"

	"github.com/tliron/commonlog"
)

// maxArena is the largest arena addressable with u32 offsets.
const maxArena = 1<<32 - 1

// defaultArenaLimit bounds arena growth unless WithArenaLimit says otherwise.
const defaultArenaLimit = 1 << 28

// StepStatus reports the outcome of one Step.
type StepStatus uint8

const (
	StepRunning StepStatus = iota
	StepHalted
	StepFaulted
)

// String implements the Stringer interface.
func (s StepStatus) String() string {
	switch s {
	case StepRunning:
		return "running"
	case StepHalted:
		return "halted"
	case StepFaulted:
		return "faulted"
	}
	return fmt.Sprintf("StepStatus(%d)", uint8(s))
}

// ---------------------------------------------------------------------------
// Step: fetch, decode, execute
// ---------------------------------------------------------------------------

// Step executes the instruction at PC. On StepHalted the result is in X and
// PC still addresses the halting Def(0). On a fault the machine is left as
// it was before the step and the returned error is a *Fault.
func (m *Machine) Step() (StepStatus, error) {
	if m.PC%4 != 0 || uint64(m.PC)+4 > uint64(m.codeLen) {
		return StepFaulted, &Fault{Kind: FaultPCOutOfRange, PC: m.PC}
	}
	insn := DecodeInsn(m.mem.Load32(m.PC))

	if m.log.AllowLevel(commonlog.Debug) {
		m.log.Debugf("#%s %-12s x=%s fp=#%s", hexWord(m.PC), insn, m.X, hexWord(uint32(m.FP)))
	}

	status, err := m.exec(insn)
	if err != nil {
		if f, ok := err.(*Fault); ok {
			f.PC = m.PC
			f.Insn = insn
		}
		return StepFaulted, err
	}
	return status, nil
}

func (m *Machine) exec(insn Insn) (StepStatus, error) {
	var f *Fault
	switch insn.Op {
	case OpVal:
		f = m.opVal(ItemID(insn.N))
	case OpXlo:
		m.X = I32(insn.N)
		m.PC += 4
	case OpXhi:
		f = m.opXhi(insn.N)
	case OpDef:
		if insn.N == 0 {
			return StepHalted, nil
		}
		f = m.opDef(ItemID(insn.N))
	case OpSet:
		f = m.opSet(ItemID(insn.N))
	case OpPush:
		f = m.opPush(ItemID(insn.N))
	case OpJump:
		f = m.jumpTo(insn.N)
	case OpInherent:
		switch insn.Inherent() {
		case InherentCall:
			return StepRunning, m.opCall()
		case InherentPop:
			f = m.opPop()
		case InherentAlloc:
			f = m.opAlloc()
		default:
			f = &Fault{Kind: FaultInvalidInstruction}
		}
	default:
		f = &Fault{Kind: FaultInvalidInstruction}
	}
	if f != nil {
		return StepFaulted, f
	}
	return StepRunning, nil
}

// ---------------------------------------------------------------------------
// Accumulator instructions
// ---------------------------------------------------------------------------

func (m *Machine) opVal(id ItemID) *Fault {
	if id == 0 {
		m.X = ObjectRef(uint32(m.GP))
		m.PC += 4
		return nil
	}
	at, f := m.find(id)
	if f != nil {
		return f
	}
	m.X = m.loadItem(at)
	m.PC += 4
	return nil
}

func (m *Machine) opXhi(n uint32) *Fault {
	if n >= xhiLimit {
		return &Fault{Kind: FaultInvalidInstruction}
	}
	if !m.X.IsI32() {
		return &Fault{Kind: FaultWrongType}
	}
	m.X = I32(m.X.Data&immMask | n<<immBits)
	m.PC += 4
	return nil
}

// ---------------------------------------------------------------------------
// Item instructions
// ---------------------------------------------------------------------------

func (m *Machine) opDef(id ItemID) *Fault {
	if m.X.Type == TypeObject || !m.X.Type.Valid() {
		return &Fault{Kind: FaultWrongType}
	}
	if at, exists := m.findInFrame(m.FP, id); exists {
		return &Fault{Kind: FaultItemExistsInFrame, Ptr: at}
	}
	if f := m.ensureSpace(m.FP, scalarItemSize); f != nil {
		return f
	}
	m.appendScalar(m.FP, id, m.X)
	m.PC += 4
	return nil
}

func (m *Machine) opSet(id ItemID) *Fault {
	if id == 0 {
		return &Fault{Kind: FaultUnsupported}
	}
	if m.X.Type == TypeObject {
		return &Fault{Kind: FaultWrongType}
	}
	at, f := m.find(id)
	if f != nil {
		return f
	}
	if ty, _ := DecodeItemHeader(m.mem.Load32(at)); ty != m.X.Type {
		return &Fault{Kind: FaultWrongType}
	}
	m.mem.Store32(at+itemHeaderSize, m.X.Data)
	m.PC += 4
	return nil
}

// ---------------------------------------------------------------------------
// Frame instructions
// ---------------------------------------------------------------------------

// requestedCap validates the accumulator as a capacity for Push and Alloc.
func (m *Machine) requestedCap(extra uint32) (uint32, *Fault) {
	if !m.X.IsI32() {
		return 0, &Fault{Kind: FaultWrongType}
	}
	if !m.IsTop(m.FP) {
		return 0, &Fault{Kind: FaultNotTopFrame}
	}
	n := m.X.Data
	if n&3 != 0 {
		return 0, &Fault{Kind: FaultUnalignedCap}
	}
	if !m.fits(uint64(extra) + uint64(n)) {
		return 0, &Fault{Kind: FaultFrameFull}
	}
	return n, nil
}

func (m *Machine) opPush(id ItemID) *Fault {
	if m.X.Type == TypeObject && id == 0 {
		return &Fault{Kind: FaultUnsupported}
	}

	if id == 0 {
		n, f := m.requestedCap(HeaderSize)
		if f != nil {
			return f
		}
		p := Obj(m.mem.Grow(HeaderSize + n))
		m.initHeader(p, Header{Cap: n, Base: m.FP, Prev: m.FP})
		m.FP = p
		m.PC += 4
		return nil
	}

	n, f := m.requestedCap(itemHeaderSize + HeaderSize)
	if f != nil {
		return f
	}
	if at, exists := m.findInFrame(m.FP, id); exists {
		return &Fault{Kind: FaultItemExistsInFrame, Ptr: at}
	}
	span := itemHeaderSize + HeaderSize + n
	if f := m.ensureSpace(m.FP, span); f != nil {
		return f
	}

	size := m.Size(m.FP)
	at := m.BodyOffset(m.FP, size)
	m.mem.Store32(at, EncodeItemHeader(TypeObject, id))
	p := Obj(at + itemHeaderSize)
	m.initHeader(p, Header{Cap: n, Base: m.FP, Prev: m.FP})
	m.mem.Zero(m.BodyOffset(p, 0), n)
	m.SetSize(m.FP, size+span)

	m.FP = p
	m.PC += 4
	return nil
}

func (m *Machine) opPop() *Fault {
	old := m.FP
	prev := m.Prev(old)
	if prev == 0 {
		return &Fault{Kind: FaultStackUnderflow}
	}
	invariant(prev < old, "prev link of #%s points to #%s", hexWord(uint32(old)), hexWord(uint32(prev)))

	next := m.PC + 4
	if ret := m.Ret(old); ret != 0 {
		if !m.validTarget(ret) {
			return &Fault{Kind: FaultInvalidJump}
		}
		next = ret
	}

	// Growth of a nested object is folded into its parent as it happens.
	if uint32(old) >= m.BodyOffset(prev, 0) && uint32(old) < m.bodyEnd(prev) {
		invariant(m.bodyEnd(old) <= m.bodyEnd(prev),
			"nested object #%s ends at #%s past its parent's body end #%s",
			hexWord(uint32(old)), hexWord(m.bodyEnd(old)), hexWord(m.bodyEnd(prev)))
	}

	m.mem.Truncate(m.bodyEnd(prev))
	m.FP = prev
	m.PC = next
	return nil
}

func (m *Machine) opAlloc() *Fault {
	n, f := m.requestedCap(0)
	if f != nil {
		return f
	}
	m.growTop(m.FP, n)
	m.PC += 4
	return nil
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// validTarget reports whether pc is an aligned code address other than the
// current one.
func (m *Machine) validTarget(pc uint32) bool {
	return pc%4 == 0 && pc < m.codeLen && pc != m.PC
}

func (m *Machine) jumpTo(target uint32) *Fault {
	if !m.validTarget(target) {
		return &Fault{Kind: FaultInvalidJump}
	}
	m.PC = target
	return nil
}

func (m *Machine) opCall() error {
	switch m.X.Type {
	case TypeCode:
		target := m.X.Data
		if !m.IsTop(m.FP) {
			return &Fault{Kind: FaultNotTopFrame}
		}
		if !m.validTarget(target) {
			return &Fault{Kind: FaultInvalidJump}
		}
		if !m.fits(HeaderSize) {
			return &Fault{Kind: FaultFrameFull}
		}
		p := Obj(m.mem.Grow(HeaderSize))
		m.initHeader(p, Header{Base: m.FP, Prev: m.FP, Ret: m.PC + 4})
		m.FP = p
		m.PC = target
		return nil

	case TypeBuiltinCode:
		index := m.X.Data
		fn, ok := m.builtins[index]
		if !ok {
			return &Fault{Kind: FaultUnknownBuiltin}
		}
		pc := m.PC
		if err := fn(m); err != nil {
			return fmt.Errorf("builtin %d at #%s: %w", index, hexWord(pc), err)
		}
		m.PC = pc + 4
		return nil
	}
	return &Fault{Kind: FaultWrongType}
}
