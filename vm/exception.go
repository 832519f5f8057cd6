package vm

import "fmt"

// ---------------------------------------------------------------------------
// Faults: recoverable per-step errors
// ---------------------------------------------------------------------------

// FaultKind classifies a Fault.
type FaultKind uint8

const (
	FaultWrongType FaultKind = iota + 1
	FaultUnalignedCap
	FaultNotTopFrame
	FaultItemNotFound
	FaultItemExistsInFrame
	FaultFrameFull
	FaultStackUnderflow
	FaultUnsupported
	FaultInvalidInstruction
	FaultInvalidJump
	FaultPCOutOfRange
	FaultUnknownBuiltin
	FaultStepLimit
)

var faultNames = map[FaultKind]string{
	FaultWrongType:          "WrongType",
	FaultUnalignedCap:       "UnalignedCap",
	FaultNotTopFrame:        "NotTopFrame",
	FaultItemNotFound:       "ItemNotFound",
	FaultItemExistsInFrame:  "ItemExistsInFrame",
	FaultFrameFull:          "FrameFull",
	FaultStackUnderflow:     "StackUnderflow",
	FaultUnsupported:        "Unsupported",
	FaultInvalidInstruction: "InvalidInstruction",
	FaultInvalidJump:        "InvalidJump",
	FaultPCOutOfRange:       "PCOutOfRange",
	FaultUnknownBuiltin:     "UnknownBuiltin",
	FaultStepLimit:          "StepLimit",
}

// String implements the Stringer interface.
func (k FaultKind) String() string {
	if name, ok := faultNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Fault(%d)", uint8(k))
}

// Fault is returned by Step when an instruction cannot execute. The machine
// state is left as it was before the step.
type Fault struct {
	Kind FaultKind
	PC   uint32
	Insn Insn
	Ptr  uint32 // existing item for ItemExistsInFrame
}

// Sentinels for errors.Is. Only Kind is compared.
var (
	ErrWrongType          = &Fault{Kind: FaultWrongType}
	ErrUnalignedCap       = &Fault{Kind: FaultUnalignedCap}
	ErrNotTopFrame        = &Fault{Kind: FaultNotTopFrame}
	ErrItemNotFound       = &Fault{Kind: FaultItemNotFound}
	ErrItemExistsInFrame  = &Fault{Kind: FaultItemExistsInFrame}
	ErrFrameFull          = &Fault{Kind: FaultFrameFull}
	ErrStackUnderflow     = &Fault{Kind: FaultStackUnderflow}
	ErrUnsupported        = &Fault{Kind: FaultUnsupported}
	ErrInvalidInstruction = &Fault{Kind: FaultInvalidInstruction}
	ErrInvalidJump        = &Fault{Kind: FaultInvalidJump}
	ErrPCOutOfRange       = &Fault{Kind: FaultPCOutOfRange}
	ErrUnknownBuiltin     = &Fault{Kind: FaultUnknownBuiltin}
	ErrStepLimit          = &Fault{Kind: FaultStepLimit}
)

func (f *Fault) Error() string {
	if f.Kind == FaultItemExistsInFrame {
		return fmt.Sprintf("%s(#%s) at #%s: %s", f.Kind, hexWord(f.Ptr), hexWord(f.PC), f.Insn)
	}
	return fmt.Sprintf("%s at #%s: %s", f.Kind, hexWord(f.PC), f.Insn)
}

// Is matches any Fault of the same kind.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	return ok && t.Kind == f.Kind
}

// ---------------------------------------------------------------------------
// Invariant violations: fatal layout corruption
// ---------------------------------------------------------------------------

// InvariantViolation is the panic value raised when the arena layout is
// inconsistent. It is never returned as an error.
type InvariantViolation struct {
	Msg string
}

func (e *InvariantViolation) Error() string {
	return "vm invariant violated: " + e.Msg
}

func invariant(ok bool, format string, args ...any) {
	if !ok {
		panic(&InvariantViolation{Msg: fmt.Sprintf(format, args...)})
	}
}
