package vm

import (
	"fmt"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Machine: the flatvm accumulator machine
// ---------------------------------------------------------------------------

// BuiltinFunc is host code invoked by Call when the accumulator holds a
// BuiltinCode index. It may read and replace X and inspect the arena.
type BuiltinFunc func(m *Machine) error

// Machine holds all execution state. It is not safe for concurrent use.
type Machine struct {
	X  Value  // accumulator
	PC uint32 // byte offset of the next instruction
	FP Obj    // current frame or object
	GP Obj    // root object, fixed at construction

	mem      *Arena
	codeLen  uint32
	limit    uint64
	builtins map[uint32]BuiltinFunc
	log      commonlog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithArenaReserve sets the initial backing capacity of the arena.
func WithArenaReserve(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.mem = NewArena(n)
		}
	}
}

// WithArenaLimit caps the arena length in bytes. Growth past the cap faults
// FrameFull. Zero keeps the default; values past the u32 range are clamped.
func WithArenaLimit(n uint64) Option {
	return func(m *Machine) {
		if n > 0 {
			m.limit = min(n, maxArena)
		}
	}
}

// WithBuiltin registers fn under index. Index 0 is reserved.
func WithBuiltin(index uint32, fn BuiltinFunc) Option {
	return func(m *Machine) {
		m.RegisterBuiltin(index, fn)
	}
}

// WithLogger replaces the machine's logger.
func WithLogger(log commonlog.Logger) Option {
	return func(m *Machine) {
		m.log = log
	}
}

// NewMachine loads code at arena offset 0 and appends an empty root object
// immediately after it.
func NewMachine(code []uint32, opts ...Option) *Machine {
	m := &Machine{
		X:        I32(0),
		limit:    defaultArenaLimit,
		builtins: make(map[uint32]BuiltinFunc),
		log:      commonlog.GetLogger("flatvm.vm"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.mem == nil {
		m.mem = NewArena(defaultArenaReserve)
	}

	for _, w := range code {
		m.mem.AppendWord(w)
	}
	m.codeLen = m.mem.Len()

	root := Obj(m.mem.Grow(HeaderSize))
	m.FP = root
	m.GP = root
	return m
}

// RegisterBuiltin installs fn as builtin index. Index 0 is reserved and
// panics.
func (m *Machine) RegisterBuiltin(index uint32, fn BuiltinFunc) {
	if index == 0 {
		panic("builtin index 0 is reserved")
	}
	m.builtins[index] = fn
}

// Arena exposes the machine's arena for inspection.
func (m *Machine) Arena() *Arena {
	return m.mem
}

// CodeLen returns the size of the code region in bytes.
func (m *Machine) CodeLen() uint32 {
	return m.codeLen
}

// Code returns a copy of the loaded program words.
func (m *Machine) Code() []uint32 {
	words := make([]uint32, m.codeLen/4)
	for i := range words {
		words[i] = m.mem.Load32(uint32(i) * 4)
	}
	return words
}

// Depth counts the objects on the prev chain from FP down to the root.
func (m *Machine) Depth() int {
	n := 1
	for p := m.FP; ; n++ {
		prev := m.Prev(p)
		if prev == 0 {
			return n
		}
		invariant(prev < p, "prev link of #%s points to #%s", hexWord(uint32(p)), hexWord(uint32(prev)))
		p = prev
	}
}

func (m *Machine) String() string {
	return fmt.Sprintf("pc=#%s fp=#%s x=%s arena=%d", hexWord(m.PC), hexWord(uint32(m.FP)), m.X, m.mem.Len())
}
