package vm

import "encoding/binary"

// defaultArenaReserve is the initial backing capacity of a fresh arena.
const defaultArenaReserve = 0x10_0000

// Arena is the growable byte buffer holding code, frames and objects.
// Offsets are u32; every access must fall inside [0, Len()).
type Arena struct {
	mem []byte
}

// NewArena creates an empty arena with the given backing capacity.
func NewArena(reserve int) *Arena {
	if reserve < 0 {
		reserve = 0
	}
	return &Arena{mem: make([]byte, 0, reserve)}
}

// Len returns the current arena length.
func (a *Arena) Len() uint32 {
	return uint32(len(a.mem))
}

// Bytes exposes the live arena contents. The slice is invalidated by Grow.
func (a *Arena) Bytes() []byte {
	return a.mem
}

// Load32 reads a little-endian word at addr.
func (a *Arena) Load32(addr uint32) uint32 {
	a.check(addr, 4)
	return binary.LittleEndian.Uint32(a.mem[addr:])
}

// Store32 writes a little-endian word at addr.
func (a *Arena) Store32(addr, val uint32) {
	a.check(addr, 4)
	binary.LittleEndian.PutUint32(a.mem[addr:], val)
}

// AppendWord appends one little-endian word and returns its offset.
func (a *Arena) AppendWord(val uint32) uint32 {
	at := a.Len()
	a.mem = binary.LittleEndian.AppendUint32(a.mem, val)
	return at
}

// Grow extends the arena by n zeroed bytes and returns the old length.
func (a *Arena) Grow(n uint32) uint32 {
	old := a.Len()
	a.mem = append(a.mem, make([]byte, n)...)
	return old
}

// Zero clears n bytes starting at addr.
func (a *Arena) Zero(addr, n uint32) {
	a.check(addr, n)
	clear(a.mem[addr : addr+n])
}

// Truncate shrinks the arena to n bytes. Growing through Truncate is not
// allowed.
func (a *Arena) Truncate(n uint32) {
	invariant(n <= a.Len(), "truncate to %d beyond arena length %d", n, a.Len())
	clear(a.mem[n:])
	a.mem = a.mem[:n]
}

func (a *Arena) check(addr, width uint32) {
	end := uint64(addr) + uint64(width)
	invariant(end <= uint64(len(a.mem)), "access #%s+%d outside arena of length %d",
		hexWord(addr), width, len(a.mem))
}
