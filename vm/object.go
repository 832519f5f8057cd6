package vm

// ---------------------------------------------------------------------------
// Object layout
// ---------------------------------------------------------------------------

// HeaderSize is the fixed size of an object header.
const HeaderSize = 20

// Header field offsets.
const (
	offCap  = 0
	offSize = 4
	offBase = 8
	offPrev = 12
	offRet  = 16
)

// itemHeaderSize is the size of an item header word.
const itemHeaderSize = 4

// scalarItemSize is the full size of a BuiltinCode, Code or I32 item.
const scalarItemSize = itemHeaderSize + 4

// Obj is the arena offset of an object header. 0 means no object.
type Obj uint32

// Header is a decoded copy of an object header.
type Header struct {
	Cap  uint32
	Size uint32
	Base Obj
	Prev Obj
	Ret  uint32
}

// ---------------------------------------------------------------------------
// Header accessors
// ---------------------------------------------------------------------------

func (m *Machine) Cap(p Obj) uint32  { return m.mem.Load32(uint32(p) + offCap) }
func (m *Machine) Size(p Obj) uint32 { return m.mem.Load32(uint32(p) + offSize) }
func (m *Machine) Base(p Obj) Obj    { return Obj(m.mem.Load32(uint32(p) + offBase)) }
func (m *Machine) Prev(p Obj) Obj    { return Obj(m.mem.Load32(uint32(p) + offPrev)) }
func (m *Machine) Ret(p Obj) uint32  { return m.mem.Load32(uint32(p) + offRet) }

// SetCap records a new capacity. The body it describes must already exist in
// the arena.
func (m *Machine) SetCap(p Obj, n uint32) {
	end := uint64(p) + HeaderSize + uint64(n)
	invariant(end <= uint64(m.mem.Len()), "object #%s cap %d ends past arena length %d",
		hexWord(uint32(p)), n, m.mem.Len())
	m.mem.Store32(uint32(p)+offCap, n)
}

// SetSize records a new occupied body size; it may not exceed cap.
func (m *Machine) SetSize(p Obj, size uint32) {
	invariant(size <= m.Cap(p), "object #%s size %d exceeds cap %d",
		hexWord(uint32(p)), size, m.Cap(p))
	m.mem.Store32(uint32(p)+offSize, size)
}

func (m *Machine) SetBase(p, base Obj)      { m.mem.Store32(uint32(p)+offBase, uint32(base)) }
func (m *Machine) SetPrev(p, prev Obj)      { m.mem.Store32(uint32(p)+offPrev, uint32(prev)) }
func (m *Machine) SetRet(p Obj, ret uint32) { m.mem.Store32(uint32(p)+offRet, ret) }

// Header reads all header fields of p.
func (m *Machine) Header(p Obj) Header {
	return Header{
		Cap:  m.Cap(p),
		Size: m.Size(p),
		Base: m.Base(p),
		Prev: m.Prev(p),
		Ret:  m.Ret(p),
	}
}

// BodyOffset returns the arena offset n bytes into p's body.
func (m *Machine) BodyOffset(p Obj, n uint32) uint32 {
	return uint32(p) + HeaderSize + n
}

// bodyEnd is the offset one past p's reserved body.
func (m *Machine) bodyEnd(p Obj) uint32 {
	return m.BodyOffset(p, m.Cap(p))
}

// IsTop reports whether p's body ends exactly at the arena top.
func (m *Machine) IsTop(p Obj) bool {
	return m.bodyEnd(p) == m.mem.Len()
}

// initHeader writes a fresh header at p.
func (m *Machine) initHeader(p Obj, h Header) {
	m.mem.Store32(uint32(p)+offCap, h.Cap)
	m.mem.Store32(uint32(p)+offSize, h.Size)
	m.SetBase(p, h.Base)
	m.SetPrev(p, h.Prev)
	m.SetRet(p, h.Ret)
}

// ---------------------------------------------------------------------------
// Growth
// ---------------------------------------------------------------------------

// ensureSpace makes room for extra more body bytes in p. Only the arena top
// object can grow; any other object faults FrameFull when it runs out.
func (m *Machine) ensureSpace(p Obj, extra uint32) *Fault {
	need := m.Size(p) + extra
	have := m.Cap(p)
	if need <= have {
		return nil
	}
	if !m.IsTop(p) || !m.fits(uint64(need-have)) {
		return &Fault{Kind: FaultFrameFull}
	}
	m.growTop(p, need-have)
	return nil
}

// fits reports whether the arena can grow by n bytes within the limit.
func (m *Machine) fits(n uint64) bool {
	return uint64(m.mem.Len())+n <= m.limit
}

// growTop extends the top object p by n bytes. A top object that is a named
// item is the last item of its parent, so every enclosing object whose body
// holds it is widened by the same n to keep its item list exact.
func (m *Machine) growTop(p Obj, n uint32) {
	m.mem.Grow(n)
	m.SetCap(p, m.Cap(p)+n)

	for child := p; ; {
		parent := m.Base(child)
		if parent == 0 || uint32(child) < m.BodyOffset(parent, 0) || uint32(child) >= m.bodyEnd(parent) {
			return
		}
		invariant(parent < child, "base link of #%s points to #%s", hexWord(uint32(child)), hexWord(uint32(parent)))
		invariant(m.Size(parent) == m.Cap(parent),
			"#%s encloses top object #%s but has slack: size %d, cap %d",
			hexWord(uint32(parent)), hexWord(uint32(child)), m.Size(parent), m.Cap(parent))
		m.SetCap(parent, m.Cap(parent)+n)
		m.SetSize(parent, m.Size(parent)+n)
		child = parent
	}
}

// itemSpan returns the total size of the item whose header is at addr.
func (m *Machine) itemSpan(addr uint32) uint32 {
	ty, _ := DecodeItemHeader(m.mem.Load32(addr))
	switch ty {
	case TypeBuiltinCode, TypeCode, TypeI32:
		return scalarItemSize
	case TypeObject:
		return itemHeaderSize + HeaderSize + m.Cap(Obj(addr+itemHeaderSize))
	}
	invariant(false, "item at #%s has unknown type tag %d", hexWord(addr), uint8(ty))
	return 0
}
