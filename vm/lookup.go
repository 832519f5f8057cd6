package vm

// findInFrame scans p's own item list for id and returns the address of the
// item header.
func (m *Machine) findInFrame(p Obj, id ItemID) (uint32, bool) {
	at := m.BodyOffset(p, 0)
	end := m.BodyOffset(p, m.Size(p))
	for at < end {
		_, got := DecodeItemHeader(m.mem.Load32(at))
		if got == id {
			return at, true
		}
		at += m.itemSpan(at)
	}
	invariant(at == end, "item list of #%s overruns size: scan ended at #%s, size ends at #%s",
		hexWord(uint32(p)), hexWord(at), hexWord(end))
	return 0, false
}

// find resolves id starting at the current frame and falling back along the
// prev chain.
func (m *Machine) find(id ItemID) (uint32, *Fault) {
	p := m.FP
	for {
		if at, ok := m.findInFrame(p, id); ok {
			return at, nil
		}
		prev := m.Prev(p)
		if prev == 0 {
			return 0, &Fault{Kind: FaultItemNotFound}
		}
		invariant(prev < p, "prev link of #%s points to #%s", hexWord(uint32(p)), hexWord(uint32(prev)))
		p = prev
	}
}

// loadItem reads the typed value of the item whose header is at addr.
func (m *Machine) loadItem(addr uint32) Value {
	ty, _ := DecodeItemHeader(m.mem.Load32(addr))
	if ty == TypeObject {
		return ObjectRef(addr + itemHeaderSize)
	}
	return Value{Type: ty, Data: m.mem.Load32(addr + itemHeaderSize)}
}

// appendScalar appends a scalar item to p. The caller has ensured space.
func (m *Machine) appendScalar(p Obj, id ItemID, v Value) {
	size := m.Size(p)
	at := m.BodyOffset(p, size)
	m.mem.Store32(at, EncodeItemHeader(v.Type, id))
	m.mem.Store32(at+itemHeaderSize, v.Data)
	m.SetSize(p, size+scalarItemSize)
}

// Lookup resolves id from the current frame the way Val does, without
// changing machine state.
func (m *Machine) Lookup(id ItemID) (Value, error) {
	if id == 0 {
		return ObjectRef(uint32(m.GP)), nil
	}
	at, f := m.find(id)
	if f != nil {
		f.PC = m.PC
		return Value{}, f
	}
	return m.loadItem(at), nil
}
