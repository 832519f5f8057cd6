package vm

import (
	"fmt"
	"io"
	"strings"
)

// ObjectInfo is a structured view of one arena object.
type ObjectInfo struct {
	Offset Obj
	Header Header
	Items  []ItemInfo
}

// ItemInfo describes one item of an object. Nested is set for Object items
// while the inspection depth allows it.
type ItemInfo struct {
	Addr   uint32
	ID     ItemID
	Value  Value
	Nested *ObjectInfo
}

// DefaultMaxDepth is the default recursion depth for InspectObject.
const DefaultMaxDepth = 3

// InspectObject decodes p's header and item list, descending into nested
// objects up to depth levels.
func (m *Machine) InspectObject(p Obj, depth int) *ObjectInfo {
	info := &ObjectInfo{Offset: p, Header: m.Header(p)}
	at := m.BodyOffset(p, 0)
	end := m.BodyOffset(p, info.Header.Size)
	for at < end {
		_, id := DecodeItemHeader(m.mem.Load32(at))
		item := ItemInfo{Addr: at, ID: id, Value: m.loadItem(at)}
		if item.Value.Type == TypeObject && depth > 0 {
			item.Nested = m.InspectObject(Obj(item.Value.Data), depth-1)
		}
		info.Items = append(info.Items, item)
		at += m.itemSpan(at)
	}
	invariant(at == end, "item list of #%s overruns size", hexWord(uint32(p)))
	return info
}

// Frames returns the prev chain from FP down to the root.
func (m *Machine) Frames() []Obj {
	frames := make([]Obj, 0, 8)
	p := m.FP
	for {
		frames = append(frames, p)
		prev := m.Prev(p)
		if prev == 0 {
			return frames
		}
		invariant(prev != p, "infinite prev loop at #%s", hexWord(uint32(p)))
		invariant(prev < p, "prev link of #%s points to #%s", hexWord(uint32(p)), hexWord(uint32(prev)))
		p = prev
	}
}

// WriteStack dumps the header of every object on the prev chain.
func (m *Machine) WriteStack(w io.Writer) error {
	for _, p := range m.Frames() {
		h := m.Header(p)
		_, err := fmt.Fprintf(w, "#%s:\n  cap  = #%s\n  size = #%s\n  base = #%s\n  prev = #%s\n  ret  = #%s\n",
			hexWord(uint32(p)), hexWord(h.Cap), hexWord(h.Size),
			hexWord(uint32(h.Base)), hexWord(uint32(h.Prev)), hexWord(h.Ret))
		if err != nil {
			return err
		}
	}
	return nil
}

// String renders the object tree as an indented listing.
func (o *ObjectInfo) String() string {
	var sb strings.Builder
	o.write(&sb, 0)
	return sb.String()
}

func (o *ObjectInfo) write(sb *strings.Builder, indent int) {
	pad := strings.Repeat("  ", indent)
	fmt.Fprintf(sb, "%s#%s cap=%d size=%d\n", pad, hexWord(uint32(o.Offset)), o.Header.Cap, o.Header.Size)
	for _, item := range o.Items {
		fmt.Fprintf(sb, "%s  [%d] %s\n", pad, item.ID, item.Value)
		if item.Nested != nil {
			item.Nested.write(sb, indent+2)
		}
	}
}
