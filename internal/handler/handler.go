// Package handler implements the per-resource push/poll handler registry:
// stable opaque reference tokens over a generational arena, so references
// to removed handlers are detected rather than dereferenced or silently
// reused. A numeric generational index lets handler refs survive list
// compaction instead of going stale silently.
package handler

import (
	"errors"

	"github.com/rakunlabs/datahub/internal/sample"
)

// ErrNotFound is returned by Call/Remove when a Ref's generation is stale.
var ErrNotFound = errors.New("handler: not found")

// Callback receives a dispatched sample; ctx is the client-supplied value
// passed to Add.
type Callback func(kind sample.Kind, s *sample.Sample, ctx any)

// Ref is a stable opaque reference to a registered handler.
type Ref struct {
	slot uint32
	gen  uint32
}

// Valid reports whether r names any slot at all (the zero Ref is invalid).
func (r Ref) Valid() bool { return r.gen != 0 }

type entry struct {
	gen    uint32 // 0 = free slot
	kind   sample.Kind
	cb     Callback
	ctx    any
	inList bool
}

// List is one of a resource's two handler lists (push or poll).
type List struct {
	slots []entry
	free  []uint32
	order []uint32 // slot indices, insertion order
}

// NewList constructs an empty handler list.
func NewList() *List { return &List{} }

// Add registers a handler subscribed to kind and returns a stable Ref.
func (l *List) Add(kind sample.Kind, cb Callback, ctx any) Ref {
	var slot uint32
	if n := len(l.free); n > 0 {
		slot = l.free[n-1]
		l.free = l.free[:n-1]
		l.slots[slot].gen++
	} else {
		slot = uint32(len(l.slots))
		l.slots = append(l.slots, entry{gen: 0})
		l.slots[slot].gen = 1
	}

	e := &l.slots[slot]
	e.kind = kind
	e.cb = cb
	e.ctx = ctx
	e.inList = true

	l.order = append(l.order, slot)

	return Ref{slot: slot, gen: e.gen}
}

// Remove invalidates ref; stale refs to the same slot thereafter resolve
// to ErrNotFound.
func (l *List) Remove(ref Ref) error {
	if int(ref.slot) >= len(l.slots) || l.slots[ref.slot].gen != ref.gen || !l.slots[ref.slot].inList {
		return ErrNotFound
	}
	l.slots[ref.slot].inList = false
	l.slots[ref.slot].cb = nil
	l.slots[ref.slot].ctx = nil
	l.free = append(l.free, ref.slot)

	for i, s := range l.order {
		if s == ref.slot {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return nil
}

// RemoveAll clears every handler in the list, invalidating all refs.
func (l *List) RemoveAll() {
	for i := range l.slots {
		if l.slots[i].inList {
			l.slots[i].inList = false
			l.slots[i].cb = nil
			l.slots[i].ctx = nil
			l.free = append(l.free, uint32(i))
		}
	}
	l.order = l.order[:0]
}

// MoveAll transfers every handler from src into dst, preserving src's slot
// numbers so any Ref already issued against src resolves the same way
// against dst afterward (dst is expected to be a freshly allocated List
// with no slots of its own, as moveAdminSettings uses it — a destination
// that already occupies src's slot range would collide and is not
// supported).
func MoveAll(dst, src *List) {
	if len(src.order) == 0 {
		return
	}

	live := make([]bool, len(src.slots))
	for _, slot := range src.order {
		live[slot] = true
	}

	oldLen := len(dst.slots)
	if need := len(src.slots); need > oldLen {
		dst.slots = append(dst.slots, make([]entry, need-oldLen)...)
		for slot := oldLen; slot < need; slot++ {
			if !live[slot] {
				dst.free = append(dst.free, uint32(slot))
			}
		}
	}

	for _, slot := range src.order {
		dst.slots[slot] = src.slots[slot]
		dst.order = append(dst.order, slot)
	}

	src.slots = nil
	src.free = nil
	src.order = nil
}

// Empty reports whether the list has no live handlers.
func (l *List) Empty() bool { return len(l.order) == 0 }

// Call dispatches to a single handler identified by ref, applying the C3
// dispatch rule: exact kind match delivers the typed value; otherwise if
// the handler's subscribed kind is string or json the sample is converted;
// any other mismatch silently skips delivery.
func (l *List) Call(ref Ref, kind sample.Kind, s *sample.Sample) error {
	if int(ref.slot) >= len(l.slots) || l.slots[ref.slot].gen != ref.gen || !l.slots[ref.slot].inList {
		return ErrNotFound
	}
	e := l.slots[ref.slot]
	dispatch(e, kind, s)
	return nil
}

// CallAll dispatches s to every handler in insertion order.
func (l *List) CallAll(kind sample.Kind, s *sample.Sample) {
	for _, slot := range l.order {
		dispatch(l.slots[slot], kind, s)
	}
}

func dispatch(e entry, kind sample.Kind, s *sample.Sample) {
	if e.cb == nil {
		return
	}
	switch {
	case e.kind == kind:
		e.cb(kind, s, e.ctx)
	case e.kind == sample.String || e.kind == sample.JSON:
		converted := s.Coerce(e.kind)
		if len(converted.Text()) > sample.MaxStringLen {
			// An over-long conversion is not delivered; nothing is
			// logged or reported.
			return
		}
		e.cb(e.kind, converted, e.ctx)
	default:
		// Not eligible: a numeric handler never receives a bool, etc.
	}
}
