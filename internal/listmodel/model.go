// Package listmodel is a plain reference implementation of an ordered list
// under mutation. It applies operation records one at a time, in sequence
// order, with none of the engine's reordering or deferral, which makes it
// the oracle for net-effect equivalence: a canonical sequence must leave a
// List in the same state as the original sequence it came from.
package listmodel

import (
	"fmt"
	"slices"

	"github.com/perluette/relist/op"
)

// Item is one list element: a stable identity plus the update payloads
// applied to it, in application order.
type Item struct {
	ID      int
	Updates []any
}

// List is the reference list state.
type List struct {
	items  []Item
	nextID int
}

// New creates a list of size items with identities 0..size-1.
func New(size int) *List {
	l := &List{
		items:  make([]Item, size),
		nextID: size,
	}
	for i := range l.items {
		l.items[i].ID = i
	}
	return l
}

// Len returns the current number of items.
func (l *List) Len() int {
	return len(l.items)
}

// IDs returns the identity sequence of the current list.
func (l *List) IDs() []int {
	ids := make([]int, len(l.items))
	for i, it := range l.items {
		ids[i] = it.ID
	}
	return ids
}

// Items returns a deep copy of the current list state.
func (l *List) Items() []Item {
	out := make([]Item, len(l.items))
	for i, it := range l.items {
		out[i] = Item{ID: it.ID, Updates: slices.Clone(it.Updates)}
	}
	return out
}

// Apply mutates the list by one record, bounds-checked.
//
// Adds mint fresh identities in insertion order. Because canonicalization
// never reorders adds relative to each other, identity minting stays
// aligned between an original sequence and its canonical form.
func (l *List) Apply(o *op.Op) error {
	if o == nil {
		return fmt.Errorf("nil operation")
	}
	switch o.Kind {
	case op.Add:
		if o.PositionStart < 0 || o.ItemCount < 1 || o.PositionStart > len(l.items) {
			return fmt.Errorf("add out of range: %s with len %d", o, len(l.items))
		}
		fresh := make([]Item, o.ItemCount)
		for i := range fresh {
			fresh[i].ID = l.nextID
			l.nextID++
		}
		l.items = slices.Insert(l.items, o.PositionStart, fresh...)

	case op.Remove:
		if o.PositionStart < 0 || o.ItemCount < 1 || o.PositionEnd() > len(l.items) {
			return fmt.Errorf("remove out of range: %s with len %d", o, len(l.items))
		}
		l.items = slices.Delete(l.items, o.PositionStart, o.PositionEnd())

	case op.Update:
		if o.PositionStart < 0 || o.ItemCount < 1 || o.PositionEnd() > len(l.items) {
			return fmt.Errorf("update out of range: %s with len %d", o, len(l.items))
		}
		for i := o.PositionStart; i < o.PositionEnd(); i++ {
			l.items[i].Updates = append(l.items[i].Updates, o.Payload)
		}

	case op.Move:
		if o.ItemCount != 1 || o.PositionStart < 0 || o.To < 0 ||
			o.PositionStart >= len(l.items) || o.To >= len(l.items) {
			return fmt.Errorf("move out of range: %s with len %d", o, len(l.items))
		}
		it := l.items[o.PositionStart]
		l.items = slices.Delete(l.items, o.PositionStart, o.PositionStart+1)
		l.items = slices.Insert(l.items, o.To, it)

	default:
		return fmt.Errorf("unknown kind in %s", o)
	}
	return nil
}

// ApplyAll applies records in order, stopping at the first failure.
func (l *List) ApplyAll(ops []*op.Op) error {
	for i, o := range ops {
		if err := l.Apply(o); err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
	}
	return nil
}

// Equal reports whether two lists have identical item sequences, including
// per-item update payload history. Payloads are compared with == and must
// be comparable values.
func Equal(a, b *List) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := range a.items {
		x, y := a.items[i], b.items[i]
		if x.ID != y.ID || len(x.Updates) != len(y.Updates) {
			return false
		}
		for j := range x.Updates {
			if x.Updates[j] != y.Updates[j] {
				return false
			}
		}
	}
	return true
}
