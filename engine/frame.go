package engine

import "slices"

// originNew marks a slot occupied by an item added in the current batch.
// Such items have no pre-layout identity.
const originNew = -1

// frame is the position-translation state of a batch: one slot per item of
// the evolving layout, each holding the item's pre-layout origin position,
// or originNew for items added in this batch.
//
// PreProcess mutates the frame as it walks the canonical sequence, so every
// operation's positions resolve against the layout produced by the
// operations before it. Removed slots leave the frame whether the removal
// was dispatched immediately or postponed; pre-layout identity for postponed
// removals survives in the retained element-holders, not in the frame.
type frame struct {
	origins []int
}

func newFrame(size int) *frame {
	f := &frame{}
	f.reset(size)
	return f
}

// reset re-seeds the frame to the identity mapping over size slots:
// the current layout becomes the pre-layout baseline.
func (f *frame) reset(size int) {
	if cap(f.origins) >= size {
		f.origins = f.origins[:size]
	} else {
		f.origins = make([]int, size)
	}
	for i := range f.origins {
		f.origins[i] = i
	}
}

func (f *frame) len() int {
	return len(f.origins)
}

// origin returns the pre-layout origin of the given current slot.
func (f *frame) origin(pos int) int {
	return f.origins[pos]
}

// insert splices count new-origin slots in at pos.
func (f *frame) insert(pos, count int) {
	f.origins = slices.Insert(f.origins, pos, make([]int, count)...)
	for i := pos; i < pos+count; i++ {
		f.origins[i] = originNew
	}
}

// delete drops count slots starting at pos.
func (f *frame) delete(pos, count int) {
	f.origins = slices.Delete(f.origins, pos, pos+count)
}

// relocate moves the slot at from so it ends up at index to.
func (f *frame) relocate(from, to int) {
	v := f.origins[from]
	f.origins = slices.Delete(f.origins, from, from+1)
	f.origins = slices.Insert(f.origins, to, v)
}
