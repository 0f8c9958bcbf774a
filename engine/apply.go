package engine

import "github.com/perluette/relist/op"

// classification of one touched position, per the frame and the
// collaborator's pre-layout knowledge.
type classification uint8

const (
	classNone classification = iota

	// classInvisible: no element-holder exists for this position in
	// either pre- or post-layout state; animation tracking can be
	// dropped and the effect applied immediately.
	classInvisible

	// classLaidOutOrNew: a holder is rendered at the position's
	// pre-layout origin, or the item was added in this batch; the
	// position must be tracked through the second pass.
	classLaidOutOrNew
)

// classify resolves the current slot to its pre-layout origin and asks the
// collaborator whether a holder is rendered there. Items added in this
// batch classify as laid-out-or-new without a holder.
func (e *Engine) classify(pos int) (classification, ElementHolder) {
	origin := e.frame.origin(pos)
	if origin == originNew {
		return classLaidOutOrNew, nil
	}
	if h, ok := e.collab.FindElementHolder(origin); ok {
		return classLaidOutOrNew, h
	}
	return classInvisible, nil
}

// applyAdd dispatches an insertion immediately. Newly added items have no
// pre-layout identity to animate from, so an add is never postponed.
func (e *Engine) applyAdd(o *op.Op) {
	e.frame.insert(o.PositionStart, o.ItemCount)
	e.collab.DispatchImmediate(Effect{
		Kind:          op.Add,
		PositionStart: o.PositionStart,
		ItemCount:     o.ItemCount,
	})
	e.pool.Release(o)
}

// applyRemove walks the removed range splitting it into maximal runs of
// equal classification. Invisible runs dispatch immediately; laid-out runs
// are postponed with their holders retained for the exit animation. Either
// way the run's slots leave the frame, so the probe window rewinds by the
// flushed count after each split.
func (e *Engine) applyRemove(o *op.Op) {
	tmpStart := o.PositionStart
	tmpCount := 0
	tmpEnd := o.PositionStart + o.ItemCount
	cls := classNone
	var holders []ElementHolder

	for pos := o.PositionStart; pos < tmpEnd; pos++ {
		c, h := e.classify(pos)
		changed := false
		if c == classLaidOutOrNew {
			if cls == classInvisible {
				e.flushRemoveNow(tmpStart, tmpCount)
				changed = true
			}
			cls = classLaidOutOrNew
		} else {
			if cls == classLaidOutOrNew {
				holders = e.flushRemoveDeferred(tmpStart, tmpCount, holders)
				changed = true
			}
			cls = classInvisible
		}
		if changed {
			pos -= tmpCount
			tmpEnd -= tmpCount
			tmpCount = 1
		} else {
			tmpCount++
		}
		if h != nil {
			holders = append(holders, h)
		}
	}

	if cls == classInvisible {
		e.flushRemoveNow(tmpStart, tmpCount)
	} else {
		e.flushRemoveDeferred(tmpStart, tmpCount, holders)
	}
	e.pool.Release(o)
}

// flushRemoveNow applies an invisible run to the live render state.
func (e *Engine) flushRemoveNow(start, count int) {
	if count == 0 {
		return
	}
	e.frame.delete(start, count)
	e.collab.DispatchImmediate(Effect{
		Kind:          op.Remove,
		PositionStart: start,
		ItemCount:     count,
	})
}

// flushRemoveDeferred postpones a laid-out run: the collaborator keeps each
// live holder alive through the second pass, and a deferred record covering
// the run joins the postponed queue. Returns the reset holder accumulator.
func (e *Engine) flushRemoveDeferred(start, count int, holders []ElementHolder) []ElementHolder {
	if count == 0 {
		return holders
	}
	for _, h := range holders {
		e.collab.RetainForSecondPass(h)
	}
	e.frame.delete(start, count)
	e.postponed = append(e.postponed, postponedOp{
		rec:     e.pool.AcquireRemove(start, count),
		holders: holders,
	})
	return nil
}

// applyUpdate postpones the whole record when any touched position is
// laid-out-or-new (so the content-change animation can run), and dispatches
// it immediately as a plain data refresh otherwise. Updates never change
// position translation.
func (e *Engine) applyUpdate(o *op.Op) {
	for pos := o.PositionStart; pos < o.PositionStart+o.ItemCount; pos++ {
		if c, _ := e.classify(pos); c == classLaidOutOrNew {
			e.postponed = append(e.postponed, postponedOp{rec: o})
			return
		}
	}
	e.collab.DispatchImmediate(Effect{
		Kind:          op.Update,
		PositionStart: o.PositionStart,
		ItemCount:     o.ItemCount,
		Payload:       o.Payload,
	})
	e.pool.Release(o)
}

// applyMove always postpones: a relocation is only meaningful as an
// animated transition. The frame reflects the relocation at once so
// subsequent operations in the batch resolve against the new layout.
func (e *Engine) applyMove(o *op.Op) {
	e.frame.relocate(o.PositionStart, o.To)
	e.postponed = append(e.postponed, postponedOp{rec: o})
}
