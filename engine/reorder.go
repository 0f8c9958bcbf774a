package engine

import (
	"fmt"
	"math"
	"slices"

	"github.com/perluette/relist/op"
)

// Reorderer canonicalizes a pending operation sequence: every move ends up
// behind every structural operation, with the relative order inside each
// group preserved, and the net effect of the sequence unchanged.
//
// A move interleaved with adds, removes, or updates over overlapping ranges
// cannot be applied naively; the structural operation's positions assume the
// relocation already happened. The reorderer repeatedly takes the last move
// that still precedes a non-move and swaps the pair, re-expressing the
// non-move in the pre-move reference frame. Swapping against a remove may
// split it in two, cancel the move outright (the removed range undoes the
// relocation), or swallow the moved item (the move degenerates into a
// single-item remove). Swapping against an update may split it into as many
// as three fragments, each carrying the original payload. Swapping against
// an add only shifts indices.
//
// The reorderer never calls the collaborator and never touches engine state;
// it owns the records it is handed and may mutate, split, merge, and recycle
// them through the shared pool.
type Reorderer struct {
	pool *op.Pool
}

// NewReorderer creates a reorderer recycling records through pool.
func NewReorderer(pool *op.Pool) *Reorderer {
	return &Reorderer{pool: pool}
}

// Reorder rewrites ops into canonical order and returns the resulting
// sequence, which may be shorter or longer than the input.
//
// On error the returned slice holds every live record (partially rewritten);
// the caller is expected to recycle them and discard the batch. Errors are
// contract violations: a record with a malformed shape, an index range that
// overflows, or a batch that fails to reach the fixed point within the swap
// budget.
func (r *Reorderer) Reorder(ops []*op.Op) ([]*op.Op, error) {
	if err := checkShapes(ops); err != nil {
		return ops, err
	}

	budget := swapBudget(len(ops))
	for remaining := budget; ; remaining-- {
		bad := lastMoveOutOfOrder(ops)
		if bad < 0 {
			return ops, nil
		}
		if remaining <= 0 {
			return ops, NewMalformedSequenceError(
				fmt.Sprintf("no conflict-free fixed point within %d swaps", budget))
		}
		var err error
		ops, err = r.swapAt(ops, bad)
		if err != nil {
			return ops, err
		}
	}
}

// checkShapes rejects records the swap arithmetic cannot handle.
func checkShapes(ops []*op.Op) error {
	for i, o := range ops {
		if o == nil {
			return NewMalformedSequenceError(fmt.Sprintf("nil record at index %d", i))
		}
		if o.PositionStart < 0 || o.ItemCount < 1 {
			return NewMalformedSequenceError(fmt.Sprintf("record %d has malformed range %s", i, o))
		}
		if o.PositionStart > math.MaxInt-o.ItemCount {
			return NewMalformedSequenceError(fmt.Sprintf("record %d range overflows: %s", i, o))
		}
		if o.Kind == op.Move && (o.ItemCount != 1 || o.To < 0) {
			return NewMalformedSequenceError(fmt.Sprintf("record %d is a malformed move: %s", i, o))
		}
	}
	return nil
}

// swapBudget bounds the fixed-point loop. Every legitimate batch converges
// well under this; hitting it means the sequence is malformed.
func swapBudget(n int) int {
	return 64 + 8*n*n
}

// lastMoveOutOfOrder returns the index of the last move that still has a
// non-move after it, or -1 at the fixed point. The record at index+1 is
// always a non-move: were it a move with a non-move after it, the backwards
// scan would have returned it first.
func lastMoveOutOfOrder(ops []*op.Op) int {
	foundNonMove := false
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].Kind == op.Move {
			if foundNonMove {
				return i
			}
		} else {
			foundNonMove = true
		}
	}
	return -1
}

func (r *Reorderer) swapAt(ops []*op.Op, movePos int) ([]*op.Op, error) {
	m := ops[movePos]
	next := ops[movePos+1]
	switch next.Kind {
	case op.Remove:
		return r.swapMoveRemove(ops, movePos, m, movePos+1, next), nil
	case op.Add:
		return r.swapMoveAdd(ops, movePos, m, movePos+1, next), nil
	case op.Update:
		return r.swapMoveUpdate(ops, movePos, m, movePos+1, next), nil
	default:
		return ops, NewMalformedSequenceError(
			fmt.Sprintf("move at %d followed by %s", movePos, next))
	}
}

// swapMoveRemove rewrites [move, remove] as an equivalent [remove..., move?].
//
// The remove's range is translated into the pre-move frame in two steps:
// first undo the insertion half of the move at m.To, then undo the deletion
// half at m.PositionStart. Each step either shifts the remove or splits it.
// Degenerate outcomes: the remove covers exactly the relocation (the move is
// reverted and disappears), or the removed range contains the moved item
// (the move becomes a plain single-item remove).
func (r *Reorderer) swapMoveRemove(ops []*op.Op, movePos int, m *op.Op, removePos int, rm *op.Op) []*op.Op {
	var extraRm *op.Op
	revertedMove := false
	moveIsBackwards := false

	if m.PositionStart < m.To {
		if rm.PositionStart == m.PositionStart && rm.ItemCount == m.To-m.PositionStart {
			revertedMove = true
		}
	} else {
		moveIsBackwards = true
		if rm.PositionStart == m.To+1 && rm.ItemCount == m.PositionStart-m.To {
			revertedMove = true
		}
	}

	// Undo the insertion half of the move at m.To.
	if m.To < rm.PositionStart {
		rm.PositionStart--
	} else if m.To < rm.PositionStart+rm.ItemCount {
		// The moved item itself is inside the removed range: the move
		// degenerates into removing that single item from its source.
		rm.ItemCount--
		m.Kind = op.Remove
		m.ItemCount = 1
		m.To = 0
		if rm.ItemCount == 0 {
			ops = slices.Delete(ops, removePos, removePos+1)
			r.pool.Release(rm)
		}
		// Already a remove in the right place; no swap needed.
		return ops
	}

	// Undo the deletion half of the move at m.PositionStart.
	if m.PositionStart <= rm.PositionStart {
		rm.PositionStart++
	} else if m.PositionStart < rm.PositionStart+rm.ItemCount {
		remaining := rm.PositionStart + rm.ItemCount - m.PositionStart
		extraRm = r.pool.AcquireRemove(m.PositionStart+1, remaining)
		rm.ItemCount = m.PositionStart - rm.PositionStart
	}

	if revertedMove {
		ops[movePos] = rm
		ops = slices.Delete(ops, removePos, removePos+1)
		r.pool.Release(m)
		return ops
	}

	// The remove now precedes the move; shift the move into the
	// post-remove frame. Backward moves sit on the boundary differently,
	// hence the strict comparisons.
	if moveIsBackwards {
		if extraRm != nil {
			if m.PositionStart > extraRm.PositionStart {
				m.PositionStart -= extraRm.ItemCount
			}
			if m.To > extraRm.PositionStart {
				m.To -= extraRm.ItemCount
			}
		}
		if m.PositionStart > rm.PositionStart {
			m.PositionStart -= rm.ItemCount
		}
		if m.To > rm.PositionStart {
			m.To -= rm.ItemCount
		}
	} else {
		if extraRm != nil {
			if m.PositionStart >= extraRm.PositionStart {
				m.PositionStart -= extraRm.ItemCount
			}
			if m.To >= extraRm.PositionStart {
				m.To -= extraRm.ItemCount
			}
		}
		if m.PositionStart >= rm.PositionStart {
			m.PositionStart -= rm.ItemCount
		}
		if m.To >= rm.PositionStart {
			m.To -= rm.ItemCount
		}
	}

	ops[movePos] = rm
	if m.PositionStart != m.To {
		ops[removePos] = m
	} else {
		// Translation collapsed the move to a no-op.
		ops = slices.Delete(ops, removePos, removePos+1)
		r.pool.Release(m)
	}
	if extraRm != nil {
		ops = slices.Insert(ops, movePos, extraRm)
	}
	return ops
}

// swapMoveAdd rewrites [move, add] as [add, move]. An add never splits; the
// pair only shifts each other's indices.
func (r *Reorderer) swapMoveAdd(ops []*op.Op, movePos int, m *op.Op, addPos int, a *op.Op) []*op.Op {
	offset := 0
	if m.To < a.PositionStart {
		offset--
	}
	if m.PositionStart < a.PositionStart {
		offset++
	}
	if a.PositionStart <= m.PositionStart {
		m.PositionStart += a.ItemCount
	}
	if a.PositionStart <= m.To {
		m.To += a.ItemCount
	}
	a.PositionStart += offset

	ops[movePos] = a
	ops[addPos] = m
	return ops
}

// swapMoveUpdate rewrites [move, update] as [update..., move]. The update
// range is translated into the pre-move frame; the moved item's own update
// is re-targeted to the move source, and a range straddling the source
// splits, so up to three update fragments can come out, every one carrying
// the original payload.
func (r *Reorderer) swapMoveUpdate(ops []*op.Op, movePos int, m *op.Op, updatePos int, u *op.Op) []*op.Op {
	var extraUp1, extraUp2 *op.Op

	// Undo the insertion half of the move at m.To.
	if m.To < u.PositionStart {
		u.PositionStart--
	} else if m.To < u.PositionStart+u.ItemCount {
		// The moved item is updated: give it its own record at the
		// move source.
		u.ItemCount--
		extraUp1 = r.pool.AcquireUpdate(m.PositionStart, 1, u.Payload)
	}

	// Undo the deletion half of the move at m.PositionStart.
	if m.PositionStart <= u.PositionStart {
		u.PositionStart++
	} else if m.PositionStart < u.PositionStart+u.ItemCount {
		remaining := u.PositionStart + u.ItemCount - m.PositionStart
		extraUp2 = r.pool.AcquireUpdate(m.PositionStart+1, remaining, u.Payload)
		u.ItemCount -= remaining
	}

	ops[updatePos] = m // the move itself is unaffected by an update
	if u.ItemCount > 0 {
		ops[movePos] = u
	} else {
		ops = slices.Delete(ops, movePos, movePos+1)
		r.pool.Release(u)
	}
	if extraUp1 != nil {
		ops = slices.Insert(ops, movePos, extraUp1)
	}
	if extraUp2 != nil {
		ops = slices.Insert(ops, movePos, extraUp2)
	}
	return ops
}
