package engine

import (
	"log/slog"
	"math"

	"github.com/perluette/relist/op"
)

// postponedOp couples a deferred record with the element-holders retained
// for it. Queue order is preserved through the second pass: later records
// may depend on positions established by earlier ones.
type postponedOp struct {
	rec     *op.Op
	holders []ElementHolder
}

// Engine is the two-phase reconciliation engine.
//
// Producers issue mutation records through AddOperations. PreProcess
// canonicalizes the pending batch and walks it once, dispatching immediate
// effects and filling the postponed queue. ConsumePostponedUpdates drains
// that queue at the start of the second rendering pass.
//
// CRITICAL: every method must be called from the single logical thread that
// owns the rendering lifecycle. The engine detects calls made while a pass
// is on the stack and reports them as reentrancy violations, but it has no
// locks; concurrent use from multiple goroutines is a caller bug.
//
// INVARIANTS:
//   - pending holds records in issue order until PreProcess consumes them
//   - postponed holds records in first-pass discovery order
//   - after a full batch lifecycle, size equals the frame length
type Engine struct {
	collab   Collaborator
	progress func() // non-nil when the collaborator reports progress

	pool      *op.Pool
	clock     *Clock
	tokens    TokenGenerator
	reorderer *Reorderer

	pending   []*op.Op
	postponed []postponedOp
	frame     *frame
	size      int  // dataset size projected over queued operations
	inBatch   bool // a PreProcess or ConsumePostponedUpdates is on the stack
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithPool replaces the default record pool. Producers that acquire their
// records from a shared pool pass it here so dispatch recycles into the
// same free list.
func WithPool(p *op.Pool) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.pool = p
		}
	}
}

// WithClock replaces the default clock. Tests and the harness pin trace
// numbering with it.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithTokenGenerator replaces the UUIDv7 batch token generator. Tests use
// fixed tokens for byte-stable traces.
func WithTokenGenerator(g TokenGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.tokens = g
		}
	}
}

// New creates an Engine reconciling mutations against a dataset currently
// holding itemCount items. The collaborator is the rendering layer the
// engine dispatches into; if it also implements ProgressReporter, the
// per-operation progress callback is wired up.
func New(collab Collaborator, itemCount int, opts ...EngineOption) *Engine {
	if itemCount < 0 {
		itemCount = 0
	}
	e := &Engine{
		collab: collab,
		pool:   op.NewPool(op.DefaultPoolCapacity),
		clock:  NewClock(),
		tokens: UUIDv7Generator{},
		frame:  newFrame(itemCount),
		size:   itemCount,
	}
	if pr, ok := collab.(ProgressReporter); ok {
		e.progress = pr.OnOperationProcessed
	}
	for _, opt := range opts {
		opt(e)
	}
	e.reorderer = NewReorderer(e.pool)
	return e
}

// AddOperations validates and queues mutation records in issue order.
//
// Each record is validated against the dataset size projected over the
// records queued before it, in this call and earlier ones. On the first
// invalid record the whole call is rejected: no record from a failed call
// is queued, and every record passed to the call is recycled, so the caller
// must not reuse them. A move whose source equals its destination is a
// no-op and is recycled instead of queued.
//
// Records should come from the engine's Pool; they are recycled into it
// once dispatched.
func (e *Engine) AddOperations(ops ...*op.Op) error {
	if e.inBatch {
		return NewReentrancyError("AddOperations")
	}

	size := e.size
	for i, o := range ops {
		if err := validateOp(o, i, size); err != nil {
			for _, rejected := range ops {
				e.pool.Release(rejected)
			}
			return err
		}
		switch o.Kind {
		case op.Add:
			size += o.ItemCount
		case op.Remove:
			size -= o.ItemCount
		}
	}

	for _, o := range ops {
		if o.Kind == op.Move && o.PositionStart == o.To {
			e.pool.Release(o)
			continue
		}
		e.pending = append(e.pending, o)
	}
	e.size = size
	return nil
}

// validateOp checks one record against the projected dataset size.
func validateOp(o *op.Op, index, size int) error {
	if o == nil {
		return &ContractError{
			Code:    ErrCodeInvalidRange,
			Message: "nil operation record",
			Index:   index,
			Size:    size,
		}
	}
	switch o.Kind {
	case op.Add:
		if o.PositionStart < 0 || o.ItemCount < 1 || o.PositionStart > size ||
			o.ItemCount > math.MaxInt-size {
			return NewRangeError(*o, index, size)
		}
	case op.Remove, op.Update:
		if o.PositionStart < 0 || o.ItemCount < 1 ||
			o.ItemCount > math.MaxInt-o.PositionStart ||
			o.PositionStart+o.ItemCount > size {
			return NewRangeError(*o, index, size)
		}
	case op.Move:
		if o.ItemCount != 1 || o.PositionStart < 0 || o.To < 0 ||
			o.PositionStart >= size || o.To >= size {
			return NewRangeError(*o, index, size)
		}
	default:
		return NewRangeError(*o, index, size)
	}
	return nil
}

// PreProcess canonicalizes the pending batch and walks it exactly once.
//
// For each canonical record the engine either dispatches an immediate
// effect, postpones the record to the second pass, or both (a remove can
// split into runs of each). The optional progress callback fires after
// every record. On a malformed batch the call aborts with zero collaborator
// effects and the pending queue is cleared and recycled.
func (e *Engine) PreProcess() error {
	if e.inBatch {
		return NewReentrancyError("PreProcess")
	}
	e.inBatch = true
	defer func() { e.inBatch = false }()

	token := e.tokens.Generate()
	slog.Debug("pre-process begin",
		"batch", token,
		"pending", len(e.pending),
		"size", e.size,
	)

	canonical, err := e.reorderer.Reorder(e.pending)
	if err != nil {
		for _, o := range canonical {
			e.pool.Release(o)
		}
		e.pending = nil
		e.size = e.frame.len() // the rejected batch's projection is void
		slog.Warn("pre-process aborted",
			"batch", token,
			"error", err,
		)
		return err
	}

	for _, o := range canonical {
		seq := e.clock.Next()
		slog.Debug("processing operation",
			"batch", token,
			"seq", seq,
			"op", o.String(),
		)
		switch o.Kind {
		case op.Add:
			e.applyAdd(o)
		case op.Remove:
			e.applyRemove(o)
		case op.Update:
			e.applyUpdate(o)
		case op.Move:
			e.applyMove(o)
		}
		if e.progress != nil {
			e.progress()
		}
	}

	e.pending = nil
	slog.Debug("pre-process complete",
		"batch", token,
		"postponed", len(e.postponed),
		"size", e.size,
	)
	return nil
}

// ConsumePostponedUpdates drains the postponed queue in order at the start
// of the second rendering pass, recycles every drained record, and re-seeds
// the frame so the just-completed layout becomes the new pre-layout
// baseline. Calling it again with nothing postponed is a no-op.
func (e *Engine) ConsumePostponedUpdates() error {
	if e.inBatch {
		return NewReentrancyError("ConsumePostponedUpdates")
	}
	e.inBatch = true
	defer func() { e.inBatch = false }()

	for i := range e.postponed {
		p := &e.postponed[i]
		e.collab.DispatchSecondPass(p.rec)
		e.pool.Release(p.rec)
		p.rec = nil
		p.holders = nil
	}
	e.postponed = e.postponed[:0]
	e.frame.reset(e.frame.len())
	return nil
}

// Reset drops all pending and postponed state, recycles every record, and
// rebaselines the engine on a dataset of itemCount items. Used when the
// collaborator discards an in-flight batch, typically on full dataset
// replacement.
func (e *Engine) Reset(itemCount int) error {
	if e.inBatch {
		return NewReentrancyError("Reset")
	}
	for _, o := range e.pending {
		e.pool.Release(o)
	}
	e.pending = nil
	for i := range e.postponed {
		e.pool.Release(e.postponed[i].rec)
		e.postponed[i] = postponedOp{}
	}
	e.postponed = e.postponed[:0]

	if itemCount < 0 {
		itemCount = 0
	}
	e.frame.reset(itemCount)
	e.size = itemCount
	slog.Debug("engine reset", "size", itemCount)
	return nil
}

// Pool returns the record pool producers acquire from.
func (e *Engine) Pool() *op.Pool {
	return e.pool
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// PendingCount returns the number of queued, unprocessed records.
func (e *Engine) PendingCount() int {
	return len(e.pending)
}

// PostponedCount returns the number of records awaiting the second pass.
func (e *Engine) PostponedCount() int {
	return len(e.postponed)
}

// TrackedSize returns the dataset size projected over queued operations.
func (e *Engine) TrackedSize() int {
	return e.size
}

// PostponedOps returns value snapshots of the postponed records in queue
// order. Used by tests and diagnostics; the live records stay owned by the
// engine.
func (e *Engine) PostponedOps() []op.Op {
	out := make([]op.Op, len(e.postponed))
	for i := range e.postponed {
		out[i] = *e.postponed[i].rec
	}
	return out
}

// OriginForTesting exposes the frame's origin mapping for a current slot.
// Not intended for production use.
func (e *Engine) OriginForTesting(pos int) int {
	return e.frame.origin(pos)
}
