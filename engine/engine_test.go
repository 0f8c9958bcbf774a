package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perluette/relist/internal/testutil"
	"github.com/perluette/relist/op"
)

// holderStub is a test-only element holder remembering its pre-layout
// position.
type holderStub struct {
	prePos int
}

// recorder is a scripted collaborator: it renders holders at the given
// pre-layout positions and records every callback the engine makes.
type recorder struct {
	holders    map[int]*holderStub
	immediates []Effect
	secondPass []op.Op // value snapshots; the records are recycled after the call
	retained   []*holderStub
	ticks      int

	// reenter, when set, is invoked from DispatchImmediate to provoke
	// a reentrancy violation; the returned error lands in reentryErr.
	reenter    func() error
	reentryErr error
}

func newRecorder(positions ...int) *recorder {
	r := &recorder{holders: make(map[int]*holderStub)}
	for _, p := range positions {
		r.holders[p] = &holderStub{prePos: p}
	}
	return r
}

func (r *recorder) FindElementHolder(prePos int) (ElementHolder, bool) {
	h, ok := r.holders[prePos]
	if !ok {
		return nil, false
	}
	return h, true
}

func (r *recorder) DispatchImmediate(e Effect) {
	r.immediates = append(r.immediates, e)
	if r.reenter != nil {
		r.reentryErr = r.reenter()
	}
}

func (r *recorder) DispatchSecondPass(o *op.Op) {
	r.secondPass = append(r.secondPass, *o)
}

func (r *recorder) RetainForSecondPass(h ElementHolder) {
	r.retained = append(r.retained, h.(*holderStub))
}

func (r *recorder) OnOperationProcessed() {
	r.ticks++
}

func retainedPositions(r *recorder) []int {
	out := make([]int, len(r.retained))
	for i, h := range r.retained {
		out[i] = h.prePos
	}
	return out
}

func newTestEngine(rec *recorder, size int) *Engine {
	return New(rec, size,
		WithTokenGenerator(testutil.NewFixedTokenGenerator("")),
	)
}

func TestEngine_New(t *testing.T) {
	rec := newRecorder()
	e := New(rec, 5)

	assert.NotNil(t, e.Pool())
	assert.NotNil(t, e.Clock())
	assert.Equal(t, 5, e.TrackedSize())
	assert.Equal(t, 0, e.PendingCount())
	assert.Equal(t, 0, e.PostponedCount())
}

func TestEngine_New_NegativeSizeClamped(t *testing.T) {
	e := New(newRecorder(), -3)
	assert.Equal(t, 0, e.TrackedSize())
}

func TestEngine_WithPool_SharesProducerPool(t *testing.T) {
	shared := op.NewPool(8)
	e := New(newRecorder(), 3,
		WithPool(shared),
		WithTokenGenerator(testutil.NewFixedTokenGenerator("")),
	)
	require.Same(t, shared, e.Pool())

	require.NoError(t, e.AddOperations(shared.AcquireAdd(0, 2)))
	require.NoError(t, e.PreProcess())

	assert.Equal(t, 0, shared.Outstanding(), "dispatch recycles into the producer's pool")
	assert.Equal(t, 1, shared.Pooled())
}

func TestEngine_WithClock_ResumesNumbering(t *testing.T) {
	e := New(newRecorder(), 2,
		WithClock(NewClockAt(100)),
		WithTokenGenerator(testutil.NewFixedTokenGenerator("")),
	)

	require.NoError(t, e.AddOperations(e.Pool().AcquireAdd(0, 1)))
	require.NoError(t, e.PreProcess())

	assert.Equal(t, int64(101), e.Clock().Current())
}

func TestEngine_AddOperations_ProjectsTrackedSize(t *testing.T) {
	e := newTestEngine(newRecorder(), 5)
	p := e.Pool()

	require.NoError(t, e.AddOperations(p.AcquireAdd(0, 2)))
	assert.Equal(t, 7, e.TrackedSize())

	require.NoError(t, e.AddOperations(p.AcquireRemove(0, 3)))
	assert.Equal(t, 4, e.TrackedSize())

	// Bounds are checked against the projected size, not the initial one.
	require.NoError(t, e.AddOperations(p.AcquireUpdate(3, 1, nil)))
	err := e.AddOperations(p.AcquireUpdate(4, 1, nil))
	require.Error(t, err)
	assert.True(t, IsRangeError(err))

	assert.Equal(t, 3, e.PendingCount())
}

func TestEngine_AddOperations_RejectsAtomically(t *testing.T) {
	rec := newRecorder()
	e := newTestEngine(rec, 5)
	p := e.Pool()

	err := e.AddOperations(
		p.AcquireAdd(0, 1),
		p.AcquireRemove(2, 9), // out of range even after the add
		p.AcquireAdd(0, 1),
	)
	require.Error(t, err)
	assert.True(t, IsRangeError(err))

	var ce *ContractError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Index)
	assert.Equal(t, 6, ce.Size)

	assert.Equal(t, 0, e.PendingCount(), "no record from a failed call may be queued")
	assert.Equal(t, 5, e.TrackedSize())
	assert.Equal(t, 0, p.Outstanding(), "rejected records are recycled")
}

func TestEngine_AddOperations_ValidationPerKind(t *testing.T) {
	tests := []struct {
		name  string
		build func(p *op.Pool) *op.Op
	}{
		{"negative start", func(p *op.Pool) *op.Op { return p.AcquireAdd(-1, 1) }},
		{"add past end", func(p *op.Pool) *op.Op { return p.AcquireAdd(6, 1) }},
		{"remove past end", func(p *op.Pool) *op.Op { return p.AcquireRemove(3, 3) }},
		{"update past end", func(p *op.Pool) *op.Op { return p.AcquireUpdate(5, 1, nil) }},
		{"move source out of range", func(p *op.Pool) *op.Op { return p.AcquireMove(5, 0) }},
		{"move target out of range", func(p *op.Pool) *op.Op { return p.AcquireMove(0, 5) }},
		{"zero count", func(p *op.Pool) *op.Op { o := p.AcquireRemove(0, 1); o.ItemCount = 0; return o }},
		{"multi-item move", func(p *op.Pool) *op.Op { o := p.AcquireMove(0, 2); o.ItemCount = 2; return o }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(newRecorder(), 5)
			err := e.AddOperations(tt.build(e.Pool()))
			require.Error(t, err)
			assert.True(t, IsRangeError(err), "got %v", err)
			assert.Equal(t, 0, e.PendingCount())
		})
	}
}

func TestEngine_AddOperations_NilRecord(t *testing.T) {
	e := newTestEngine(newRecorder(), 5)
	err := e.AddOperations(nil)
	require.Error(t, err)
	assert.True(t, IsRangeError(err))
}

func TestEngine_AddOperations_NoopMoveSkipped(t *testing.T) {
	e := newTestEngine(newRecorder(), 5)
	p := e.Pool()

	require.NoError(t, e.AddOperations(p.AcquireMove(2, 2)))
	assert.Equal(t, 0, e.PendingCount())
	assert.Equal(t, 0, p.Outstanding())
}

// TestEngine_PreProcess_AddThenRemoveVisible pins the canonical two-phase
// split: on a fully rendered list of five, an add dispatches immediately
// while the remove of a rendered position is postponed with its holder
// retained, leaving the tracked size at five.
func TestEngine_PreProcess_AddThenRemoveVisible(t *testing.T) {
	rec := newRecorder(0, 1, 2, 3, 4)
	e := newTestEngine(rec, 5)
	p := e.Pool()

	require.NoError(t, e.AddOperations(
		p.AcquireAdd(2, 1),
		p.AcquireRemove(0, 1),
	))
	require.NoError(t, e.PreProcess())

	assert.Equal(t, []Effect{{Kind: op.Add, PositionStart: 2, ItemCount: 1}}, rec.immediates)
	assert.Equal(t, []op.Op{{Kind: op.Remove, PositionStart: 0, ItemCount: 1}}, e.PostponedOps())
	assert.Equal(t, []int{0}, retainedPositions(rec))
	assert.Equal(t, 5, e.TrackedSize())
	assert.Equal(t, 0, e.PendingCount())
	assert.Equal(t, int64(2), e.Clock().Current(), "one seq per processed record")
}

// TestEngine_PreProcess_MoveAlone pins the second concrete contract case:
// a lone move postpones exactly one record and relocates the frame slot at
// once for subsequent operations.
func TestEngine_PreProcess_MoveAlone(t *testing.T) {
	rec := newRecorder(0, 1, 2, 3, 4)
	e := newTestEngine(rec, 5)

	require.NoError(t, e.AddOperations(e.Pool().AcquireMove(1, 3)))
	require.NoError(t, e.PreProcess())

	assert.Empty(t, rec.immediates)
	assert.Equal(t, []op.Op{{Kind: op.Move, PositionStart: 1, ItemCount: 1, To: 3}}, e.PostponedOps())

	wantOrigins := []int{0, 2, 3, 1, 4}
	for pos, want := range wantOrigins {
		assert.Equal(t, want, e.OriginForTesting(pos), "slot %d", pos)
	}
}

func TestEngine_PreProcess_RemoveInvisibleImmediate(t *testing.T) {
	rec := newRecorder() // nothing rendered
	e := newTestEngine(rec, 5)

	require.NoError(t, e.AddOperations(e.Pool().AcquireRemove(1, 3)))
	require.NoError(t, e.PreProcess())

	assert.Equal(t, []Effect{{Kind: op.Remove, PositionStart: 1, ItemCount: 3}}, rec.immediates)
	assert.Equal(t, 0, e.PostponedCount())
	assert.Empty(t, rec.retained)
	assert.Equal(t, 2, e.TrackedSize())
}

func TestEngine_PreProcess_RemoveAllVisiblePostponed(t *testing.T) {
	rec := newRecorder(0, 1, 2, 3, 4)
	e := newTestEngine(rec, 5)

	require.NoError(t, e.AddOperations(e.Pool().AcquireRemove(1, 3)))
	require.NoError(t, e.PreProcess())

	assert.Empty(t, rec.immediates)
	assert.Equal(t, []op.Op{{Kind: op.Remove, PositionStart: 1, ItemCount: 3}}, e.PostponedOps())
	assert.Equal(t, []int{1, 2, 3}, retainedPositions(rec))
}

// TestEngine_PreProcess_RemoveSplitsRuns walks a removal over alternating
// visibility: each maximal run of equal classification is flushed on its
// own, and every flush rewinds the probe window, so all runs start at the
// original position.
func TestEngine_PreProcess_RemoveSplitsRuns(t *testing.T) {
	rec := newRecorder(1, 3)
	e := newTestEngine(rec, 5)

	require.NoError(t, e.AddOperations(e.Pool().AcquireRemove(0, 5)))
	require.NoError(t, e.PreProcess())

	assert.Equal(t, []Effect{
		{Kind: op.Remove, PositionStart: 0, ItemCount: 1},
		{Kind: op.Remove, PositionStart: 0, ItemCount: 1},
		{Kind: op.Remove, PositionStart: 0, ItemCount: 1},
	}, rec.immediates)
	assert.Equal(t, []op.Op{
		{Kind: op.Remove, PositionStart: 0, ItemCount: 1},
		{Kind: op.Remove, PositionStart: 0, ItemCount: 1},
	}, e.PostponedOps())
	assert.Equal(t, []int{1, 3}, retainedPositions(rec))
	assert.Equal(t, 0, e.TrackedSize())
}

// TestEngine_PreProcess_RemoveNewlyAdded: an item added in the batch has
// no holder, but its removal is still postponed; it will exist by the time
// the second pass runs.
func TestEngine_PreProcess_RemoveNewlyAdded(t *testing.T) {
	rec := newRecorder() // nothing rendered
	e := newTestEngine(rec, 3)
	p := e.Pool()

	require.NoError(t, e.AddOperations(
		p.AcquireAdd(1, 1),
		p.AcquireRemove(1, 1),
	))
	require.NoError(t, e.PreProcess())

	assert.Equal(t, []Effect{{Kind: op.Add, PositionStart: 1, ItemCount: 1}}, rec.immediates)
	assert.Equal(t, []op.Op{{Kind: op.Remove, PositionStart: 1, ItemCount: 1}}, e.PostponedOps())
	assert.Empty(t, rec.retained, "a never-rendered item has no holder to retain")
}

func TestEngine_PreProcess_UpdateInvisibleImmediate(t *testing.T) {
	rec := newRecorder()
	e := newTestEngine(rec, 5)

	require.NoError(t, e.AddOperations(e.Pool().AcquireUpdate(1, 2, "fresh")))
	require.NoError(t, e.PreProcess())

	assert.Equal(t, []Effect{{Kind: op.Update, PositionStart: 1, ItemCount: 2, Payload: "fresh"}}, rec.immediates)
	assert.Equal(t, 0, e.PostponedCount())
}

func TestEngine_PreProcess_UpdatePostponedWhenAnyTouchedLive(t *testing.T) {
	rec := newRecorder(2) // only position 2 is rendered
	e := newTestEngine(rec, 5)

	require.NoError(t, e.AddOperations(e.Pool().AcquireUpdate(1, 2, "fresh")))
	require.NoError(t, e.PreProcess())

	assert.Empty(t, rec.immediates)
	assert.Equal(t, []op.Op{{Kind: op.Update, PositionStart: 1, ItemCount: 2, Payload: "fresh"}}, e.PostponedOps())
	assert.Empty(t, rec.retained, "updated holders are not disappearing")
}

// TestEngine_PreProcess_CanonicalizesBeforeWalk: a move issued before a
// remove is reordered behind it, and the postponed queue preserves the
// canonical order.
func TestEngine_PreProcess_CanonicalizesBeforeWalk(t *testing.T) {
	rec := newRecorder(0, 1, 2, 3, 4)
	e := newTestEngine(rec, 5)
	p := e.Pool()

	require.NoError(t, e.AddOperations(
		p.AcquireMove(1, 3),
		p.AcquireRemove(0, 1),
	))
	require.NoError(t, e.PreProcess())

	assert.Empty(t, rec.immediates)
	assert.Equal(t, []op.Op{
		{Kind: op.Remove, PositionStart: 0, ItemCount: 1},
		{Kind: op.Move, PositionStart: 0, ItemCount: 1, To: 2},
	}, e.PostponedOps())

	// Frame reflects remove of origin 0 then relocation of origin 1.
	wantOrigins := []int{2, 3, 1, 4}
	for pos, want := range wantOrigins {
		assert.Equal(t, want, e.OriginForTesting(pos), "slot %d", pos)
	}
}

func TestEngine_PreProcess_Reentrancy(t *testing.T) {
	rec := newRecorder()
	e := newTestEngine(rec, 5)
	rec.reenter = func() error {
		return e.AddOperations(e.Pool().AcquireAdd(0, 1))
	}

	require.NoError(t, e.AddOperations(e.Pool().AcquireAdd(0, 1)))
	require.NoError(t, e.PreProcess())

	require.Error(t, rec.reentryErr)
	assert.True(t, IsReentrancyError(rec.reentryErr))
}

func TestEngine_PreProcess_MalformedBatchAborts(t *testing.T) {
	rec := newRecorder(0, 1, 2, 3, 4)
	e := newTestEngine(rec, 5)
	p := e.Pool()

	require.NoError(t, e.AddOperations(p.AcquireRemove(1, 2)))
	// Corrupt the queued record the way a misbehaving producer that kept
	// its pointer would.
	e.pending[0].ItemCount = 0

	err := e.PreProcess()
	require.Error(t, err)
	assert.True(t, IsMalformedSequenceError(err))

	assert.Empty(t, rec.immediates, "a malformed batch must have zero effects")
	assert.Empty(t, rec.retained)
	assert.Equal(t, 0, e.PendingCount(), "pending is cleared on abort")
	assert.Equal(t, 0, e.PostponedCount())
	assert.Equal(t, 5, e.TrackedSize(), "the rejected projection is rolled back")
	assert.Equal(t, 0, p.Outstanding())
}

func TestEngine_ConsumePostponedUpdates_DrainsInOrder(t *testing.T) {
	rec := newRecorder(0, 1, 2, 3, 4)
	e := newTestEngine(rec, 5)
	p := e.Pool()

	require.NoError(t, e.AddOperations(
		p.AcquireMove(1, 3),
		p.AcquireRemove(0, 1),
	))
	require.NoError(t, e.PreProcess())
	require.NoError(t, e.ConsumePostponedUpdates())

	assert.Equal(t, []op.Op{
		{Kind: op.Remove, PositionStart: 0, ItemCount: 1},
		{Kind: op.Move, PositionStart: 0, ItemCount: 1, To: 2},
	}, rec.secondPass)
	assert.Equal(t, 0, e.PostponedCount())
	assert.Equal(t, 0, p.Outstanding(), "drained records are recycled")

	// The completed layout became the new pre-layout baseline.
	for pos := 0; pos < e.TrackedSize(); pos++ {
		assert.Equal(t, pos, e.OriginForTesting(pos), "slot %d", pos)
	}
}

func TestEngine_ConsumePostponedUpdates_IdempotentWhenEmpty(t *testing.T) {
	rec := newRecorder(0, 1, 2, 3, 4)
	e := newTestEngine(rec, 5)

	require.NoError(t, e.AddOperations(e.Pool().AcquireRemove(0, 1)))
	require.NoError(t, e.PreProcess())

	require.NoError(t, e.ConsumePostponedUpdates())
	drained := len(rec.secondPass)
	require.NoError(t, e.ConsumePostponedUpdates())

	assert.Equal(t, drained, len(rec.secondPass), "second drain must be a no-op")
	assert.Equal(t, 0, e.PostponedCount())
}

func TestEngine_Reset_ClearsAllState(t *testing.T) {
	rec := newRecorder(0, 1, 2, 3, 4)
	e := newTestEngine(rec, 5)
	p := e.Pool()

	require.NoError(t, e.AddOperations(
		p.AcquireRemove(0, 1),
		p.AcquireMove(0, 2),
	))
	require.NoError(t, e.PreProcess())
	require.NoError(t, e.AddOperations(p.AcquireAdd(0, 1)))

	require.NoError(t, e.Reset(10))

	assert.Equal(t, 0, e.PendingCount())
	assert.Equal(t, 0, e.PostponedCount())
	assert.Equal(t, 0, p.Outstanding())
	assert.Equal(t, 10, e.TrackedSize())
	for pos := 0; pos < 10; pos++ {
		assert.Equal(t, pos, e.OriginForTesting(pos))
	}
}

func TestEngine_ProgressCallback_OncePerProcessedRecord(t *testing.T) {
	rec := newRecorder(0, 1, 2, 3, 4)
	e := newTestEngine(rec, 5)
	p := e.Pool()

	require.NoError(t, e.AddOperations(
		p.AcquireAdd(2, 1),
		p.AcquireRemove(0, 1),
	))
	require.NoError(t, e.PreProcess())

	assert.Equal(t, 2, rec.ticks)
}

// TestEngine_PoolConservation_RandomBatches drives full batch lifecycles
// with seeded random operations and random holder sets: every acquired
// record must be released exactly once by the time the second pass drains.
func TestEngine_PoolConservation_RandomBatches(t *testing.T) {
	const (
		seeds     = 50
		startSize = 6
		batchLen  = 10
	)

	for seed := uint64(0); seed < seeds; seed++ {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			rng := testutil.Rand(seed)

			holders := make([]int, 0, startSize)
			for pos := 0; pos < startSize; pos++ {
				if rng.IntN(2) == 0 {
					holders = append(holders, pos)
				}
			}
			rec := newRecorder(holders...)
			e := newTestEngine(rec, startSize)

			ops, wantSize := testutil.RandomBatch(rng, e.Pool(), startSize, batchLen)
			require.NoError(t, e.AddOperations(ops...))
			assert.Equal(t, wantSize, e.TrackedSize())

			require.NoError(t, e.PreProcess())
			require.NoError(t, e.ConsumePostponedUpdates())

			assert.Equal(t, 0, e.Pool().Outstanding())
			assert.Equal(t, 0, e.PendingCount())
			assert.Equal(t, 0, e.PostponedCount())
			assert.Equal(t, wantSize, e.TrackedSize())
		})
	}
}
