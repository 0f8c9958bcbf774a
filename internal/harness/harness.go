package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/perluette/relist/engine"
	"github.com/perluette/relist/internal/testutil"
	"github.com/perluette/relist/op"
)

// Harness is the test execution engine.
// It runs scenarios against a fresh reconciliation engine with a scripted
// rendered set and a fixed batch token.
type Harness struct {
	engine   *engine.Engine
	recorder *traceRecorder
	logger   *slog.Logger
}

// scriptedHolder stands in for a rendered element. It remembers the
// pre-layout position it was scripted at.
type scriptedHolder struct {
	origin int
}

// traceRecorder implements engine.Collaborator by recording every callback
// as a trace event, stamped with a deterministic sequence number.
type traceRecorder struct {
	holders map[int]*scriptedHolder
	clock   *testutil.DeterministicClock
	trace   []TraceEvent
}

func newTraceRecorder(rendered []int) *traceRecorder {
	r := &traceRecorder{
		holders: make(map[int]*scriptedHolder),
		clock:   testutil.NewDeterministicClock(),
	}
	for _, pos := range rendered {
		r.holders[pos] = &scriptedHolder{origin: pos}
	}
	return r
}

func (r *traceRecorder) FindElementHolder(prePos int) (engine.ElementHolder, bool) {
	h, ok := r.holders[prePos]
	if !ok {
		return nil, false
	}
	return h, true
}

func (r *traceRecorder) DispatchImmediate(e engine.Effect) {
	ev := TraceEvent{Type: EventImmediate, Op: renderEffect(e), Seq: r.clock.Next()}
	if s, ok := e.Payload.(string); ok && s != "" {
		ev.Payload = s
	}
	r.trace = append(r.trace, ev)
}

func (r *traceRecorder) DispatchSecondPass(o *op.Op) {
	ev := TraceEvent{Type: EventSecondPass, Op: o.String(), Seq: r.clock.Next()}
	if s, ok := o.Payload.(string); ok && s != "" {
		ev.Payload = s
	}
	r.trace = append(r.trace, ev)
}

func (r *traceRecorder) RetainForSecondPass(h engine.ElementHolder) {
	origin := h.(*scriptedHolder).origin
	r.trace = append(r.trace, TraceEvent{Type: EventRetain, Origin: &origin, Seq: r.clock.Next()})
}

func (r *traceRecorder) recordError(code string) {
	r.trace = append(r.trace, TraceEvent{Type: EventError, Code: code, Seq: r.clock.Next()})
}

// renderEffect renders a first-pass effect the same way operation records
// render, so trace assertions use one vocabulary.
func renderEffect(e engine.Effect) string {
	o := op.Op{Kind: e.Kind, PositionStart: e.PositionStart, ItemCount: e.ItemCount}
	return o.String()
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh engine for isolation. Deterministic
// batch tokens and trace sequence numbers ensure reproducible results.
//
// Execution flow:
// 1. Create a fresh engine over the scripted rendered set
// 2. Run each batch through the full lifecycle (queue, first pass, drain)
// 3. Capture final engine counters
// 4. Evaluate assertions against the trace and counters
// 5. Return result with pass/fail, trace, and errors
func Run(scenario *Scenario) (*Result, error) {
	recorder := newTraceRecorder(scenario.Rendered)
	eng := engine.New(recorder, scenario.InitialSize,
		engine.WithTokenGenerator(testutil.NewFixedTokenGenerator(scenario.BatchToken)),
	)

	h := &Harness{
		engine:   eng,
		recorder: recorder,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	result := NewResult()
	for i, batch := range scenario.Batches {
		if err := h.runBatch(i, batch, result); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
	}

	result.Trace = h.recorder.trace
	result.State = map[string]int{
		"size":        eng.TrackedSize(),
		"pending":     eng.PendingCount(),
		"postponed":   eng.PostponedCount(),
		"outstanding": eng.Pool().Outstanding(),
		"pooled":      eng.Pool().Pooled(),
	}

	actx := &AssertionContext{Engine: eng}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// runBatch drives one batch through the full lifecycle and reconciles the
// outcome with the batch's expect_error declaration.
func (h *Harness) runBatch(index int, batch BatchStep, result *Result) error {
	records := make([]*op.Op, len(batch.Ops))
	for i, step := range batch.Ops {
		records[i] = h.buildRecord(step)
	}

	err := h.engine.AddOperations(records...)
	if err == nil {
		err = h.engine.PreProcess()
	}

	if err != nil {
		code := contractCode(err)
		h.recorder.recordError(code)

		if batch.ExpectError == "" {
			result.AddError(fmt.Sprintf("batch %d rejected unexpectedly: %v", index, err))
		} else if code != batch.ExpectError {
			result.AddError(fmt.Sprintf("batch %d: expected error code %s, got %s", index, batch.ExpectError, code))
		}
		// The engine rolled the batch back; later batches still run.
		return nil
	}

	if batch.ExpectError != "" {
		result.AddError(fmt.Sprintf("batch %d: expected error code %s, batch succeeded", index, batch.ExpectError))
	}

	if err := h.engine.ConsumePostponedUpdates(); err != nil {
		return fmt.Errorf("drain postponed: %w", err)
	}

	h.logger.Info("batch completed",
		"batch", index,
		"ops", len(batch.Ops),
		"size", h.engine.TrackedSize(),
	)
	return nil
}

// buildRecord acquires an operation record for an op step. Kinds were
// validated at load time; positions and counts pass through untouched so
// expect_error batches reach the engine intact.
func (h *Harness) buildRecord(step OpStep) *op.Op {
	kind, _ := op.ParseKind(step.Kind)
	pool := h.engine.Pool()

	switch kind {
	case op.Add:
		return pool.AcquireAdd(step.Position, step.Count)
	case op.Remove:
		return pool.AcquireRemove(step.Position, step.Count)
	case op.Update:
		var payload any
		if step.Payload != "" {
			payload = step.Payload
		}
		return pool.AcquireUpdate(step.Position, step.Count, payload)
	default:
		return pool.AcquireMove(step.Position, step.To)
	}
}

// contractCode extracts the contract error code, or renders the error
// verbatim when it is not a contract violation.
func contractCode(err error) string {
	var ce *engine.ContractError
	if errors.As(err, &ce) {
		return string(ce.Code)
	}
	return err.Error()
}
