package harness

import (
	"fmt"
	"strings"

	"github.com/perluette/relist/engine"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, describeEvent(event))
		}
	}

	return buf.String()
}

// describeEvent renders a trace event for failure messages.
func describeEvent(event TraceEvent) string {
	switch event.Type {
	case EventRetain:
		origin := -1
		if event.Origin != nil {
			origin = *event.Origin
		}
		return fmt.Sprintf("%s origin=%d", event.Type, origin)
	case EventError:
		return fmt.Sprintf("%s code=%s", event.Type, event.Code)
	default:
		if event.Payload != "" {
			return fmt.Sprintf("%s %s payload=%q", event.Type, event.Op, event.Payload)
		}
		return fmt.Sprintf("%s %s", event.Type, event.Op)
	}
}

// matchEvent checks whether a trace event matches an event type plus
// optional op and payload filters. Empty filters match anything.
func matchEvent(event TraceEvent, eventType, opStr, payload string) bool {
	if event.Type != eventType {
		return false
	}
	if opStr != "" && event.Op != opStr {
		return false
	}
	if payload != "" && event.Payload != payload {
		return false
	}
	return true
}

// assertTraceContains checks if the trace contains an event matching the
// specified type, op, and payload filters.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matchEvent(event, assertion.Event, assertion.Op, assertion.Payload) {
			return nil
		}
	}

	expected := assertion.Event
	if assertion.Op != "" {
		expected += " " + assertion.Op
	}
	if assertion.Payload != "" {
		expected += fmt.Sprintf(" payload=%q", assertion.Payload)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if events appear in the specified order.
// Events don't need to be consecutive (intervening events are allowed).
// Each entry is an event type optionally followed by an op rendering.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// Step 1: Find first position of each expected event
	positions := make(map[string]int)

	for i, event := range trace {
		for _, entry := range assertion.Events {
			eventType, opStr := splitOrderEntry(entry)
			if positions[entry] == 0 && matchEvent(event, eventType, opStr, "") {
				positions[entry] = i + 1 // 1-indexed for readability
			}
		}
	}

	// Step 2: Verify all events found
	for _, entry := range assertion.Events {
		if positions[entry] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all events present: %v", assertion.Events),
				Actual:   fmt.Sprintf("missing event: %s", entry),
				Trace:    trace,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(assertion.Events); i++ {
		prev := assertion.Events[i-1]
		curr := assertion.Events[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// splitOrderEntry splits a trace_order entry into event type and optional
// op rendering, e.g. "immediate add(2,1)" or just "retain".
func splitOrderEntry(entry string) (eventType, opStr string) {
	parts := strings.SplitN(entry, " ", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

// assertTraceCount checks if the event shape appears exactly the specified
// number of times. An op filter, when present, narrows the count.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matchEvent(event, assertion.Event, assertion.Op, "") {
			count++
		}
	}

	if count != assertion.Count {
		expected := assertion.Event
		if assertion.Op != "" {
			expected += " " + assertion.Op
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, expected),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalState checks engine counters after all batches completed.
// Subset semantics: only the counters named in Expect are checked.
func assertFinalState(e *engine.Engine, assertion Assertion) error {
	actual := map[string]int{
		"size":        e.TrackedSize(),
		"pending":     e.PendingCount(),
		"postponed":   e.PostponedCount(),
		"outstanding": e.Pool().Outstanding(),
		"pooled":      e.Pool().Pooled(),
	}

	for key, want := range assertion.Expect {
		got, ok := actual[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("known state counter %q", key),
				Actual:   "counter not recognized",
			}
		}
		if got != want {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s = %d", key, want),
				Actual:   fmt.Sprintf("%s = %d", key, got),
			}
		}
	}

	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Engine *engine.Engine
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides engine access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires engine context", i)
			} else {
				err = assertFinalState(actx.Engine, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
