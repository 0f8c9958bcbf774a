// Package harness provides conformance testing for the reconciliation
// engine.
//
// The harness loads scenario files, drives full batch lifecycles against a
// scripted set of rendered holders, and validates the resulting callback
// trace as executable contract tests.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	initial_size: 5
//	rendered: [0, 1, 2, 3, 4]
//	batch_token: batch-test-1
//	batches:
//	  - ops:
//	      - kind: add
//	        position: 2
//	        count: 1
//	      - kind: remove
//	        position: 0
//	        count: 1
//	assertions:
//	  - type: trace_contains
//	    event: immediate
//	    op: "add(2,1)"
//	  - type: final_state
//	    expect: { size: 5, outstanding: 0 }
//
// Each batch runs the full lifecycle: queue, first pass, drain. A batch may
// instead declare expect_error with a contract error code, in which case the
// engine must reject the batch and leave its state intact.
//
// # Trace Events
//
// Every collaborator callback is recorded as a trace event:
//
//   - immediate: a first-pass effect (op string, payload for updates)
//   - retain: a holder kept alive for the second pass (origin position)
//   - second_pass: a postponed record delivered by the drain (op string)
//   - error: a rejected batch (contract error code)
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: Verifies an event appears in the trace with matching fields
//   - trace_order: Verifies events appear in the specified order
//   - trace_count: Verifies an event shape appears exactly N times
//   - final_state: Verifies engine counters after all batches complete
//
// # Deterministic Testing
//
// All scenarios execute with a fixed batch token (from scenario.batch_token
// or a deterministic default), a deterministic trace clock, and a fresh
// engine per run, so identical traces are produced across runs for golden
// snapshot comparison.
package harness
