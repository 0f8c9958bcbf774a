package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/perluette/relist/op"
)

// Scenario defines a conformance test scenario.
// Scenarios validate reconciliation behavior by running operation batches
// against a scripted rendered set and asserting on the resulting trace.
type Scenario struct {
	// Name uniquely identifies this scenario. It is also the golden file
	// name for snapshot comparison.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// InitialSize is the item count the engine is created with.
	InitialSize int `yaml:"initial_size"`

	// Rendered lists the pre-layout positions that have live holders.
	// Positions outside this list classify as invisible.
	Rendered []int `yaml:"rendered,omitempty"`

	// Batches contains the operation batches to run, in order. Each batch
	// goes through the full lifecycle before the next one starts.
	Batches []BatchStep `yaml:"batches"`

	// Assertions validate the final trace and engine state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions"`

	// BatchToken is an optional fixed batch token for deterministic tests.
	// If empty, defaults to "test-batch-default" for deterministic golden
	// file comparison.
	BatchToken string `yaml:"batch_token,omitempty"`
}

// BatchStep is one operation batch run through the full lifecycle.
type BatchStep struct {
	// Ops contains the operation records to issue, in order.
	Ops []OpStep `yaml:"ops"`

	// ExpectError is an optional contract error code. When set, the engine
	// must reject the batch with that code; the rejection is recorded as an
	// error trace event.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// OpStep describes a single operation record.
type OpStep struct {
	// Kind is one of "add", "remove", "update", "move".
	Kind string `yaml:"kind"`

	// Position is the start position (the source position for moves).
	Position int `yaml:"position"`

	// Count is the number of touched items. An omitted count defaults
	// to 1.
	Count int `yaml:"count,omitempty"`

	// To is the destination position. Moves only.
	To int `yaml:"to,omitempty"`

	// Payload is an optional change descriptor. Updates only.
	Payload string `yaml:"payload,omitempty"`
}

// Assertion validates the trace or the final engine state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check an event appears in the trace
	// - "trace_order": Check events appear in order
	// - "trace_count": Check an event shape appears exactly N times
	// - "final_state": Check engine counters after the run
	Type string `yaml:"type"`

	// Event is the event type to match (used by trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Op is the expected op rendering, e.g. "add(2,1)" (used by
	// trace_contains and, optionally, trace_count).
	Op string `yaml:"op,omitempty"`

	// Payload is the expected payload (used by trace_contains).
	Payload string `yaml:"payload,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected event order (used by trace_order). Each entry
	// is an event type optionally followed by an op rendering, e.g.
	// "immediate add(2,1)" or "retain".
	Events []string `yaml:"events,omitempty"`

	// Expect contains expected engine counters (used by final_state).
	// Known keys: size, pending, postponed, outstanding, pooled.
	Expect map[string]int `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like
	// "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// An omitted count means one item; explicit invalid counts cannot be
	// expressed, range-error scenarios use out-of-bounds positions instead.
	for bi := range scenario.Batches {
		for oi := range scenario.Batches[bi].Ops {
			if scenario.Batches[bi].Ops[oi].Count == 0 {
				scenario.Batches[bi].Ops[oi].Count = 1
			}
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.InitialSize < 0 {
		return fmt.Errorf("initial_size must be non-negative")
	}

	for i, pos := range s.Rendered {
		if pos < 0 || pos >= s.InitialSize {
			return fmt.Errorf("rendered[%d]: position %d outside [0,%d)", i, pos, s.InitialSize)
		}
	}

	if len(s.Batches) == 0 {
		return fmt.Errorf("batches list is required and must be non-empty")
	}

	for bi, batch := range s.Batches {
		if len(batch.Ops) == 0 {
			return fmt.Errorf("batches[%d]: ops list is required and must be non-empty", bi)
		}
		for oi, step := range batch.Ops {
			if _, err := op.ParseKind(step.Kind); err != nil {
				return fmt.Errorf("batches[%d].ops[%d]: %w", bi, oi, err)
			}
			// Positions and counts are deliberately not range-checked
			// here: out-of-range records are legitimate scenario content
			// for expect_error batches. The engine is the judge.
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		for key := range a.Expect {
			if !knownStateCounter(key) {
				return fmt.Errorf("assertions[%d]: unknown state counter %q", index, key)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// knownStateCounter reports whether key names an engine counter that
// final_state assertions can check.
func knownStateCounter(key string) bool {
	switch key {
	case "size", "pending", "postponed", "outstanding", "pooled":
		return true
	}
	return false
}
