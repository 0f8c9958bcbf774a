package harness

// Trace event type constants.
const (
	EventImmediate  = "immediate"
	EventRetain     = "retain"
	EventSecondPass = "second_pass"
	EventError      = "error"
)

// TraceEvent records one collaborator callback (or batch rejection) during
// a scenario run. This provides a concrete type for the trace slice.
type TraceEvent struct {
	Type    string `json:"type"`
	Op      string `json:"op,omitempty"`      // rendered op, e.g. "add(2,1)"
	Payload string `json:"payload,omitempty"` // update payload, when scripted
	Origin  *int   `json:"origin,omitempty"`  // retained holder's pre-layout position
	Code    string `json:"code,omitempty"`    // contract error code
	Seq     int64  `json:"seq"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	// Trace contains all recorded events in order.
	// Used for trace assertions and golden comparison.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State contains final engine counters for reporting.
	State map[string]int `json:"state,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]int),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
