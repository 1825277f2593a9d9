package harness

import "github.com/roach88/tokenledger/internal/audit"

// TraceEntry is one recorded call with the events it produced. IDs and flow
// tokens are left out so traces compare across runs.
type TraceEntry struct {
	Seq       int64
	Op        string
	Caller    string
	Timestamp int64
	Args      map[string]string
	Outcome   string
	ErrorCode string
	Result    map[string]any
	Events    []audit.Event
}

// Map renders the entry for canonical serialization.
func (e TraceEntry) Map() map[string]any {
	events := make([]any, len(e.Events))
	for i, ev := range e.Events {
		events[i] = map[string]any{
			"index":  ev.Index,
			"kind":   ev.Kind,
			"fields": ev.Fields,
		}
	}
	m := map[string]any{
		"seq":       e.Seq,
		"op":        e.Op,
		"caller":    e.Caller,
		"timestamp": e.Timestamp,
		"args":      e.Args,
		"outcome":   e.Outcome,
		"events":    events,
	}
	if e.ErrorCode != "" {
		m["error_code"] = e.ErrorCode
	}
	if len(e.Result) > 0 {
		m["result"] = e.Result
	}
	return m
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step expectation and assertion held.
	Pass bool

	// Trace holds every recorded call in seq order, genesis included.
	Trace []TraceEntry

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEntry{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
