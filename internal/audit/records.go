// Package audit defines the append-only call and event records written for
// every entry point, and the canonical serialization used to store and hash
// them.
//
// Ordering is by logical seq, never by timestamp. Two runs that execute the
// same calls in the same order produce byte-identical canonical records.
package audit

// Outcome of a call.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Call is one entry-point invocation as delivered by the host.
type Call struct {
	ID        string
	Seq       int64
	FlowToken string
	Op        string
	Caller    string
	Args      map[string]string
	Timestamp int64
	Outcome   string
	ErrorCode string // empty unless Outcome is OutcomeError
	Result    map[string]any
}

// Event is one audit event produced by a successful call.
type Event struct {
	ID        string
	Seq       int64
	Index     int // position within the call
	FlowToken string
	Kind      string
	Fields    map[string]any
	Timestamp int64
}

// Map renders the event for canonical serialization. IDs are left out so
// golden traces do not depend on hashing.
func (e Event) Map() map[string]any {
	return map[string]any{
		"seq":    e.Seq,
		"index":  e.Index,
		"kind":   e.Kind,
		"fields": e.Fields,
	}
}
