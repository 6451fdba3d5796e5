package harness

// Trace operations.
const (
	OpSeed     = "seed"
	OpQuery    = "query"
	OpAdd      = "add"
	OpUpdate   = "update"
	OpRemove   = "remove"
	OpSave     = "save"
	OpBegin    = "begin"
	OpCommit   = "commit"
	OpRollback = "rollback"
)

// TraceEvent records one executed step. Rows and Value hold rendered
// results (see Render), so the trace is plain data.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Op      string `json:"op"`
	Entity  string `json:"entity,omitempty"`
	Query   string `json:"query,omitempty"`
	Rows    []any  `json:"rows,omitempty"`
	Value   any    `json:"value,omitempty"`
	Changes int    `json:"changes,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per executed step, seed first.
	Trace []TraceEvent `json:"trace"`

	// Errors holds expectation and assertion failures. Empty if Pass.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
