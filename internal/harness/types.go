package harness

// TracePoint is the observable state after one tick.
type TracePoint struct {
	Tick          int64              `json:"tick"`
	Era           string             `json:"era,omitempty"`
	ByKind        map[string]int     `json:"by_kind"`
	Relationships int                `json:"relationships"`
	Mutations     int                `json:"mutations"`
	Events        int                `json:"events"`
	Violations    int                `json:"violations"`
	Failures      int                `json:"failures"`
	Pressures     map[string]float64 `json:"pressures,omitempty"`
	Halted        bool               `json:"halted,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion held.
	Pass bool `json:"pass"`

	// Trace contains one point per completed tick, in tick order.
	Trace []TracePoint `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	RunID       string `json:"run_id"`
	Seed        int64  `json:"seed"`
	Ticks       int64  `json:"ticks"`
	Halted      bool   `json:"halted"`
	Digest      string `json:"digest"`
	EventDigest string `json:"event_digest"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TracePoint{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Final returns the last trace point, or false if no tick completed.
func (r *Result) Final() (TracePoint, bool) {
	if len(r.Trace) == 0 {
		return TracePoint{}, false
	}
	return r.Trace[len(r.Trace)-1], true
}

// At returns the trace point for tick, or false if it was not reached.
func (r *Result) At(tick int64) (TracePoint, bool) {
	for _, p := range r.Trace {
		if p.Tick == tick {
			return p, true
		}
	}
	return TracePoint{}, false
}
