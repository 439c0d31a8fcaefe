package harness

// TraceEvent records what one step did once the coordinator went idle.
type TraceEvent struct {
	Step    int    `json:"step"`
	Op      string `json:"op"`
	Session string `json:"session"`

	// Notices are the feedback kinds delivered during the step, as
	// "alias:kind" in delivery order.
	Notices []string `json:"notices,omitempty"`

	// Move is set for move steps.
	Move *MoveTrace `json:"move,omitempty"`

	// Frozen lists the aliases frozen after the step, sorted.
	Frozen []string `json:"frozen"`
}

// MoveTrace is the coordinator's answer to a movement attempt.
type MoveTrace struct {
	Allowed bool       `json:"allowed"`
	Pos     [3]float64 `json:"pos"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace has one event per step.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Links maps each alias to its linked account after the last step.
	// Unlinked aliases map to 0. Empty when the store is down.
	Links map[string]int64 `json:"links,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Links:  make(map[string]int64),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
