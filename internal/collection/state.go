package collection

// State is the position of a query in the execution pipeline. A query only
// moves forward, one state at a time.
type State int

const (
	StateReceived State = iota
	StateParsed
	StateTransformed
	StateExecuted
	StatePaginated
	StateResponded
)

var stateNames = [...]string{
	StateReceived:    "received",
	StateParsed:      "parsed",
	StateTransformed: "transformed",
	StateExecuted:    "executed",
	StatePaginated:   "paginated",
	StateResponded:   "responded",
}

// stepVerbs name the work done to reach each state.
var stepVerbs = [...]string{
	StateReceived:    "receive",
	StateParsed:      "parse",
	StateTransformed: "transform",
	StateExecuted:    "execute",
	StatePaginated:   "paginate",
	StateResponded:   "respond",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Verb names the step that leads into s, e.g. "parse" for StateParsed.
func (s State) Verb() string {
	if s < 0 || int(s) >= len(stepVerbs) {
		return "unknown"
	}
	return stepVerbs[s]
}
