package present

// State is the position of a pipe in the present cycle.
type State int

const (
	Idle State = iota
	Rendering
	Submitted
	FlipPending
	Presented
)

var stateNames = [...]string{
	Idle:        "idle",
	Rendering:   "rendering",
	Submitted:   "submitted",
	FlipPending: "flip-pending",
	Presented:   "presented",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
