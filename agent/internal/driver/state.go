package driver

// State is the loop's current step.
type State int32

const (
	Idle State = iota
	Capturing
	Delivering
	Spooling
	Draining
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Delivering:
		return "delivering"
	case Spooling:
		return "spooling"
	case Draining:
		return "draining"
	}
	return "unknown"
}
