package sweep

import "fmt"

// State is the driver's lifecycle position.
type State int

const (
	NotStarted State = iota
	Preparing
	Sweeping
	Finalizing
	Done
)

var stateNames = [...]string{"not_started", "preparing", "sweeping", "finalizing", "done"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}
