package ws

// State of a Connection. The only path is
// Closed -> Connecting -> Open -> Closing -> Closed, and a Connection never
// leaves the final Closed; reconnecting needs a new one.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}
