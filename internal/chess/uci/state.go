package uci

import "errors"

// State is the session's protocol state.
type State int32

const (
	Stopped State = iota
	Handshaking
	Ready
	Searching
)

func (s State) String() string {
	switch s {
	case Handshaking:
		return "handshaking"
	case Ready:
		return "ready"
	case Searching:
		return "searching"
	default:
		return "stopped"
	}
}

var (
	// ErrEngineStopped is returned once the engine's output stream has ended
	// or the session was closed.
	ErrEngineStopped = errors.New("uci: engine stopped")
	// ErrNoBestMove is returned when a search produced no usable move in time.
	ErrNoBestMove = errors.New("uci: no best move")
)
