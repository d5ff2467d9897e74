package stomp

// State is the connection lifecycle of a Client:
//
//	Disconnected -> Connecting -> ConnectedUnidentified -> ConnectedIdentified -> Disconnected
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnectedUnidentified
	StateConnectedIdentified
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnectedUnidentified:
		return "connected-unidentified"
	case StateConnectedIdentified:
		return "connected-identified"
	default:
		return "unknown"
	}
}
