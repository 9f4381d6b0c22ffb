package stream

// State is the WebSocket ingestor connection state. Transitions only
// move along the machine below; CLOSED is terminal and reached only on
// an authentication rejection.
//
//	DISCONNECTED -> CONNECTING -> AUTHENTICATING -> AUTHENTICATED -> SUBSCRIBED
//	SUBSCRIBED <-> DEGRADED
//	AUTHENTICATING -> CLOSED (bad credentials)
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateAuthenticated
	StateSubscribed
	StateDegraded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateSubscribed:
		return "SUBSCRIBED"
	case StateDegraded:
		return "DEGRADED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// validNext reports whether the transition from s to next is allowed.
func (s State) validNext(next State) bool {
	switch s {
	case StateDisconnected:
		return next == StateConnecting
	case StateConnecting:
		return next == StateAuthenticating || next == StateDisconnected
	case StateAuthenticating:
		return next == StateAuthenticated || next == StateClosed || next == StateDisconnected
	case StateAuthenticated:
		return next == StateSubscribed || next == StateDisconnected
	case StateSubscribed:
		return next == StateDegraded || next == StateDisconnected
	case StateDegraded:
		return next == StateSubscribed || next == StateDisconnected
	case StateClosed:
		return false
	}
	return false
}
