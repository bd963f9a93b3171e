package model

// ConnState is the tri-state connection indicator exposed to consumers.
type ConnState int16

const (
	// [ZERO_VALUE_GUARD] Start from 1 to distinguish from uninitialized data.
	StateDisconnected ConnState = iota + 1
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
