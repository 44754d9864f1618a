package mqtt

import "fmt"

// State is the transport connection state. Negative values are local
// conditions; positive values are CONNACK return codes from the broker.
type State int

const (
	StateConnectionTimeout State = -4
	StateConnectionLost    State = -3
	StateConnectFailed     State = -2
	StateDisconnected      State = -1
	StateConnected         State = 0
	StateBadProtocol       State = 1
	StateBadClientID       State = 2
	StateUnavailable       State = 3
	StateBadCredentials    State = 4
	StateUnauthorized      State = 5
)

func (s State) String() string {
	switch s {
	case StateConnectionTimeout:
		return "connection_timeout"
	case StateConnectionLost:
		return "connection_lost"
	case StateConnectFailed:
		return "connect_failed"
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateBadProtocol:
		return "bad_protocol"
	case StateBadClientID:
		return "bad_client_id"
	case StateUnavailable:
		return "unavailable"
	case StateBadCredentials:
		return "bad_credentials"
	case StateUnauthorized:
		return "unauthorized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// stateFromReturnCode maps a CONNACK return code to a State. Codes outside
// the MQTT 3.1.1 range count as a failed connect.
func stateFromReturnCode(rc byte) State {
	if rc <= byte(StateUnauthorized) {
		return State(rc)
	}
	return StateConnectFailed
}
