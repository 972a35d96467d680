package interceptor

// State is a controller's lifecycle state.
type State int

const (
	// StateInstalling: the generation's store is being opened and pre-warmed.
	StateInstalling State = iota

	// StateWaiting: installed, waiting for the host to activate it.
	StateWaiting

	// StateActivating: pruning older generations' stores and claiming clients.
	StateActivating

	// StateActive: intercepting requests with the network-first policy.
	StateActive

	// StateSuperseded: a newer generation activated; requests are forwarded untouched.
	StateSuperseded
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}
