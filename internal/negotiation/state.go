package negotiation

// State is the negotiation phase of a Session.
type State int32

const (
	// Idle: no connection handle exists.
	Idle State = iota
	// AwaitingLocalDescription: a handle exists and our offer or answer is being produced.
	AwaitingLocalDescription
	// AwaitingRemoteDescription: our offer was sent, the answer has not been applied.
	AwaitingRemoteDescription
	// Stable: the remote description is applied and candidates flow freely.
	Stable
	// Closed is terminal.
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingLocalDescription:
		return "awaiting-local-description"
	case AwaitingRemoteDescription:
		return "awaiting-remote-description"
	case Stable:
		return "stable"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role decides who sends the first offer.
type Role string

const (
	// Initiator sends an offer as soon as the signaling channel opens.
	Initiator Role = "offer"
	// Responder waits for the remote offer.
	Responder Role = "answer"
)
