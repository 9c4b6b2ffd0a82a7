package negotiation

import "errors"

// Error kinds. Concrete errors wrap one of these, so callers classify them
// with errors.Is.
var (
	// ErrTransport marks a failure of the signaling channel.
	ErrTransport = errors.New("transport error")
	// ErrNegotiation marks a failed offer/answer or description step.
	ErrNegotiation = errors.New("negotiation error")
	// ErrProtocol marks a message that is unexpected in the current state.
	ErrProtocol = errors.New("protocol violation")
)
