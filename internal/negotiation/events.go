package negotiation

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/telepeer/internal/signaling"
)

// event is one input of the session loop. The set below is the complete
// dispatch table; see (*Session).dispatch.
type event interface {
	fmt.Stringer
}

type (
	// channelOpen: the signaling channel is usable.
	channelOpen struct{}
	// inbound: a decoded signaling message arrived.
	inbound struct{ msg signaling.Message }
	// channelError: the signaling channel failed.
	channelError struct{ err error }
	// negotiationNeeded: one-shot answer trigger armed by an inbound offer.
	negotiationNeeded struct{ gen uint64 }
	// localCandidate: the handle gathered a candidate (nil ends gathering).
	localCandidate struct {
		gen       uint64
		candidate *webrtc.ICECandidateInit
	}
	// connectionState: the handle's connectivity changed.
	connectionState struct {
		gen   uint64
		state webrtc.PeerConnectionState
	}
	// track: the handle received a remote track.
	track struct {
		gen      uint64
		track    *webrtc.TrackRemote
		receiver *webrtc.RTPReceiver
	}
	// timeout: the negotiation deadline of a round expired.
	timeout struct{ gen uint64 }
	// closeRequested: the owner is shutting the session down.
	closeRequested struct{}
)

func (channelOpen) String() string       { return "channel-open" }
func (e inbound) String() string         { return "message:" + string(e.msg.Type) }
func (channelError) String() string      { return "channel-error" }
func (negotiationNeeded) String() string { return "negotiation-needed" }
func (localCandidate) String() string    { return "local-candidate" }
func (e connectionState) String() string { return "connection-state:" + e.state.String() }
func (track) String() string             { return "track" }
func (timeout) String() string           { return "timeout" }
func (closeRequested) String() string    { return "close" }

// mailbox is an unbounded FIFO of events. post never blocks, so pion
// callbacks cannot stall on a busy loop.
type mailbox struct {
	mu     sync.Mutex
	items  []event
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) post(ev event) {
	m.mu.Lock()
	m.items = append(m.items, ev)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// take removes and returns everything queued so far.
func (m *mailbox) take() []event {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}

// ready is signalled whenever something was posted.
func (m *mailbox) ready() <-chan struct{} { return m.signal }
