package negotiation

import (
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/telepeer/internal/signaling"
)

// RTCPWriter sends feedback packets (e.g. picture loss indications) to the
// remote sender.
type RTCPWriter interface {
	WriteRTCP(pkts []rtcp.Packet) error
}

// Peer is the real-time connection handle driven by a Session.
type Peer interface {
	RTCPWriter

	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	AddTransceiver(kind webrtc.RTPCodecType, direction webrtc.RTPTransceiverDirection) error
	Close() error
}

// PeerHooks are the callbacks a Peer reports through. They may be invoked
// from any goroutine.
type PeerHooks struct {
	// OnICECandidate receives each gathered local candidate; nil marks the
	// end of gathering.
	OnICECandidate func(candidate *webrtc.ICECandidateInit)
	// OnConnectionStateChange receives connectivity state changes.
	OnConnectionStateChange func(state webrtc.PeerConnectionState)
	// OnTrack receives each remote media track.
	OnTrack func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
}

// PeerFactory creates a fresh connection handle wired to hooks.
type PeerFactory func(hooks PeerHooks) (Peer, error)

// Channel is the outbound half of the signaling transport.
type Channel interface {
	Send(msg signaling.Message) error
}

// Stream is a negotiated remote track handed to the media consumer.
type Stream struct {
	Track    *webrtc.TrackRemote
	Receiver *webrtc.RTPReceiver
	Feedback RTCPWriter
}
