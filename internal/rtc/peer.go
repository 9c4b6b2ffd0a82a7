// Package rtc provides the pion-backed connection handles and media
// consumption used by a negotiation session.
package rtc

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/telepeer/internal/codec"
	"github.com/1ureka/telepeer/internal/negotiation"
	"github.com/1ureka/telepeer/internal/util"
)

// DefaultSTUN is used when no ICE server is configured.
const DefaultSTUN = "stun:stun.l.google.com:19302"

// Config holds the connection-level settings.
type Config struct {
	ICEServers []string
	// Codec restricts the video codecs the engine negotiates. None keeps
	// H264, VP8 and VP9.
	Codec codec.Preference
}

// Factory creates PeerConnections that share one pion API instance.
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

// NewFactory builds a pion API offering Opus plus the video codecs allowed by
// cfg.Codec, with the default interceptors (NACK, RTCP reports, TWCC) and
// pion's logging routed onto pterm.
func NewFactory(cfg Config) (*Factory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := registerCodecs(mediaEngine, cfg.Codec); err != nil {
		return nil, err
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	settings := webrtc.SettingEngine{LoggerFactory: util.PionLoggerFactory{}}

	servers := cfg.ICEServers
	if len(servers) == 0 {
		servers = []string{DefaultSTUN}
	}

	return &Factory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithInterceptorRegistry(registry),
			webrtc.WithSettingEngine(settings),
		),
		config: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: servers}},
		},
	}, nil
}

// NewPeer implements negotiation.PeerFactory.
func (f *Factory) NewPeer(hooks negotiation.PeerHooks) (negotiation.Peer, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, err
	}
	return newConnection(pc, hooks), nil
}

// Connection adapts a PeerConnection to negotiation.Peer.
type Connection struct {
	pc *webrtc.PeerConnection
}

var _ negotiation.Peer = (*Connection)(nil)

func newConnection(pc *webrtc.PeerConnection, hooks negotiation.PeerHooks) *Connection {
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if hooks.OnICECandidate == nil {
			return
		}
		if c == nil {
			hooks.OnICECandidate(nil)
			return
		}
		init := c.ToJSON()
		hooks.OnICECandidate(&init)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if hooks.OnConnectionStateChange != nil {
			hooks.OnConnectionStateChange(state)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if hooks.OnTrack != nil {
			hooks.OnTrack(track, receiver)
		}
	})

	return &Connection{pc: pc}
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

func (c *Connection) CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(options)
}

func (c *Connection) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *Connection) SetLocalDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(desc)
}

func (c *Connection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (c *Connection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}

// AddTransceiver adds a transceiver of kind so the description carries an
// m-line for it.
func (c *Connection) AddTransceiver(kind webrtc.RTPCodecType, direction webrtc.RTPTransceiverDirection) error {
	_, err := c.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{Direction: direction})
	return err
}

// ---------------------------------------------------------------------------
// Media & lifecycle
// ---------------------------------------------------------------------------

// WriteRTCP sends feedback to the remote sender.
func (c *Connection) WriteRTCP(pkts []rtcp.Packet) error {
	return c.pc.WriteRTCP(pkts)
}

func (c *Connection) Close() error {
	return c.pc.Close()
}
