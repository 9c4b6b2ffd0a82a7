package negotiation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/telepeer/internal/signaling"
)

// journal records calls across fakes so tests can assert relative order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// fakePeer implements Peer without any networking.
type fakePeer struct {
	n     int
	log   *journal
	hooks PeerHooks

	offerSDP  string
	answerSDP string

	errCreateOffer  error
	errCreateAnswer error
	errSetLocal     error
	errSetRemote    error
	errTransceiver  error

	transceivers []string
	local        []webrtc.SessionDescription
	remote       []webrtc.SessionDescription
	candidates   []string
	closed       bool
}

var _ Peer = (*fakePeer)(nil)

func (p *fakePeer) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	p.log.add("peer%d:create-offer", p.n)
	if p.errCreateOffer != nil {
		return webrtc.SessionDescription{}, p.errCreateOffer
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.offerSDP}, nil
}

func (p *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	p.log.add("peer%d:create-answer", p.n)
	if p.errCreateAnswer != nil {
		return webrtc.SessionDescription{}, p.errCreateAnswer
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.answerSDP}, nil
}

func (p *fakePeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.log.add("peer%d:set-local:%s", p.n, desc.Type)
	if p.errSetLocal != nil {
		return p.errSetLocal
	}
	p.local = append(p.local, desc)
	return nil
}

func (p *fakePeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.log.add("peer%d:set-remote:%s", p.n, desc.Type)
	if p.errSetRemote != nil {
		return p.errSetRemote
	}
	p.remote = append(p.remote, desc)
	return nil
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.log.add("peer%d:add-candidate:%s", p.n, c.Candidate)
	p.candidates = append(p.candidates, c.Candidate)
	return nil
}

func (p *fakePeer) AddTransceiver(kind webrtc.RTPCodecType, dir webrtc.RTPTransceiverDirection) error {
	if p.errTransceiver != nil {
		return p.errTransceiver
	}
	p.transceivers = append(p.transceivers, kind.String()+"/"+dir.String())
	return nil
}

func (p *fakePeer) WriteRTCP([]rtcp.Packet) error { return nil }

func (p *fakePeer) Close() error {
	p.log.add("peer%d:close", p.n)
	p.closed = true
	return nil
}

// fakeFactory hands out fakePeers and remembers them.
type fakeFactory struct {
	log       *journal
	err       error
	configure func(*fakePeer)
	peers     []*fakePeer
}

func (f *fakeFactory) New(hooks PeerHooks) (Peer, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePeer{
		n:         len(f.peers) + 1,
		log:       f.log,
		hooks:     hooks,
		offerSDP:  "offer",
		answerSDP: "answer",
	}
	if f.configure != nil {
		f.configure(p)
	}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakeFactory) live() int {
	n := 0
	for _, p := range f.peers {
		if !p.closed {
			n++
		}
	}
	return n
}

// fakeChannel records outbound messages.
type fakeChannel struct {
	log  *journal
	err  error
	mu   sync.Mutex
	sent []signaling.Message
}

func (c *fakeChannel) Send(msg signaling.Message) error {
	c.log.add("send:%s", msg.Type)
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) messages() []signaling.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]signaling.Message(nil), c.sent...)
}

func (c *fakeChannel) types() []signaling.MessageType {
	var out []signaling.MessageType
	for _, m := range c.messages() {
		out = append(out, m.Type)
	}
	return out
}

var errBoom = errors.New("boom")

func candidate(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}
