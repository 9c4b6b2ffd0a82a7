// Package negotiation drives the offer/answer handshake of one media
// session. A Session owns at most one connection handle, buffers remote
// candidates until a remote description is applied, and runs every step on a
// single event loop.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/telepeer/internal/codec"
	"github.com/1ureka/telepeer/internal/signaling"
	"github.com/1ureka/telepeer/internal/util"
)

// Options configures a Session.
type Options struct {
	Role  Role
	Codec codec.Preference

	// NewPeer creates connection handles. Required.
	NewPeer PeerFactory

	// OfferOptions is passed to CreateOffer.
	OfferOptions *webrtc.OfferOptions

	// NegotiationTimeout reports a round that has not reached Stable after
	// this long. Zero waits forever. Rounds are never retried.
	NegotiationTimeout time.Duration

	OnStream          func(Stream)
	OnError           func(error)
	OnConnectionState func(webrtc.PeerConnectionState)
	OnStateChange     func(State)
}

// Session is the negotiation state machine for one signaling channel.
// HandleOpen, HandleMessage, HandleError and Close only enqueue events; the
// work happens inside Run.
type Session struct {
	id    string
	ch    Channel
	opts  Options
	inbox *mailbox
	state atomic.Int32

	// Owned by the loop goroutine.
	peer         Peer
	gen          uint64
	candidates   *CandidateBuffer
	pendingOffer *webrtc.SessionDescription
}

// NewSession creates a Session in the Idle state. Call Run to start it.
func NewSession(ch Channel, opts Options) *Session {
	return &Session{
		id:         uuid.NewString()[:8],
		ch:         ch,
		opts:       opts,
		inbox:      newMailbox(),
		candidates: NewCandidateBuffer(),
	}
}

// ID is the short identifier used in log lines.
func (s *Session) ID() string { return s.id }

// State returns the current negotiation state.
func (s *Session) State() State { return State(s.state.Load()) }

// HandleOpen implements signaling.Handler.
func (s *Session) HandleOpen() { s.inbox.post(channelOpen{}) }

// HandleMessage implements signaling.Handler.
func (s *Session) HandleMessage(msg signaling.Message) { s.inbox.post(inbound{msg: msg}) }

// HandleError implements signaling.Handler.
func (s *Session) HandleError(err error) { s.inbox.post(channelError{err: err}) }

// Close tears down the connection handle and moves the session to Closed.
func (s *Session) Close() { s.inbox.post(closeRequested{}) }

// Run processes events until ctx is cancelled, then releases the handle.
func (s *Session) Run(ctx context.Context) error {
	defer s.release()

	util.LogDebug("[%s] session started (role=%s, codec=%s)", s.id, s.opts.Role, s.opts.Codec)
	for {
		select {
		case <-s.inbox.ready():
			s.flush()
		case <-ctx.Done():
			return nil
		}
	}
}

// flush dispatches queued events, including those posted while dispatching,
// until the mailbox is empty.
func (s *Session) flush() {
	for evs := s.inbox.take(); len(evs) > 0; evs = s.inbox.take() {
		for _, ev := range evs {
			s.dispatch(ev)
		}
	}
}

func (s *Session) release() {
	if s.State() == Closed {
		return
	}
	s.discardPeer()
	s.setState(Closed)
}

func (s *Session) dispatch(ev event) {
	if s.State() == Closed {
		util.LogDebug("[%s] session closed, ignoring %s", s.id, ev)
		return
	}

	switch ev := ev.(type) {
	case channelOpen:
		s.onChannelOpen()
	case inbound:
		s.onMessage(ev.msg)
	case channelError:
		s.fail(fmt.Errorf("%w: %w", ErrTransport, ev.err))
	case negotiationNeeded:
		if s.current(ev.gen, ev) {
			s.onNegotiationNeeded()
		}
	case localCandidate:
		if s.current(ev.gen, ev) {
			s.onLocalCandidate(ev.candidate)
		}
	case connectionState:
		if s.current(ev.gen, ev) {
			s.onConnectionState(ev.state)
		}
	case track:
		if s.current(ev.gen, ev) {
			s.onTrack(ev)
		}
	case timeout:
		if s.current(ev.gen, ev) {
			s.onTimeout()
		}
	case closeRequested:
		util.LogInfo("[%s] closing session", s.id)
		s.discardPeer()
		s.setState(Closed)
	}
}

// current reports whether an event produced by handle generation gen still
// refers to the live handle.
func (s *Session) current(gen uint64, ev event) bool {
	if s.peer == nil || gen != s.gen {
		util.LogDebug("[%s] dropping stale %s from round %d", s.id, ev, gen)
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Handshake
// ---------------------------------------------------------------------------

func (s *Session) onChannelOpen() {
	util.LogInfo("[%s] signaling channel open", s.id)
	if s.opts.Role != Initiator {
		util.LogInfo("[%s] waiting for remote offer", s.id)
		return
	}
	if s.peer != nil {
		s.fail(fmt.Errorf("%w: connection already exists", ErrProtocol))
		return
	}

	if err := s.newPeer(); err != nil {
		s.fail(err)
		return
	}
	s.setState(AwaitingLocalDescription)

	if err := s.makeOffer(); err != nil {
		s.fail(err)
		s.discardPeer()
		s.setState(Idle)
		return
	}
	s.setState(AwaitingRemoteDescription)
}

func (s *Session) makeOffer() error {
	offer, err := s.peer.CreateOffer(s.opts.OfferOptions)
	if err != nil {
		return fmt.Errorf("%w: CreateOffer: %w", ErrNegotiation, err)
	}
	offer.SDP = codec.Filter(offer.SDP, s.opts.Codec)

	if err := s.peer.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("%w: SetLocalDescription(offer): %w", ErrNegotiation, err)
	}
	if err := s.ch.Send(signaling.Offer(offer.SDP)); err != nil {
		return fmt.Errorf("%w: send offer: %w", ErrTransport, err)
	}
	util.LogInfo("[%s] offer sent (codec=%s)", s.id, s.opts.Codec)
	return nil
}

func (s *Session) onMessage(msg signaling.Message) {
	switch msg.Type {
	case signaling.MsgTypeOffer:
		s.onOffer(msg)
	case signaling.MsgTypeAnswer:
		s.onAnswer(msg)
	case signaling.MsgTypeCandidate:
		if msg.ICE == nil {
			s.fail(fmt.Errorf("%w: candidate message without ice", ErrProtocol))
			return
		}
		s.onRemoteCandidate(*msg.ICE)
	case signaling.MsgTypeClose:
		util.LogInfo("[%s] remote peer closed its connection", s.id)
	default:
		s.fail(fmt.Errorf("%w: unexpected message type %q", ErrProtocol, msg.Type))
	}
}

// onOffer always starts a fresh round on a fresh handle. The answer itself
// is produced by the negotiationNeeded event posted here.
func (s *Session) onOffer(msg signaling.Message) {
	desc, err := msg.Description()
	if err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrProtocol, err))
		return
	}
	util.LogInfo("[%s] received offer", s.id)

	if s.peer != nil {
		util.LogWarning("[%s] connection already exists, replacing it", s.id)
		s.discardPeer()
		s.setState(Idle)
	}

	if err := s.newPeer(); err != nil {
		s.fail(err)
		return
	}
	s.pendingOffer = &desc
	s.setState(AwaitingLocalDescription)
	s.inbox.post(negotiationNeeded{gen: s.gen})
}

func (s *Session) onNegotiationNeeded() {
	offer := s.pendingOffer
	s.pendingOffer = nil
	if offer == nil {
		return
	}

	if err := s.peer.SetRemoteDescription(*offer); err != nil {
		s.fail(fmt.Errorf("%w: SetRemoteDescription(offer): %w", ErrNegotiation, err))
		return
	}

	answer, err := s.peer.CreateAnswer()
	if err != nil {
		s.fail(fmt.Errorf("%w: CreateAnswer: %w", ErrNegotiation, err))
		return
	}
	if err := s.peer.SetLocalDescription(answer); err != nil {
		s.fail(fmt.Errorf("%w: SetLocalDescription(answer): %w", ErrNegotiation, err))
		return
	}
	if err := s.ch.Send(signaling.Answer(answer.SDP)); err != nil {
		s.fail(fmt.Errorf("%w: send answer: %w", ErrTransport, err))
		return
	}
	util.LogInfo("[%s] answer sent", s.id)
	s.logVideoCodecs(answer.SDP)

	s.setState(Stable)
	util.Stats.AddNegotiation()
	s.candidates.Drain(s.applyCandidate)
}

func (s *Session) onAnswer(msg signaling.Message) {
	if s.peer == nil {
		s.fail(fmt.Errorf("%w: answer received but no connection exists", ErrProtocol))
		return
	}
	desc, err := msg.Description()
	if err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrProtocol, err))
		return
	}
	util.LogInfo("[%s] received answer", s.id)

	if err := s.peer.SetRemoteDescription(desc); err != nil {
		s.fail(fmt.Errorf("%w: SetRemoteDescription(answer): %w", ErrNegotiation, err))
		return
	}
	s.logVideoCodecs(desc.SDP)

	s.setState(Stable)
	util.Stats.AddNegotiation()
	s.candidates.Drain(s.applyCandidate)
}

// ---------------------------------------------------------------------------
// Candidates
// ---------------------------------------------------------------------------

func (s *Session) onRemoteCandidate(c webrtc.ICECandidateInit) {
	if !s.candidates.Applied() {
		util.LogDebug("[%s] buffering remote candidate (%d waiting)", s.id, s.candidates.Len()+1)
	}
	s.candidates.Offer(c)
}

func (s *Session) applyCandidate(c webrtc.ICECandidateInit) {
	if s.peer == nil {
		util.LogWarning("[%s] no connection to add candidate to", s.id)
		return
	}
	if err := s.peer.AddICECandidate(c); err != nil {
		util.LogWarning("[%s] %v", s.id, fmt.Errorf("%w: AddICECandidate: %w", ErrNegotiation, err))
	}
}

func (s *Session) onLocalCandidate(c *webrtc.ICECandidateInit) {
	if c == nil {
		util.LogDebug("[%s] local ICE gathering complete", s.id)
		return
	}
	if err := s.ch.Send(signaling.Candidate(*c)); err != nil {
		s.fail(fmt.Errorf("%w: send candidate: %w", ErrTransport, err))
	}
}

// ---------------------------------------------------------------------------
// Handle lifecycle
// ---------------------------------------------------------------------------

// newPeer creates the next handle generation and adds the receive-only video
// and audio transceivers. On failure no handle is retained.
func (s *Session) newPeer() error {
	s.gen++
	gen := s.gen

	peer, err := s.opts.NewPeer(PeerHooks{
		OnICECandidate: func(c *webrtc.ICECandidateInit) {
			s.inbox.post(localCandidate{gen: gen, candidate: c})
		},
		OnConnectionStateChange: func(state webrtc.PeerConnectionState) {
			s.inbox.post(connectionState{gen: gen, state: state})
		},
		OnTrack: func(t *webrtc.TrackRemote, r *webrtc.RTPReceiver) {
			s.inbox.post(track{gen: gen, track: t, receiver: r})
		},
	})
	if err != nil {
		return fmt.Errorf("%w: create connection: %w", ErrNegotiation, err)
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if err := peer.AddTransceiver(kind, webrtc.RTPTransceiverDirectionRecvonly); err != nil {
			peer.Close()
			return fmt.Errorf("%w: add %s transceiver: %w", ErrNegotiation, kind, err)
		}
	}

	s.peer = peer
	util.LogDebug("[%s] connection #%d created", s.id, gen)

	if d := s.opts.NegotiationTimeout; d > 0 {
		time.AfterFunc(d, func() { s.inbox.post(timeout{gen: gen}) })
	}
	return nil
}

// discardPeer closes the handle and forgets everything tied to its round.
func (s *Session) discardPeer() {
	if s.peer != nil {
		if err := s.peer.Close(); err != nil {
			util.LogWarning("[%s] closing connection #%d: %v", s.id, s.gen, err)
		}
	}
	s.peer = nil
	s.pendingOffer = nil
	if n := s.candidates.Len(); n > 0 {
		util.LogDebug("[%s] discarding %d buffered candidates", s.id, n)
	}
	s.candidates = NewCandidateBuffer()
}

// ---------------------------------------------------------------------------
// Notifications
// ---------------------------------------------------------------------------

func (s *Session) onConnectionState(state webrtc.PeerConnectionState) {
	util.LogInfo("[%s] connection state: %s", s.id, state)
	if s.opts.OnConnectionState != nil {
		s.opts.OnConnectionState(state)
	}
}

func (s *Session) onTrack(ev track) {
	util.LogInfo("[%s] remote track received", s.id)
	if s.opts.OnStream != nil {
		s.opts.OnStream(Stream{Track: ev.track, Receiver: ev.receiver, Feedback: s.peer})
	}
}

func (s *Session) onTimeout() {
	state := s.State()
	if state == Stable {
		return
	}
	err := fmt.Errorf("%w: no stable session after %s (state %s)", ErrNegotiation, s.opts.NegotiationTimeout, state)
	util.LogError("[%s] %v", s.id, err)
	s.notify(err)
}

// fail logs err. Transport failures are also reported to the owner.
func (s *Session) fail(err error) {
	if errors.Is(err, ErrProtocol) {
		util.LogWarning("[%s] %v", s.id, err)
	} else {
		util.LogError("[%s] %v", s.id, err)
	}
	if errors.Is(err, ErrTransport) {
		s.notify(err)
	}
}

func (s *Session) notify(err error) {
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}

func (s *Session) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev == next {
		return
	}
	util.LogDebug("[%s] %s -> %s", s.id, prev, next)
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(next)
	}
}

func (s *Session) logVideoCodecs(sdp string) {
	names, err := codec.VideoCodecs(sdp)
	if err != nil {
		util.LogDebug("[%s] %v", s.id, err)
		return
	}
	util.LogInfo("[%s] video codecs: %s", s.id, strings.Join(names, ", "))
}
