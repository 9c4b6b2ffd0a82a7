package negotiation

import (
	"context"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/telepeer/internal/codec"
	"github.com/1ureka/telepeer/internal/signaling"
)

const browserOffer = "v=0\r\n" +
	"o=- 1 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96 97 98 100\r\n" +
	"a=rtpmap:96 VP8/90000\r\n" +
	"a=rtcp-fb:96 nack\r\n" +
	"a=rtpmap:97 rtx/90000\r\n" +
	"a=fmtp:97 apt=96\r\n" +
	"a=rtpmap:98 VP9/90000\r\n" +
	"a=rtpmap:100 H264/90000\r\n" +
	"a=fmtp:100 packetization-mode=1\r\n"

type harness struct {
	log     *journal
	factory *fakeFactory
	ch      *fakeChannel
	s       *Session
	errs    []error
	states  []State
}

func newHarness(role Role, mutate ...func(*Options)) *harness {
	h := &harness{log: &journal{}}
	h.factory = &fakeFactory{log: h.log}
	h.ch = &fakeChannel{log: h.log}

	opts := Options{
		Role:          role,
		NewPeer:       h.factory.New,
		OnError:       func(err error) { h.errs = append(h.errs, err) },
		OnStateChange: func(st State) { h.states = append(h.states, st) },
	}
	for _, m := range mutate {
		m(&opts)
	}
	h.s = NewSession(h.ch, opts)
	return h
}

// post enqueues events the way the public methods do and runs the loop body.
func (h *harness) post(evs ...event) {
	for _, ev := range evs {
		h.s.inbox.post(ev)
	}
	h.s.flush()
}

func msg(m signaling.Message) event { return inbound{msg: m} }

func TestInitiatorSendsFilteredOffer(t *testing.T) {
	h := newHarness(Initiator, func(o *Options) { o.Codec = codec.VP8 })
	h.factory.configure = func(p *fakePeer) { p.offerSDP = browserOffer }

	h.post(channelOpen{})

	require.Len(t, h.factory.peers, 1)
	peer := h.factory.peers[0]
	assert.Equal(t, []string{"video/recvonly", "audio/recvonly"}, peer.transceivers)

	sent := h.ch.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, signaling.MsgTypeOffer, sent[0].Type)
	assert.NotContains(t, sent[0].SDP, "H264/90000")
	assert.NotContains(t, sent[0].SDP, "VP9/90000")
	assert.Contains(t, sent[0].SDP, "a=rtpmap:96 VP8/90000")

	require.Len(t, peer.local, 1)
	assert.Equal(t, sent[0].SDP, peer.local[0].SDP)
	assert.Equal(t, AwaitingRemoteDescription, h.s.State())
	assert.Equal(t, []State{AwaitingLocalDescription, AwaitingRemoteDescription}, h.states)
}

func TestInitiatorIgnoresSecondOpen(t *testing.T) {
	h := newHarness(Initiator)
	h.post(channelOpen{}, channelOpen{})

	assert.Len(t, h.factory.peers, 1)
	assert.Equal(t, []signaling.MessageType{signaling.MsgTypeOffer}, h.ch.types())
}

func TestInitiatorOfferFailureReturnsToIdle(t *testing.T) {
	testCases := []struct {
		name      string
		configure func(*fakePeer)
	}{
		{"create offer", func(p *fakePeer) { p.errCreateOffer = errBoom }},
		{"set local", func(p *fakePeer) { p.errSetLocal = errBoom }},
		{"transceiver", func(p *fakePeer) { p.errTransceiver = errBoom }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(Initiator)
			h.factory.configure = tc.configure

			h.post(channelOpen{})

			assert.Equal(t, Idle, h.s.State())
			assert.Nil(t, h.s.peer)
			require.Len(t, h.factory.peers, 1)
			assert.True(t, h.factory.peers[0].closed)
			assert.Empty(t, h.ch.messages())
			assert.Empty(t, h.errs)
		})
	}
}

func TestInitiatorFactoryFailure(t *testing.T) {
	h := newHarness(Initiator)
	h.factory.err = errBoom

	h.post(channelOpen{})

	assert.Equal(t, Idle, h.s.State())
	assert.Nil(t, h.s.peer)
	assert.Empty(t, h.ch.messages())
}

func TestOfferSendFailureNotifiesOwner(t *testing.T) {
	h := newHarness(Initiator)
	h.ch.err = errBoom

	h.post(channelOpen{})

	assert.Equal(t, Idle, h.s.State())
	require.Len(t, h.errs, 1)
	assert.ErrorIs(t, h.errs[0], ErrTransport)
	assert.ErrorIs(t, h.errs[0], errBoom)
}

func TestInitiatorAppliesAnswerThenDrains(t *testing.T) {
	h := newHarness(Initiator)
	h.post(channelOpen{})
	peer := h.factory.peers[0]

	h.post(
		msg(signaling.Candidate(candidate("c1"))),
		msg(signaling.Candidate(candidate("c2"))),
	)
	assert.Empty(t, peer.candidates)
	assert.Equal(t, 2, h.s.candidates.Len())

	h.post(msg(signaling.Answer("answer-sdp")))

	require.Len(t, peer.remote, 1)
	assert.Equal(t, webrtc.SDPTypeAnswer, peer.remote[0].Type)
	assert.Equal(t, "answer-sdp", peer.remote[0].SDP)
	assert.Equal(t, []string{"c1", "c2"}, peer.candidates)
	assert.Equal(t, Stable, h.s.State())

	h.post(msg(signaling.Candidate(candidate("c3"))))
	assert.Equal(t, []string{"c1", "c2", "c3"}, peer.candidates)
}

func TestAnswerFailureKeepsCandidatesBuffered(t *testing.T) {
	h := newHarness(Initiator)
	h.factory.configure = func(p *fakePeer) { p.errSetRemote = errBoom }
	h.post(channelOpen{})

	h.post(
		msg(signaling.Candidate(candidate("c1"))),
		msg(signaling.Answer("answer-sdp")),
	)

	assert.Equal(t, AwaitingRemoteDescription, h.s.State())
	assert.Empty(t, h.factory.peers[0].candidates)
	assert.Equal(t, 1, h.s.candidates.Len())
	assert.Empty(t, h.errs)
}

func TestAnswerWithoutConnectionIsIgnored(t *testing.T) {
	h := newHarness(Initiator)

	h.post(msg(signaling.Answer("answer-sdp")))

	assert.Equal(t, Idle, h.s.State())
	assert.Empty(t, h.factory.peers)
	assert.Empty(t, h.ch.messages())
	assert.Empty(t, h.errs)
}

func TestResponderAnswersAndReplaysCandidates(t *testing.T) {
	h := newHarness(Responder)

	h.post(channelOpen{})
	assert.Empty(t, h.factory.peers)
	assert.Empty(t, h.ch.messages())

	// The answer trigger is queued behind the offer, so these candidates
	// arrive before the remote description is applied.
	h.s.inbox.post(msg(signaling.Offer("offer-sdp")))
	h.s.inbox.post(msg(signaling.Candidate(candidate("c1"))))
	h.s.inbox.post(msg(signaling.Candidate(candidate("c2"))))
	h.s.flush()

	require.Len(t, h.factory.peers, 1)
	peer := h.factory.peers[0]
	assert.Equal(t, []signaling.MessageType{signaling.MsgTypeAnswer}, h.ch.types())
	assert.Equal(t, []string{"c1", "c2"}, peer.candidates)
	assert.Equal(t, Stable, h.s.State())

	assert.Equal(t, []string{
		"peer1:set-remote:offer",
		"peer1:create-answer",
		"peer1:set-local:answer",
		"send:answer",
		"peer1:add-candidate:c1",
		"peer1:add-candidate:c2",
	}, h.log.list())
}

func TestResponderFailureKeepsConnection(t *testing.T) {
	h := newHarness(Responder)
	h.factory.configure = func(p *fakePeer) { p.errCreateAnswer = errBoom }

	h.post(msg(signaling.Offer("offer-sdp")))

	require.Len(t, h.factory.peers, 1)
	assert.False(t, h.factory.peers[0].closed)
	assert.Equal(t, AwaitingLocalDescription, h.s.State())
	assert.Empty(t, h.ch.messages())
}

func TestRenegotiationReplacesConnection(t *testing.T) {
	h := newHarness(Responder)

	h.post(msg(signaling.Offer("offer-1")))
	h.post(msg(signaling.Candidate(candidate("c1"))))
	require.Equal(t, Stable, h.s.State())
	first := h.factory.peers[0]
	assert.Equal(t, []string{"c1"}, first.candidates)

	h.s.inbox.post(msg(signaling.Offer("offer-2")))
	h.s.inbox.post(msg(signaling.Candidate(candidate("c2"))))
	h.s.flush()

	require.Len(t, h.factory.peers, 2)
	second := h.factory.peers[1]
	assert.True(t, first.closed)
	assert.False(t, second.closed)
	assert.Equal(t, 1, h.factory.live())
	assert.Equal(t, []string{"c1"}, first.candidates)
	assert.Equal(t, []string{"c2"}, second.candidates)
	require.Len(t, second.remote, 1)
	assert.Equal(t, "offer-2", second.remote[0].SDP)
	assert.Equal(t, []signaling.MessageType{signaling.MsgTypeAnswer, signaling.MsgTypeAnswer}, h.ch.types())
	assert.Equal(t, Stable, h.s.State())
}

func TestRenegotiationDiscardsPendingRound(t *testing.T) {
	h := newHarness(Responder)

	// Both offers land before either answer trigger runs.
	h.s.inbox.post(msg(signaling.Offer("offer-1")))
	h.s.inbox.post(msg(signaling.Candidate(candidate("stale"))))
	h.s.inbox.post(msg(signaling.Offer("offer-2")))
	h.s.flush()

	require.Len(t, h.factory.peers, 2)
	first, second := h.factory.peers[0], h.factory.peers[1]
	assert.True(t, first.closed)
	assert.Empty(t, first.remote, "stale trigger must not touch the discarded connection")
	assert.Empty(t, second.candidates, "candidates of the discarded round must be dropped")
	require.Len(t, second.remote, 1)
	assert.Equal(t, "offer-2", second.remote[0].SDP)
	assert.Equal(t, 1, h.factory.live())
	assert.Len(t, h.ch.messages(), 1)
}

func TestLocalCandidatesAreSent(t *testing.T) {
	h := newHarness(Initiator)
	h.post(channelOpen{})
	peer := h.factory.peers[0]

	mid := "0"
	peer.hooks.OnICECandidate(&webrtc.ICECandidateInit{Candidate: "local-1", SDPMid: &mid})
	peer.hooks.OnICECandidate(nil)
	h.s.flush()

	sent := h.ch.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, signaling.MsgTypeCandidate, sent[1].Type)
	require.NotNil(t, sent[1].ICE)
	assert.Equal(t, "local-1", sent[1].ICE.Candidate)
}

func TestStaleHookEventsAreDropped(t *testing.T) {
	var states []webrtc.PeerConnectionState
	h := newHarness(Responder, func(o *Options) {
		o.OnConnectionState = func(st webrtc.PeerConnectionState) { states = append(states, st) }
	})
	h.post(msg(signaling.Offer("offer-1")))
	first := h.factory.peers[0]
	h.post(msg(signaling.Offer("offer-2")))
	before := len(h.ch.messages())

	first.hooks.OnICECandidate(&webrtc.ICECandidateInit{Candidate: "old"})
	first.hooks.OnConnectionStateChange(webrtc.PeerConnectionStateFailed)
	h.s.flush()

	assert.Len(t, h.ch.messages(), before)
	assert.Empty(t, states)

	h.factory.peers[1].hooks.OnConnectionStateChange(webrtc.PeerConnectionStateConnected)
	h.s.flush()
	assert.Equal(t, []webrtc.PeerConnectionState{webrtc.PeerConnectionStateConnected}, states)
}

func TestTrackIsForwardedWithFeedback(t *testing.T) {
	var streams []Stream
	h := newHarness(Responder, func(o *Options) {
		o.OnStream = func(s Stream) { streams = append(streams, s) }
	})
	h.post(msg(signaling.Offer("offer-1")))

	h.factory.peers[0].hooks.OnTrack(nil, nil)
	h.s.flush()

	require.Len(t, streams, 1)
	assert.Same(t, h.factory.peers[0], streams[0].Feedback)
}

func TestChannelErrorNotifiesOwner(t *testing.T) {
	h := newHarness(Initiator)

	h.s.HandleError(errBoom)
	h.s.flush()

	require.Len(t, h.errs, 1)
	assert.ErrorIs(t, h.errs[0], ErrTransport)
	assert.ErrorIs(t, h.errs[0], errBoom)
	assert.Equal(t, Idle, h.s.State())
}

func TestProtocolViolationsAreNotFatal(t *testing.T) {
	h := newHarness(Responder)

	h.post(
		msg(signaling.Message{Type: "ping"}),
		msg(signaling.Message{Type: signaling.MsgTypeCandidate}),
		msg(signaling.Close()),
		msg(signaling.Offer("offer-1")),
	)

	assert.Equal(t, Stable, h.s.State())
	assert.Empty(t, h.errs)
}

func TestCloseIsTerminal(t *testing.T) {
	h := newHarness(Responder)
	h.post(msg(signaling.Offer("offer-1")))

	h.s.Close()
	h.s.flush()

	assert.Equal(t, Closed, h.s.State())
	assert.True(t, h.factory.peers[0].closed)

	h.post(msg(signaling.Offer("offer-2")), channelOpen{})
	assert.Len(t, h.factory.peers, 1)
	assert.Equal(t, Closed, h.s.State())
}

func TestNegotiationTimeout(t *testing.T) {
	h := newHarness(Initiator, func(o *Options) { o.NegotiationTimeout = time.Hour })
	h.post(channelOpen{})

	h.post(timeout{gen: h.s.gen})
	require.Len(t, h.errs, 1)
	assert.ErrorIs(t, h.errs[0], ErrNegotiation)
	assert.Equal(t, AwaitingRemoteDescription, h.s.State())

	h.post(msg(signaling.Answer("answer-sdp")), timeout{gen: h.s.gen})
	assert.Len(t, h.errs, 1)
}

func TestRunLoop(t *testing.T) {
	h := newHarness(Initiator)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.s.Run(ctx) }()

	h.s.HandleOpen()
	require.Eventually(t, func() bool {
		return h.s.State() == AwaitingRemoteDescription
	}, 5*time.Second, 10*time.Millisecond)

	h.s.HandleMessage(signaling.Answer("answer-sdp"))
	require.Eventually(t, func() bool {
		return h.s.State() == Stable
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, Closed, h.s.State())
	assert.Equal(t, "peer1:create-offer", h.log.list()[0])
	assert.True(t, h.factory.peers[0].closed)
}
