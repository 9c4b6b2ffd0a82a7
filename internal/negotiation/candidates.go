package negotiation

import "github.com/pion/webrtc/v4"

// CandidateBuffer holds remote ICE candidates until a remote description has
// been applied. Until the first Drain, Offer appends in arrival order; Drain
// replays the backlog once and from then on Offer forwards immediately.
//
// It is owned by the session loop and needs no locking.
type CandidateBuffer struct {
	pending []webrtc.ICECandidateInit
	sink    func(webrtc.ICECandidateInit)
}

// NewCandidateBuffer returns an empty buffer in the buffering state.
func NewCandidateBuffer() *CandidateBuffer {
	return &CandidateBuffer{}
}

// Offer buffers c, or hands it to the sink once the buffer has been drained.
func (b *CandidateBuffer) Offer(c webrtc.ICECandidateInit) {
	if b.sink != nil {
		b.sink(c)
		return
	}
	b.pending = append(b.pending, c)
}

// Drain marks the remote description as applied and replays every buffered
// candidate to sink in arrival order. Later calls replay nothing.
func (b *CandidateBuffer) Drain(sink func(webrtc.ICECandidateInit)) {
	b.sink = sink
	pending := b.pending
	b.pending = nil
	for _, c := range pending {
		sink(c)
	}
}

// Applied reports whether Drain has run.
func (b *CandidateBuffer) Applied() bool { return b.sink != nil }

// Len returns the number of candidates still waiting.
func (b *CandidateBuffer) Len() int { return len(b.pending) }
