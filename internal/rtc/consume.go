package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/telepeer/internal/negotiation"
	"github.com/1ureka/telepeer/internal/util"
)

// keyframeInterval is how often a picture loss indication is sent on video
// tracks so a late-joining decoder recovers quickly.
const keyframeInterval = 3 * time.Second

// Sink receives the RTP packets of one track. pion's media writers satisfy it.
type Sink interface {
	WriteRTP(pkt *rtp.Packet) error
	Close() error
}

type rtpReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Consume reads stream until the track ends, counting packets and losses
// into util.Stats. Video tracks get periodic keyframe requests. sink may be
// nil; it is closed when Consume returns.
func Consume(ctx context.Context, stream negotiation.Stream, sink Sink) error {
	track := stream.Track
	util.Stats.AddTrack()
	util.LogInfo("receiving %s track (ssrc=%d, codec=%s)", track.Kind(), track.SSRC(), track.Codec().MimeType)

	var feedback negotiation.RTCPWriter
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		feedback = stream.Feedback
	}
	return consume(ctx, track, uint32(track.SSRC()), feedback, sink)
}

func consume(ctx context.Context, src rtpReader, ssrc uint32, feedback negotiation.RTCPWriter, sink Sink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	defer func() {
		if sink != nil {
			if err := sink.Close(); err != nil {
				util.LogWarning("failed to close recording (ssrc=%d): %v", ssrc, err)
			}
		}
	}()

	if feedback != nil {
		requestKeyframe(feedback, ssrc)
		go keyframeLoop(ctx, feedback, ssrc)
	}

	var seq sequenceTracker
	for {
		pkt, _, err := src.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				util.LogDebug("track ended (ssrc=%d)", ssrc)
				return nil
			}
			return fmt.Errorf("failed to read RTP (ssrc=%d): %w", ssrc, err)
		}

		util.Stats.AddPacket(len(pkt.Payload))
		if lost := seq.observe(pkt.SequenceNumber); lost > 0 {
			util.Stats.AddLost(lost)
		}

		if sink != nil {
			if err := sink.WriteRTP(pkt); err != nil {
				util.LogWarning("recording stopped (ssrc=%d): %v", ssrc, err)
				sink.Close()
				sink = nil
			}
		}
	}
}

func keyframeLoop(ctx context.Context, feedback negotiation.RTCPWriter, ssrc uint32) {
	ticker := time.NewTicker(keyframeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			requestKeyframe(feedback, ssrc)
		case <-ctx.Done():
			return
		}
	}
}

func requestKeyframe(feedback negotiation.RTCPWriter, ssrc uint32) {
	err := feedback.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}})
	if err != nil {
		util.LogDebug("failed to send PLI (ssrc=%d): %v", ssrc, err)
		return
	}
	util.Stats.AddKeyframeRequest()
}

// sequenceTracker counts RTP sequence gaps. Duplicates and late packets
// (more than half the sequence space behind) are not counted.
type sequenceTracker struct {
	started bool
	last    uint16
}

// observe records seq and returns how many packets were skipped since the
// previous one.
func (t *sequenceTracker) observe(seq uint16) int {
	if !t.started {
		t.started = true
		t.last = seq
		return 0
	}

	diff := seq - t.last
	if diff == 0 || diff >= 0x8000 {
		return 0
	}
	t.last = seq
	return int(diff) - 1
}
