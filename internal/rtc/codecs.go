package rtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/telepeer/internal/codec"
)

var videoFeedback = []webrtc.RTCPFeedback{
	{Type: "goog-remb"},
	{Type: "ccm", Parameter: "fir"},
	{Type: "nack"},
	{Type: "nack", Parameter: "pli"},
}

// videoCodec is one video payload type and its retransmission twin.
type videoCodec struct {
	pref       codec.Preference
	mimeType   string
	fmtp       string
	payload    webrtc.PayloadType
	rtxPayload webrtc.PayloadType
}

// videoCodecs is exactly the set codec.Filter knows how to strip, in the
// payload type layout browsers use.
var videoCodecs = []videoCodec{
	{codec.VP8, webrtc.MimeTypeVP8, "", 96, 97},
	{codec.VP9, webrtc.MimeTypeVP9, "profile-id=0", 98, 99},
	{codec.H264, webrtc.MimeTypeH264, "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f", 102, 103},
}

// registerCodecs registers Opus and the video codecs allowed by keep. With
// codec.None all of them are offered; otherwise only keep and its rtx are, so
// the descriptions pion generates are already filtered.
func registerCodecs(m *webrtc.MediaEngine, keep codec.Preference) error {
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return fmt.Errorf("failed to register opus: %w", err)
	}

	for _, vc := range videoCodecs {
		if keep != codec.None && vc.pref != keep {
			continue
		}

		if err := m.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     vc.mimeType,
				ClockRate:    90000,
				SDPFmtpLine:  vc.fmtp,
				RTCPFeedback: videoFeedback,
			},
			PayloadType: vc.payload,
		}, webrtc.RTPCodecTypeVideo); err != nil {
			return fmt.Errorf("failed to register %s: %w", vc.pref, err)
		}

		if err := m.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeRTX,
				ClockRate:   90000,
				SDPFmtpLine: fmt.Sprintf("apt=%d", vc.payload),
			},
			PayloadType: vc.rtxPayload,
		}, webrtc.RTPCodecTypeVideo); err != nil {
			return fmt.Errorf("failed to register %s rtx: %w", vc.pref, err)
		}
	}
	return nil
}
