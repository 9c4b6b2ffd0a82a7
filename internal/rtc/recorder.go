package rtc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/h264writer"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// ErrUnsupportedCodec is returned by NewRecorder for codecs without a
// container writer.
var ErrUnsupportedCodec = errors.New("no recorder for codec")

const (
	opusSampleRate = 48000
	opusChannels   = 2
)

// RecordingPath returns the file a track with the given codec is written to,
// or "" when the codec cannot be recorded.
func RecordingPath(dir, mimeType, name string) string {
	var ext string
	switch {
	case strings.EqualFold(mimeType, webrtc.MimeTypeVP8):
		ext = ".ivf"
	case strings.EqualFold(mimeType, webrtc.MimeTypeH264):
		ext = ".h264"
	case strings.EqualFold(mimeType, webrtc.MimeTypeOpus):
		ext = ".ogg"
	default:
		return ""
	}
	return filepath.Join(dir, name+ext)
}

// NewRecorder creates a Sink that writes a track of mimeType into dir:
// VP8 as IVF, H.264 as an Annex-B stream and Opus as Ogg.
func NewRecorder(dir, mimeType, name string) (Sink, error) {
	path := RecordingPath(dir, mimeType, name)
	if path == "" {
		return nil, fmt.Errorf("%w %s", ErrUnsupportedCodec, mimeType)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}

	var (
		sink Sink
		err  error
	)
	switch filepath.Ext(path) {
	case ".ivf":
		sink, err = ivfwriter.New(path)
	case ".h264":
		sink, err = h264writer.New(path)
	case ".ogg":
		sink, err = oggwriter.New(path, opusSampleRate, opusChannels)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return sink, nil
}
