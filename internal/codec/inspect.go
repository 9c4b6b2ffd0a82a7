package codec

import (
	"fmt"
	"strconv"

	"github.com/pion/sdp/v3"
)

// VideoCodecs parses sdp and returns the encoding names bound to the payload
// list of its first video section, in payload-list order. Payload types with
// no rtpmap binding are skipped.
func VideoCodecs(raw string) ([]string, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return nil, fmt.Errorf("failed to parse session description: %w", err)
	}

	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media != "video" {
			continue
		}

		names := make([]string, 0, len(md.MediaName.Formats))
		for _, format := range md.MediaName.Formats {
			pt, err := strconv.ParseUint(format, 10, 8)
			if err != nil {
				continue
			}
			c, err := desc.GetCodecForPayloadType(uint8(pt))
			if err != nil {
				continue
			}
			names = append(names, c.Name)
		}
		return names, nil
	}

	return nil, nil
}
