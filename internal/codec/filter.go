// Package codec rewrites session descriptions so that only one video codec
// remains negotiable.
package codec

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Preference names the video codec to keep. The zero value disables filtering.
type Preference string

const (
	None Preference = ""
	H264 Preference = "H264"
	VP8  Preference = "VP8"
	VP9  Preference = "VP9"
)

// universe is the fixed set of codecs the filter knows how to strip, in the
// order removals are applied.
var universe = []Preference{H264, VP8, VP9}

// ParsePreference maps a user-supplied codec name to a Preference.
// An empty string yields None.
func ParsePreference(raw string) (Preference, error) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	if name == "" {
		return None, nil
	}
	for _, p := range universe {
		if string(p) == name {
			return p, nil
		}
	}
	return None, fmt.Errorf("unknown codec %q (want H264, VP8 or VP9)", raw)
}

// String returns the codec name, or "none" for the zero value.
func (p Preference) String() string {
	if p == None {
		return "none"
	}
	return string(p)
}

var (
	rtpmapLine = regexp.MustCompile(`(?m)^a=rtpmap:\d+ `)
	videoLine  = regexp.MustCompile(`(?m)^m=video .*\r\n`)
)

// Filter removes every codec of the universe other than keep from sdp.
// With keep == None, or a keep outside the universe, the input is returned
// unchanged.
//
// Only the first m=video section is rewritten; descriptions carrying several
// video sections are not supported.
func Filter(sdp string, keep Preference) string {
	if keep == None || !slices.Contains(universe, keep) {
		return sdp
	}
	for _, c := range universe {
		if c == keep {
			continue
		}
		sdp = removeCodec(sdp, c)
	}
	return sdp
}

// removeCodec strips one codec until a pass makes no change. Each changing
// pass deletes at least one rtpmap line, so the number of rtpmap lines bounds
// the loop.
func removeCodec(sdp string, c Preference) string {
	limit := len(rtpmapLine.FindAllStringIndex(sdp, -1))
	for i := 0; i < limit; i++ {
		next, changed := removeOnce(sdp, c)
		if !changed {
			break
		}
		sdp = next
	}
	return sdp
}

// removeOnce drops the first payload type bound to c together with its
// feedback, format and retransmission lines.
func removeOnce(sdp string, c Preference) (string, bool) {
	binding := regexp.MustCompile(`(?m)^a=rtpmap:(\d+) ` + regexp.QuoteMeta(string(c)) + `/90000\r\n`)
	m := binding.FindStringSubmatchIndex(sdp)
	if m == nil {
		return sdp, false
	}
	id := sdp[m[2]:m[3]]
	out := sdp[:m[0]] + sdp[m[1]:]

	out = removeLines(out, `a=rtcp-fb:`+id+` `)
	out = removeLines(out, `a=fmtp:`+id+` `)

	dropped := []string{id}

	apt := regexp.MustCompile(`(?m)^a=fmtp:(\d+) apt=` + id + `\r\n`)
	if am := apt.FindStringSubmatchIndex(out); am != nil {
		rtx := out[am[2]:am[3]]
		out = out[:am[0]] + out[am[1]:]
		out = removeLines(out, `a=rtpmap:`+rtx+` `)
		dropped = append(dropped, rtx)
	}

	return rewriteVideoLine(out, dropped), true
}

// removeLines deletes every line starting with prefix.
func removeLines(sdp, prefix string) string {
	re := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(prefix) + `.*\r\n`)
	return re.ReplaceAllString(sdp, "")
}

// rewriteVideoLine removes ids from the payload list of the first m=video
// line. The media, port and protocol fields are kept as is.
func rewriteVideoLine(sdp string, ids []string) string {
	loc := videoLine.FindStringIndex(sdp)
	if loc == nil {
		return sdp
	}
	line := strings.TrimSuffix(sdp[loc[0]:loc[1]], "\r\n")
	fields := strings.Split(line, " ")

	kept := make([]string, 0, len(fields))
	for i, f := range fields {
		if i >= 3 && slices.Contains(ids, f) {
			continue
		}
		kept = append(kept, f)
	}

	return sdp[:loc[0]] + strings.Join(kept, " ") + "\r\n" + sdp[loc[1]:]
}
