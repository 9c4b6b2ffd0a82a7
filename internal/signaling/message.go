// Package signaling carries negotiation messages over a WebSocket channel.
package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// MessageType identifies the kind of signaling message.
type MessageType string

const (
	MsgTypeOffer     MessageType = "offer"
	MsgTypeAnswer    MessageType = "answer"
	MsgTypeCandidate MessageType = "candidate"
	MsgTypeClose     MessageType = "close"
)

// Message is the JSON structure exchanged over the WebSocket.
// Offers and answers carry the description fields at the top level;
// candidates are nested under "ice".
type Message struct {
	Type MessageType              `json:"type"`
	SDP  string                   `json:"sdp,omitempty"`
	ICE  *webrtc.ICECandidateInit `json:"ice,omitempty"`
}

// Offer wraps an offer description.
func Offer(sdp string) Message { return Message{Type: MsgTypeOffer, SDP: sdp} }

// Answer wraps an answer description.
func Answer(sdp string) Message { return Message{Type: MsgTypeAnswer, SDP: sdp} }

// Candidate wraps a trickled ICE candidate.
func Candidate(c webrtc.ICECandidateInit) Message {
	return Message{Type: MsgTypeCandidate, ICE: &c}
}

// Close is the informational hang-up notice.
func Close() Message { return Message{Type: MsgTypeClose} }

// Decode parses one WebSocket frame. Unknown types are returned as-is so the
// caller can decide how to treat them.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("invalid signaling message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("signaling message without type")
	}
	if msg.Type == MsgTypeCandidate && msg.ICE == nil {
		return Message{}, fmt.Errorf("candidate message without ice field")
	}
	return msg, nil
}

// Description returns the session description of an offer or answer. The
// description type always matches the message type.
func (m Message) Description() (webrtc.SessionDescription, error) {
	switch m.Type {
	case MsgTypeOffer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: m.SDP}, nil
	case MsgTypeAnswer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: m.SDP}, nil
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("%q message carries no description", m.Type)
	}
}
