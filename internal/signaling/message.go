package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Message types exchanged through the relay.
const (
	TypeOffer            = "offer"
	TypeAnswer           = "answer"
	TypeICECandidate     = "ice-candidate"
	TypePeerConnected    = "peer-connected"
	TypePeerDisconnected = "peer-disconnected"
)

// Message is one signaling message. The relay never looks inside it.
type Message struct {
	Type      string                     `json:"type"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// NewOffer wraps a local offer.
func NewOffer(sdp webrtc.SessionDescription) *Message {
	return &Message{Type: TypeOffer, SDP: &sdp}
}

// NewAnswer wraps a local answer.
func NewAnswer(sdp webrtc.SessionDescription) *Message {
	return &Message{Type: TypeAnswer, SDP: &sdp}
}

// NewCandidate wraps a trickled local candidate.
func NewCandidate(c webrtc.ICECandidateInit) *Message {
	return &Message{Type: TypeICECandidate, Candidate: &c}
}

// Decode parses a relay frame into a Message.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode signaling message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("decode signaling message: missing type")
	}
	return &msg, nil
}

// Encode serialises a Message for the relay.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// sendRequest is the body of POST /api/p2p.
type sendRequest struct {
	RoomID string   `json:"roomId"`
	Type   Role     `json:"type"`
	Data   *Message `json:"data"`
}
