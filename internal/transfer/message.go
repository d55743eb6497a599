package transfer

import (
	"encoding/json"
	"fmt"
)

// Control message types carried as text frames on the data channel. Binary
// frames are file bytes.
const (
	TypeFileMetadata     = "file-metadata"
	TypeTransferComplete = "transfer-complete"
	TypeCancelTransfer   = "cancel-transfer"
)

// Metadata describes the file being transferred.
type Metadata struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// Validate rejects metadata no receiver could act on.
func (m Metadata) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidMetadata)
	}
	if m.Size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrInvalidMetadata, m.Size)
	}
	return nil
}

// Control is one text frame.
type Control struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func encodeControl(kind string, payload any) (string, error) {
	msg := Control{Type: kind}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return "", NewError("marshal "+kind, err)
		}
		msg.Payload = raw
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", NewError("marshal "+kind, err)
	}
	return string(data), nil
}

// ParseControl decodes a text frame. A file-metadata frame also returns its
// decoded payload.
func ParseControl(data []byte) (*Control, *Metadata, error) {
	var msg Control
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, nil, NewError("parse message", err)
	}
	if msg.Type == "" {
		return nil, nil, WrapError("parse message", ErrInvalidMetadata, "missing type")
	}
	if msg.Type != TypeFileMetadata {
		return &msg, nil, nil
	}

	var meta Metadata
	if len(msg.Payload) == 0 {
		return nil, nil, WrapError("parse message", ErrInvalidMetadata, "missing payload")
	}
	if err := json.Unmarshal(msg.Payload, &meta); err != nil {
		return nil, nil, NewError("parse metadata", err)
	}
	if err := meta.Validate(); err != nil {
		return nil, nil, NewError("parse metadata", err)
	}
	return &msg, &meta, nil
}
