// Package protocol implements the control-frame wire codec and the
// Sender/Receiver phase transitions that govern manifest exchange,
// accept/resume, per-file start/complete, and cancellation.
package protocol

import "github.com/vmihailenco/msgpack/v5"

// FrameType is the control-frame discriminator.
type FrameType string

const (
	TypeManifest      FrameType = "MANIFEST"
	TypeReject        FrameType = "REJECT"
	TypeAccept        FrameType = "ACCEPT"
	TypeResume        FrameType = "RESUME"
	TypeFileStart     FrameType = "FILE_START"
	TypeFileComplete  FrameType = "FILE_COMPLETE"
	TypeAllComplete   FrameType = "ALL_COMPLETE"
	TypeCancel        FrameType = "CANCEL"
)

// Frame is the wire envelope for every control message: a type
// discriminator plus an opaque, type-specific payload.
type Frame struct {
	Type    FrameType           `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
}

// RejectPayload accompanies TypeReject.
type RejectPayload struct {
	Reason string `msgpack:"reason"`
}

// ResumePayload accompanies TypeResume.
type ResumePayload struct {
	FileIndex  int   `msgpack:"file_index"`
	ByteOffset int64 `msgpack:"byte_offset"`
}

// FileStartPayload accompanies TypeFileStart.
type FileStartPayload struct {
	FileIndex int    `msgpack:"file_index"`
	Path      string `msgpack:"path"`
	Size      int64  `msgpack:"size"`
}

// FileCompletePayload accompanies TypeFileComplete.
type FileCompletePayload struct {
	FileIndex int `msgpack:"file_index"`
}

// CancelPayload accompanies TypeCancel.
type CancelPayload struct {
	Reason string `msgpack:"reason,omitempty"`
}

// Encode builds the wire bytes for a control frame. payload may be nil for
// frame types that carry none (ACCEPT, ALL_COMPLETE).
func Encode(frameType FrameType, payload any) ([]byte, error) {
	var raw msgpack.RawMessage
	if payload != nil {
		b, err := msgpack.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return msgpack.Marshal(Frame{Type: frameType, Payload: raw})
}

// Decode parses the wire bytes of a control frame.
func Decode(data []byte) (Frame, error) {
	var f Frame
	err := msgpack.Unmarshal(data, &f)
	return f, err
}

// DecodePayload unmarshals f's payload into v. A no-op if the frame
// carries no payload (ACCEPT, ALL_COMPLETE).
func (f Frame) DecodePayload(v any) error {
	if len(f.Payload) == 0 {
		return nil
	}
	return msgpack.Unmarshal(f.Payload, v)
}
