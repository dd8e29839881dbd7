package worker

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/golang/snappy"
)

// DefaultCompressThreshold is the encoded size above which frames are
// snappy-compressed
const DefaultCompressThreshold = 16 * 1024

// Frame flags, stored in the first byte of every frame
const (
	frameRaw    byte = 0x00
	frameSnappy byte = 0x01
)

// ErrBadFrame is returned for frames that cannot be decoded
var ErrBadFrame = errors.New("malformed frame")

// Codec turns messages into transport frames
type Codec struct {
	// CompressThreshold <= 0 disables compression
	CompressThreshold int
}

// Encode marshals a message and compresses it when it is large
func (c Codec) Encode(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type, err)
	}

	if c.CompressThreshold > 0 && len(data) > c.CompressThreshold {
		compressed := snappy.Encode(nil, data)
		frame := make([]byte, 1+len(compressed))
		frame[0] = frameSnappy
		copy(frame[1:], compressed)
		return frame, nil
	}

	frame := make([]byte, 1+len(data))
	frame[0] = frameRaw
	copy(frame[1:], data)
	return frame, nil
}

// Decode reverses Encode
func (c Codec) Decode(frame []byte) (*Message, error) {
	if len(frame) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadFrame, len(frame))
	}

	data := frame[1:]
	switch frame[0] {
	case frameRaw:
	case frameSnappy:
		decompressed, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
		}
		data = decompressed
	default:
		return nil, fmt.Errorf("%w: unknown flag 0x%02x", ErrBadFrame, frame[0])
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return &msg, nil
}
