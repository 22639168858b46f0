package gateway

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Inbound binary frames are a 4-byte big-endian sequence id followed by the
// raw audio payload. The payload must be non-empty.
const frameHeaderLen = 4

var (
	errFrameTooShort  = fmt.Errorf("binary frame shorter than %d-byte header", frameHeaderLen)
	errFrameNoPayload = fmt.Errorf("binary frame carries no payload")
)

// workItem is one pending transcription request for a user.
type workItem struct {
	sequenceID uint32
	payload    []byte
	enqueuedAt time.Time
}

func decodeFrame(frame []byte) (sequenceID uint32, payload []byte, err error) {
	if len(frame) < frameHeaderLen {
		return 0, nil, errFrameTooShort
	}
	if len(frame) == frameHeaderLen {
		return 0, nil, errFrameNoPayload
	}
	return binary.BigEndian.Uint32(frame[:frameHeaderLen]), frame[frameHeaderLen:], nil
}

func encodeFrame(sequenceID uint32, payload []byte) []byte {
	frame := make([]byte, frameHeaderLen+len(payload))
	binary.BigEndian.PutUint32(frame, sequenceID)
	copy(frame[frameHeaderLen:], payload)
	return frame
}
