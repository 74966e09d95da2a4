// Package wire defines the session wire protocol shared by the server and
// client SDK: binary audio frames and JSON control/event envelopes carried
// over one duplex websocket.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Audio payload encodings carried in the frame header.
const (
	EncodingPCM16 uint8 = 1 // raw little-endian int16 mono samples
	EncodingOpus  uint8 = 2 // length-prefixed Opus packet stream
)

// FrameVersion is the current binary frame layout version.
const FrameVersion uint8 = 1

// FrameHeaderSize is the fixed byte length of the audio frame header.
const FrameHeaderSize = 24

var (
	ErrFrameTooShort       = errors.New("wire: frame shorter than header")
	ErrFrameVersion        = errors.New("wire: unsupported frame version")
	ErrUnknownEncoding     = errors.New("wire: unknown audio encoding")
	ErrPacketStreamCorrupt = errors.New("wire: corrupt opus packet stream")
)

// AudioChunk is one fixed-duration slice of captured audio. The payload is
// owned by the chunk after emission and is discarded server-side once it has
// been handed to the recognizer.
type AudioChunk struct {
	Encoding   uint8
	SampleRate uint32
	Sequence   uint64
	CapturedAt time.Time
	Payload    []byte
}

// EncodeFrame packs the chunk into a single binary websocket frame.
//
// Layout (little-endian):
//
//	[0]    version
//	[1]    encoding
//	[2:4]  reserved
//	[4:8]  sample rate (Hz)
//	[8:16] sequence
//	[16:24] captured-at (Unix milliseconds)
//	[24:]  payload
func EncodeFrame(c AudioChunk) []byte {
	buf := make([]byte, FrameHeaderSize+len(c.Payload))
	buf[0] = FrameVersion
	buf[1] = c.Encoding
	binary.LittleEndian.PutUint32(buf[4:8], c.SampleRate)
	binary.LittleEndian.PutUint64(buf[8:16], c.Sequence)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(c.CapturedAt.UnixMilli()))
	copy(buf[FrameHeaderSize:], c.Payload)
	return buf
}

// DecodeFrame parses a binary frame back into an AudioChunk. The returned
// payload aliases the input buffer.
func DecodeFrame(data []byte) (AudioChunk, error) {
	if len(data) < FrameHeaderSize {
		return AudioChunk{}, ErrFrameTooShort
	}
	if data[0] != FrameVersion {
		return AudioChunk{}, fmt.Errorf("%w: %d", ErrFrameVersion, data[0])
	}
	enc := data[1]
	if enc != EncodingPCM16 && enc != EncodingOpus {
		return AudioChunk{}, fmt.Errorf("%w: %d", ErrUnknownEncoding, enc)
	}
	ms := int64(binary.LittleEndian.Uint64(data[16:24]))
	return AudioChunk{
		Encoding:   enc,
		SampleRate: binary.LittleEndian.Uint32(data[4:8]),
		Sequence:   binary.LittleEndian.Uint64(data[8:16]),
		CapturedAt: time.UnixMilli(ms),
		Payload:    data[FrameHeaderSize:],
	}, nil
}

// AppendPacket appends one Opus packet to a packet stream. Opus packets are
// not self-delimiting, so each is prefixed with a little-endian uint16 length.
func AppendPacket(stream, packet []byte) []byte {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(packet)))
	stream = append(stream, lenBuf[:]...)
	return append(stream, packet...)
}

// NextPacket pops the first packet off a packet stream, returning the packet
// and the remaining stream.
func NextPacket(stream []byte) (packet, rest []byte, err error) {
	if len(stream) == 0 {
		return nil, nil, nil
	}
	if len(stream) < 2 {
		return nil, nil, ErrPacketStreamCorrupt
	}
	n := int(binary.LittleEndian.Uint16(stream[:2]))
	if len(stream) < 2+n {
		return nil, nil, ErrPacketStreamCorrupt
	}
	return stream[2 : 2+n], stream[2+n:], nil
}
