// Package rfbwire holds the small set of RFB wire-format primitives
// shared by the Tight and Open-H.264 encoders: the rectangle header, the
// "compact length" varint used by Tight, and the encoding-type constants
// those rectangles are tagged with.
package rfbwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Encoding identifies an RFB rectangle's encoding, per RFC 6143 §7.6 plus
// the vendor extension used for the hardware H.264 path.
type Encoding int32

const (
	EncodingTight    Encoding = 7
	EncodingOpenH264 Encoding = 50
)

// RectHead is the fixed 12-byte header ("FramebufferUpdate rectangle")
// that precedes every rectangle's encoded body.
type RectHead struct {
	X, Y, Width, Height uint16
	Encoding            Encoding
}

// Append writes the big-endian wire representation of h onto dst and
// returns the extended slice.
func (h RectHead) Append(dst []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(12)
	binary.Write(&buf, binary.BigEndian, h.X)
	binary.Write(&buf, binary.BigEndian, h.Y)
	binary.Write(&buf, binary.BigEndian, h.Width)
	binary.Write(&buf, binary.BigEndian, h.Height)
	binary.Write(&buf, binary.BigEndian, int32(h.Encoding))
	return append(dst, buf.Bytes()...)
}

// AppendRectCount writes the 2-byte, big-endian rectangle count that
// opens a FramebufferUpdate message.
func AppendRectCount(dst []byte, n uint16) []byte {
	return append(dst, byte(n>>8), byte(n))
}

// AppendCompactLength encodes n using Tight's "compact length" varint:
// 7 bits per byte, low-to-high, continuation bit set in every byte but
// the last. Valid for n in [0, 2^24).
func AppendCompactLength(dst []byte, n int) ([]byte, error) {
	if n < 0 || n >= 1<<24 {
		return nil, fmt.Errorf("rfbwire: compact length %d out of range", n)
	}
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(dst, b), nil
		}
		dst = append(dst, b|0x80)
	}
}

// CompactLengthSize returns the number of bytes AppendCompactLength
// would emit for n, without writing anything.
func CompactLengthSize(n int) int {
	size := 1
	for n >>= 7; n > 0; n >>= 7 {
		size++
	}
	return size
}
