// Package openh264 frames the output of an h264.Encoder as a single RFB
// "open H.264" rectangle: one rect-count of 1, one RectHead covering the
// whole framebuffer, a small length+flags header, then the raw encoded
// payload accumulated since the last read.
package openh264

import (
	"encoding/binary"
	"fmt"

	"github.com/jauntywunderkind/neatvnc/fb"
	"github.com/jauntywunderkind/neatvnc/h264"
	"github.com/jauntywunderkind/neatvnc/internal/bytevector"
	"github.com/jauntywunderkind/neatvnc/internal/pixfmt"
	"github.com/jauntywunderkind/neatvnc/internal/rfbwire"
	"github.com/jauntywunderkind/neatvnc/internal/scheduler"
)

// resetContextFlag mirrors the wire flag a client uses to know it must flush
// its decoder state before applying the payload that follows.
const resetContextFlag uint32 = 1 << 0

// ReadyFunc is called every time FeedFrame's underlying encoder produces
// a packet, so the caller knows there is something for Read to return.
type ReadyFunc func()

// Stream wraps an h264.Encoder with RFB rectangle framing. Frames fed in
// via FeedFrame are encoded asynchronously; encoded packets accumulate
// in a pending buffer until the caller calls Read to drain it.
type Stream struct {
	sched   scheduler.Scheduler
	onReady ReadyFunc

	encoder *h264.Encoder

	width, height uint32
	format        pixfmt.FourCC

	pending    bytevector.Vector
	needsReset bool
}

// New creates a Stream. The encoder is built lazily, on the first
// FeedFrame call, once the source framebuffer's dimensions and format
// are known.
func New(sched scheduler.Scheduler, onReady ReadyFunc) *Stream {
	return &Stream{sched: sched, onReady: onReady}
}

// RequestKeyframe forces the next encoded packet to carry the reset
// flag and asks the underlying encoder for an IDR frame.
func (s *Stream) RequestKeyframe() {
	s.needsReset = true
	if s.encoder != nil {
		s.encoder.RequestKeyframe()
	}
}

// FeedFrame submits buf for encoding. If buf's dimensions or format
// differ from the stream's current encoder, the encoder is rebuilt and
// the next output packet is marked as a context reset.
func (s *Stream) FeedFrame(buf *fb.FB) error {
	if s.encoder == nil || buf.Width != s.width || buf.Height != s.height || buf.Format != s.format {
		if err := s.reconfigure(buf); err != nil {
			return err
		}
	}
	s.encoder.Feed(buf)
	return nil
}

func (s *Stream) reconfigure(buf *fb.FB) error {
	cfg := h264.Config{Width: buf.Width, Height: buf.Height, Format: buf.Format}
	if s.encoder == nil {
		enc, err := h264.Create(s.sched, cfg, s.handlePacket)
		if err != nil {
			return fmt.Errorf("openh264: %w", err)
		}
		s.encoder = enc
	} else if err := s.encoder.Reconfigure(cfg); err != nil {
		return fmt.Errorf("openh264: %w", err)
	}
	s.width, s.height, s.format = buf.Width, buf.Height, buf.Format
	s.needsReset = true
	return nil
}

func (s *Stream) handlePacket(data []byte, keyframe bool) {
	s.pending.Append(data)
	if s.onReady != nil {
		s.onReady()
	}
}

// Read drains any pending encoded data into one RFB rectangle and
// returns it. It returns nil, nil if there is nothing pending yet.
func (s *Stream) Read() ([]byte, error) {
	if s.pending.Len() == 0 {
		return nil, nil
	}

	var flags uint32
	if s.needsReset {
		flags = resetContextFlag
		s.needsReset = false
	}

	out := rfbwire.AppendRectCount(nil, 1)
	head := rfbwire.RectHead{
		X: 0, Y: 0,
		Width: uint16(s.width), Height: uint16(s.height),
		Encoding: rfbwire.EncodingOpenH264,
	}
	out = head.Append(out)

	var lenFlags [8]byte
	binary.BigEndian.PutUint32(lenFlags[0:4], uint32(s.pending.Len()))
	binary.BigEndian.PutUint32(lenFlags[4:8], flags)
	out = append(out, lenFlags[:]...)
	out = append(out, s.pending.Bytes()...)

	s.pending.Reset()
	return out, nil
}

// Destroy releases the underlying encoder, if one was created.
func (s *Stream) Destroy() {
	if s.encoder != nil {
		s.encoder.Destroy()
		s.encoder = nil
	}
}
