// Package display implements the server-side display aggregator: the
// façade that receives raw framebuffer updates from a producer, runs
// them through damage refinement, transform normalisation and
// resampling, and (when the source is a GPU buffer fed in its natural
// orientation) feeds the same frames into an Open-H.264 stream in
// parallel.
package display

import (
	"image"
	"log/slog"

	"github.com/jauntywunderkind/neatvnc/damage"
	"github.com/jauntywunderkind/neatvnc/fb"
	"github.com/jauntywunderkind/neatvnc/internal/scheduler"
	"github.com/jauntywunderkind/neatvnc/openh264"
	"github.com/jauntywunderkind/neatvnc/resample"
)

// DamageFunc is invoked every time a resampled frame becomes the
// display's current buffer, with the damage expressed in that buffer's
// (post-transform) coordinate space. The display's caller is expected
// to forward this to whatever dispatches per-client frame updates.
type DamageFunc func(buf *fb.FB, region damage.Region)

// ReadyFunc is invoked whenever the Open-H.264 stream has produced a
// new packet, so the caller can poke any pending clients that support
// that encoding to pull it via Stream().
type ReadyFunc func()

// Display aggregates one virtual screen's worth of framebuffer updates.
// It is reference counted the same way a framebuffer is: call Ref/Unref
// to manage shared ownership, and the last Unref tears down the
// resampler and encoder state.
type Display struct {
	sched scheduler.Scheduler

	XPos, YPos uint16

	resampler *resample.Resampler
	refinery  *damage.Refinery
	h264      *openh264.Stream

	buffer              *fb.FB
	isOpenH264Supported bool

	onDamage DamageFunc

	refs int32
}

// New creates a Display at the given position within a multi-display
// layout. onDamage is required; onH264Ready may be nil if the caller
// never intends to serve the Open-H.264 encoding.
func New(sched scheduler.Scheduler, xPos, yPos uint16, onDamage DamageFunc, onH264Ready ReadyFunc) *Display {
	d := &Display{
		sched:     sched,
		XPos:      xPos,
		YPos:      yPos,
		resampler: resample.New(sched),
		refinery:  damage.NewRefinery(0, 0),
		onDamage:  onDamage,
		refs:      1,
	}
	d.h264 = openh264.New(sched, onH264Ready)
	return d
}

// Ref increments the display's reference count.
func (d *Display) Ref() { d.refs++ }

// Unref decrements the display's reference count, tearing down the
// encoder and releasing the current buffer once it reaches zero.
func (d *Display) Unref() {
	d.refs--
	if d.refs > 0 {
		return
	}
	if d.buffer != nil {
		d.buffer.Release()
		d.buffer.Unref()
		d.buffer = nil
	}
	d.h264.Destroy()
}

// CurrentBuffer returns the most recently resampled frame, or nil if
// FeedBuffer has never completed a resample.
func (d *Display) CurrentBuffer() *fb.FB {
	return d.buffer
}

// IsOpenH264Supported reports whether the most recent FeedBuffer call
// was eligible for the Open-H.264 path (a GPU buffer fed with no
// pending transform).
func (d *Display) IsOpenH264Supported() bool {
	return d.isOpenH264Supported
}

// FeedBuffer submits a freshly produced frame. It does not consume the
// caller's reference to buf: the display takes its own ref and hold on
// the buffer it adopts as current, and drops both when that buffer is
// superseded or the display is torn down. Processing happens in three
// stages, matching the source's feed pipeline:
//
//  1. If buf is a GPU buffer with no transform pending, it is fed to the
//     Open-H.264 encoder directly (untransformed — that encoding is
//     only defined for a display's natural orientation).
//  2. The damage hint is refined against the previous frame's contents,
//     then mapped through buf's transform into output coordinates.
//  3. The refined, transformed damage and buf are fed to the resampler;
//     once it completes (asynchronously), the result becomes the
//     display's current buffer and onDamage fires.
func (d *Display) FeedBuffer(buf *fb.FB, hint damage.Region) {
	if buf.Storage == fb.StorageGPUBuffer && buf.Transform() == fb.TransformNormal {
		d.isOpenH264Supported = true
		if err := d.h264.FeedFrame(buf); err != nil {
			slog.Warn("display: open-h264 feed failed", "error", err)
			d.isOpenH264Supported = false
		}
	} else {
		d.isOpenH264Supported = false
	}

	d.refinery.Resize(buf.Width, buf.Height)
	refined, err := d.refinery.Refine(buf, hint)
	if err != nil {
		return
	}

	transformed := resample.TransformRegion(buf.Transform(), []image.Rectangle(refined), int(buf.Width), int(buf.Height))

	d.resampler.Feed(buf, damage.Region(transformed), func(out *fb.FB, outDamage damage.Region) {
		if out == nil {
			return
		}
		d.adopt(out)
		if d.onDamage != nil {
			d.onDamage(out, outDamage)
		}
	})
}

func (d *Display) adopt(out *fb.FB) {
	if d.buffer != nil {
		d.buffer.Release()
		d.buffer.Unref()
	}
	out.Ref()
	out.Hold()
	d.buffer = out
}

// Stream drains any pending Open-H.264 payload for this display,
// returning a ready-to-send RFB rectangle, or nil if nothing is
// pending.
func (d *Display) Stream() ([]byte, error) {
	return d.h264.Read()
}

// RequestKeyframe asks the Open-H.264 encoder to mark its next packet
// as a context reset, for a newly connected client.
func (d *Display) RequestKeyframe() {
	d.h264.RequestKeyframe()
}
