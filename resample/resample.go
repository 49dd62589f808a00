// Package resample normalizes a framebuffer's rotation/flip transform
// before it reaches the encoders, which only ever work in "normal"
// orientation. A resampler is cheap for the common case (no transform:
// the buffer passes through untouched) and only pays for a pixel copy
// when the compositor actually hands over a rotated or mirrored buffer.
package resample

import (
	"fmt"

	"github.com/jauntywunderkind/neatvnc/damage"
	"github.com/jauntywunderkind/neatvnc/fb"
	"github.com/jauntywunderkind/neatvnc/internal/pixfmt"
	"github.com/jauntywunderkind/neatvnc/internal/scheduler"
)

// DoneFunc receives the normalized buffer and damage region. It is
// always invoked through the scheduler's main loop (PostMain, or the
// done half of SpawnWorker). Whether that happens before Feed returns
// depends on the scheduler: a queueing scheduler such as Loop runs it
// later, while Inline runs it before Feed returns.
type DoneFunc func(out *fb.FB, outDamage damage.Region)

// Resampler rewrites a possibly-transformed buffer into normal
// orientation.
type Resampler struct {
	sched scheduler.Scheduler
}

// New creates a Resampler that posts completions through sched.
func New(sched scheduler.Scheduler) *Resampler {
	return &Resampler{sched: sched}
}

// Feed normalizes buf (holding buf.Transform() pixels) and calls done
// with the result. If buf's transform is Normal, Feed hands the same
// buffer straight through without copying; otherwise it allocates a new
// system-memory buffer and copies+rotates the pixel data into it with
// TransformNormal set. dmg must already be in the normalized buffer's
// coordinate space (see TransformRegion); it is handed to done as is.
//
// Feed does not take its own hold on buf; the caller retains whatever
// hold/ref discipline it already had. If Feed allocates a new buffer,
// that buffer starts with ref count 1 and no hold — done's receiver is
// responsible for its lifecycle from there.
func (r *Resampler) Feed(buf *fb.FB, dmg damage.Region, done DoneFunc) {
	t := buf.Transform()
	if t == fb.TransformNormal {
		r.sched.PostMain(func() { done(buf, dmg) })
		return
	}

	var out *fb.FB
	var outDamage damage.Region
	var workErr error
	r.sched.SpawnWorker(func() {
		out, outDamage, workErr = transformBuffer(buf, dmg, t)
	}, func() {
		if workErr != nil {
			// Nothing sane to do with a conversion failure other than
			// drop the frame; the pipeline continues with the next one.
			done(nil, nil)
			return
		}
		done(out, outDamage)
	})
}

func transformBuffer(buf *fb.FB, dmg damage.Region, t fb.Transform) (*fb.FB, damage.Region, error) {
	srcPixels, err := buf.Map()
	if err != nil {
		return nil, nil, fmt.Errorf("resample: %w", err)
	}
	srcFmt, err := pixfmt.FromFourCC(buf.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("resample: %w", err)
	}
	bpp := srcFmt.BytesPerPixel()

	w, h := int(buf.Width), int(buf.Height)
	ow, oh := OutputDims(t, w, h)

	out, err := fb.New(uint32(ow), uint32(oh), buf.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("resample: %w", err)
	}
	dstPixels, _ := out.Map()

	srcStride := w * bpp
	dstStride := ow * bpp

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			nx, ny := mapPoint(t, x, y, w, h)
			srcOff := y*srcStride + x*bpp
			dstOff := ny*dstStride + nx*bpp
			copy(dstPixels[dstOff:dstOff+bpp], srcPixels[srcOff:srcOff+bpp])
		}
	}

	return out, dmg, nil
}
