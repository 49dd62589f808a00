// Package tight implements the Tight encoder: a tile-parallel codec
// that turns a damaged region of a framebuffer into RFB rectangles,
// each individually compressed with either a persistent deflate stream
// ("basic" mode) or JPEG ("jpeg" mode). Work is split across four
// shards by tile column (column mod 4), so each shard's persistent
// deflate dictionary only ever sees a deterministic, disjoint subset of
// tiles — the parallelism this buys is real, not just dispatched work
// that serializes on a shared stream.
package tight

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jauntywunderkind/neatvnc/damage"
	"github.com/jauntywunderkind/neatvnc/fb"
	"github.com/jauntywunderkind/neatvnc/internal/pixfmt"
	"github.com/jauntywunderkind/neatvnc/internal/rfbwire"
	"github.com/jauntywunderkind/neatvnc/internal/scheduler"
)

// Quality selects how a frame's tiles are compressed.
type Quality int

const (
	// QualityLossless forces basic (deflate) mode on every tile.
	QualityLossless Quality = iota
	// QualityHigh requests JPEG mode at quality 66, falling back to
	// basic mode per-tile if JPEG support is unavailable or a tile's
	// JPEG output would overflow MaxTileSize.
	QualityHigh
	// QualityLow requests JPEG mode at quality 33, with the same
	// fallback behaviour as QualityHigh.
	QualityLow
)

const (
	basicControlByte = 0x00 // | (streamID << 4)
	jpegControlByte  = 0x90
)

// ErrNoDamage is returned synchronously by EncodeFrame when dmg does not
// overlap any tile — there is nothing to encode, and scheduling four
// shard jobs for zero tiles would just be wasted work.
var ErrNoDamage = errors.New("tight: no damaged tiles in frame")

// DoneFunc receives a frame's encoded rectangles (rect-count header
// followed by one RectHead+body per damaged tile, in row-major order)
// or an error if the encode failed after being scheduled.
type DoneFunc func(out []byte, err error)

// Encoder holds the four persistent shard streams and the tile grid
// state for one framebuffer size. Resize it when the source
// framebuffer's dimensions change; otherwise EncodeFrame can be called
// repeatedly with no further setup.
type Encoder struct {
	sched scheduler.Scheduler

	width, height int
	gridW, gridH  int
	shards        [4]*shard
}

// New creates an Encoder sized for width x height and bound to sched for
// dispatching shard work.
func New(sched scheduler.Scheduler, width, height int) *Encoder {
	e := &Encoder{sched: sched}
	for i := range e.shards {
		e.shards[i] = newShard()
	}
	e.Resize(width, height)
	return e
}

// Resize regrids the encoder for a new framebuffer size. The four
// deflate streams are not reset — this matches the persistent-dictionary
// design: a resize is presumed to be followed by a full-frame damage
// hint, at which point the streams simply see a change in the input
// they were already compressing.
func (e *Encoder) Resize(width, height int) {
	e.width, e.height = width, height
	e.gridW, e.gridH = grid(width, height)
}

// tileResult holds one damaged tile's encoded RFB rectangle (header +
// body), in the order required to reassemble the frame.
type tileResult struct {
	rect []byte
}

// EncodeFrame encodes the tiles of buf that dmg overlaps. It returns
// ErrNoDamage synchronously if there is nothing to do; otherwise it
// returns nil immediately and invokes done asynchronously, once, when
// all four shards and the assembly step complete.
//
// buf is Ref'd and Hold'd for the duration of the encode and Released/
// Unref'd right after done returns — callers do not need to keep buf
// alive themselves past this call.
func (e *Encoder) EncodeFrame(buf *fb.FB, dmg damage.Region, quality Quality, done DoneFunc) error {
	if int(buf.Width) != e.width || int(buf.Height) != e.height {
		e.Resize(int(buf.Width), int(buf.Height))
	}

	tiles := damagedTiles([]image.Rectangle(dmg), e.width, e.height)
	if len(tiles) == 0 {
		return ErrNoDamage
	}

	srcFmt, err := pixfmt.FromFourCC(buf.Format)
	if err != nil {
		return fmt.Errorf("tight: %w", err)
	}

	buf.Ref()
	buf.Hold()

	for _, s := range e.shards {
		s.resetOutput()
	}

	results := make([]tileResult, len(tiles))
	byColumn := make([][]int, 4)
	for i, tc := range tiles {
		byColumn[tc.x%4] = append(byColumn[tc.x%4], i)
	}

	var pending atomic.Int32
	pending.Store(4)
	var errMu sync.Mutex
	var firstErr error

	finish := func() {
		defer func() {
			buf.Release()
			buf.Unref()
		}()
		if firstErr != nil {
			done(nil, firstErr)
			return
		}
		out := rfbwire.AppendRectCount(nil, uint16(len(results)))
		for _, r := range results {
			out = append(out, r.rect...)
		}
		done(out, nil)
	}

	for shardIdx, indices := range byColumn {
		shardIdx := shardIdx
		indices := indices
		e.sched.SpawnWorker(func() {
			pixels, mapErr := buf.Map()
			if mapErr != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("tight: %w", mapErr)
				}
				errMu.Unlock()
				return
			}
			stride, strideErr := buf.Stride()
			if strideErr != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("tight: %w", strideErr)
				}
				errMu.Unlock()
				return
			}
			for _, idx := range indices {
				tc := tiles[idx]
				rect := tileRect(tc.x, tc.y, e.width, e.height)
				body, useJPEG := encodeTile(e.shards[shardIdx], rect, pixels, stride, srcFmt, quality)
				head := rfbwire.RectHead{
					X: uint16(rect.Min.X), Y: uint16(rect.Min.Y),
					Width: uint16(rect.Dx()), Height: uint16(rect.Dy()),
					Encoding: rfbwire.EncodingTight,
				}
				out := head.Append(nil)
				if useJPEG {
					out = append(out, jpegControlByte)
				} else {
					out = append(out, basicControlByte|byte(shardIdx<<4))
				}
				out, _ = rfbwire.AppendCompactLength(out, len(body))
				out = append(out, body...)
				results[idx] = tileResult{rect: out}
			}
		}, func() {
			if pending.Add(-1) == 0 {
				finish()
			}
		})
	}
	return nil
}

// encodeTile picks a tile's compressed body. JPEG-mode failures are
// recoverable and fall back to basic mode; basic mode itself has no
// fallback and panics on overflow (see encodeTileBasic) — the shard's
// deflate stream already has the overflowing bytes written into it by
// the time that's detected, so there is no tile-level error left to
// return here for that case.
func encodeTile(s *shard, rect image.Rectangle, pixels []byte, stride int, srcFmt pixfmt.PixelFormat, quality Quality) (body []byte, useJPEG bool) {
	if quality != QualityLossless && JPEGSupported {
		var err error
		body, err = encodeTileJPEG(rect, pixels, stride, srcFmt, quality)
		if err == nil {
			return body, true
		}
		slog.Warn("tight: jpeg tile failed, falling back to basic mode", "error", err)
	}
	return encodeTileBasic(s, rect, pixels, stride, srcFmt), false
}
