package tight

import (
	"fmt"
	"image"

	"github.com/klauspost/compress/flate"

	"github.com/jauntywunderkind/neatvnc/internal/bytevector"
	"github.com/jauntywunderkind/neatvnc/internal/pixfmt"
)

// shard owns one of the four persistent deflate streams "basic" mode
// tiles are distributed across, indexed by tile-column mod 4. The
// stream's dictionary carries over from tile to tile and frame to
// frame — only the accumulator buffer behind it is ever truncated,
// between frames, once every tile's bytes have been copied out.
type shard struct {
	out *bytevector.Vector
	fw  *flate.Writer
}

func newShard() *shard {
	out := &bytevector.Vector{}
	fw, _ := flate.NewWriter(out, flate.BestSpeed)
	return &shard{out: out, fw: fw}
}

func (s *shard) resetOutput() {
	s.out.Reset()
}

// tileOverflowError is never returned to a caller — it is only ever
// panicked with. A basic-mode tile that overflows MaxTileSize has
// already written its compressed bytes into the shard's live,
// persistent deflate stream; there is no way to unwind that stream
// back to a clean state, so the only safe outcome is the one the
// source takes (abort()): a half-finished RFB update can never be put
// back on the wire, and every later tile on this shard would be
// silently desynced if the caller just moved on.
type tileOverflowError struct {
	size int
}

func (e *tileOverflowError) Error() string {
	return fmt.Sprintf("tight: basic-mode tile exceeded max size (%d > %d), deflate stream desynced", e.size, MaxTileSize)
}

// encodeTileBasic deflates one tile's pixels (converted to Tight's
// "compact pixel" width) through s's persistent stream and returns the
// bytes newly written for this tile — i.e. the slice written since the
// call started, after a Z_SYNC_FLUSH-equivalent Flush makes it
// self-contained. Panics if the tile's compressed size exceeds
// MaxTileSize: see tileOverflowError.
func encodeTileBasic(s *shard, rect image.Rectangle, pixels []byte, stride int, srcFmt pixfmt.PixelFormat) []byte {
	cbpp := srcFmt.BytesPerPixel()
	if cbpp == 4 && srcFmt.Depth <= 24 {
		cbpp = 3
	}

	before := s.out.Len()

	row := make([]byte, rect.Dx()*cbpp)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		rowOff := y*stride + rect.Min.X*srcFmt.BytesPerPixel()
		for x := 0; x < rect.Dx(); x++ {
			pixfmt.ConvertPixel(row, x*cbpp, srcFmt, cbpp, pixels, rowOff+x*srcFmt.BytesPerPixel(), srcFmt, srcFmt.BytesPerPixel())
		}
		if _, err := s.fw.Write(row); err != nil {
			panic(fmt.Errorf("tight: deflate write: %w", err))
		}
	}
	if err := s.fw.Flush(); err != nil {
		panic(fmt.Errorf("tight: deflate flush: %w", err))
	}

	n := s.out.Len() - before
	if n > MaxTileSize {
		panic(&tileOverflowError{size: n})
	}

	payload := make([]byte, n)
	copy(payload, s.out.Bytes()[before:before+n])
	return payload
}
