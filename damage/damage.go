// Package damage implements the damage refinery: given a caller-supplied
// damage hint (usually a loose bounding box from a compositor) and the
// previous frame's tile hashes, it narrows the hint down to the tiles
// whose pixel content actually changed, so downstream encoders only
// spend work on what moved.
package damage

import (
	"image"

	"github.com/cespare/xxhash/v2"
	"github.com/jauntywunderkind/neatvnc/fb"
	"github.com/jauntywunderkind/neatvnc/internal/pixfmt"
)

// TileSize is the edge length, in pixels, of a hash tile. It is half the
// Tight encoder's 64px tile, so every refined damage tile lies inside
// exactly one of the tiles the encoder will visit.
const TileSize = 32

// Region is an unordered set of non-necessarily-disjoint rectangles.
// Plain []image.Rectangle rather than a region-algebra type: the
// refinery only ever appends whole tiles, so no merge/intersect
// operations are needed beyond what the caller does with the result.
type Region []image.Rectangle

// Union returns the smallest rectangle containing every rectangle in r,
// or the zero Rectangle if r is empty.
func (r Region) Union() image.Rectangle {
	if len(r) == 0 {
		return image.Rectangle{}
	}
	u := r[0]
	for _, rect := range r[1:] {
		u = u.Union(rect)
	}
	return u
}

// Refinery tracks per-tile content hashes for one framebuffer's worth of
// pixels across frames.
type Refinery struct {
	width, height uint32
	gridW, gridH  int
	hashes        []uint64
}

// NewRefinery creates a refinery sized for width x height pixels. No
// hashes are known yet, so the first Refine call treats every tile
// touched by the hint as damaged.
func NewRefinery(width, height uint32) *Refinery {
	r := &Refinery{}
	r.Resize(width, height)
	return r
}

// Resize regrids the refinery for a new framebuffer size, discarding all
// previously recorded hashes. A no-op if width/height match the current
// size — callers such as display.FeedBuffer call this unconditionally
// on every frame, and a real reallocation here would wipe the hash
// cache before every Refine, turning every frame into full-frame
// damage.
func (r *Refinery) Resize(width, height uint32) {
	if width == r.width && height == r.height {
		return
	}
	r.width, r.height = width, height
	r.gridW = (int(width) + TileSize - 1) / TileSize
	r.gridH = (int(height) + TileSize - 1) / TileSize
	r.hashes = make([]uint64, r.gridW*r.gridH)
}

// Refine narrows hint down to the tiles it overlaps whose content
// changed since the last call, reading pixels from buf. Tiles outside
// hint are left untouched — their stored hash is neither consulted nor
// updated, so a caller can refine several disjoint hints against the
// same refinery/frame pair.
func (r *Refinery) Refine(buf *fb.FB, hint Region) (Region, error) {
	pixels, err := buf.Map()
	if err != nil {
		return nil, err
	}
	bpp, err := pixfmt.BytesPerPixel(buf.Format)
	if err != nil {
		return nil, err
	}
	stride := int(r.width) * bpp

	var out Region
	seen := make(map[int]bool)

	for _, rect := range hint {
		rect = rect.Intersect(image.Rect(0, 0, int(r.width), int(r.height)))
		if rect.Empty() {
			continue
		}
		txMin := rect.Min.X / TileSize
		tyMin := rect.Min.Y / TileSize
		txMax := (rect.Max.X - 1) / TileSize
		tyMax := (rect.Max.Y - 1) / TileSize

		for ty := tyMin; ty <= tyMax; ty++ {
			for tx := txMin; tx <= txMax; tx++ {
				idx := ty*r.gridW + tx
				if seen[idx] {
					continue
				}
				seen[idx] = true

				tileRect := image.Rect(tx*TileSize, ty*TileSize, (tx+1)*TileSize, (ty+1)*TileSize).
					Intersect(image.Rect(0, 0, int(r.width), int(r.height)))

				h := hashTile(pixels, stride, bpp, tileRect)
				if h != r.hashes[idx] {
					r.hashes[idx] = h
					out = append(out, tileRect)
				}
			}
		}
	}
	return out, nil
}

func hashTile(pixels []byte, stride, bpp int, tile image.Rectangle) uint64 {
	d := xxhash.New()
	rowBytes := tile.Dx() * bpp
	for y := tile.Min.Y; y < tile.Max.Y; y++ {
		off := y*stride + tile.Min.X*bpp
		d.Write(pixels[off : off+rowBytes])
	}
	return d.Sum64()
}
