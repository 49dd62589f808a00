package tight

import "image"

// TileSize is the edge length, in pixels, of a Tight encoding tile. Each
// damaged tile becomes one independent RFB rectangle in the output
// stream, which is what lets four shards encode disjoint columns of
// tiles without any shared mutable state besides their own persistent
// deflate stream.
const TileSize = 64

// MaxTileSize bounds a single tile's encoded payload. A tile whose
// compressed (basic mode) or JPEG-compressed (jpeg mode) output would
// exceed this is either a compression pathology or a caller that fed
// pixel data the compressor cannot make any headway on; basic mode
// treats this as fatal, JPEG mode as a per-tile failure (see
// encodeTileJPEG).
const MaxTileSize = 2 * TileSize * TileSize * 4

type tileCoord struct{ x, y int }

// grid returns the tile grid dimensions for a width x height buffer.
func grid(width, height int) (gw, gh int) {
	return (width + TileSize - 1) / TileSize, (height + TileSize - 1) / TileSize
}

// tileRect returns the pixel rectangle of tile (tx, ty), clipped to the
// buffer's actual dimensions at the right/bottom edges.
func tileRect(tx, ty, width, height int) image.Rectangle {
	r := image.Rect(tx*TileSize, ty*TileSize, (tx+1)*TileSize, (ty+1)*TileSize)
	return r.Intersect(image.Rect(0, 0, width, height))
}

// damagedTiles reduces an arbitrary set of damaged pixel rectangles to
// the distinct Tight tile coordinates they overlap, in row-major order
// (the order shards must preserve when reassembling output).
func damagedTiles(rects []image.Rectangle, width, height int) []tileCoord {
	gw, gh := grid(width, height)
	marked := make([]bool, gw*gh)

	for _, r := range rects {
		r = r.Intersect(image.Rect(0, 0, width, height))
		if r.Empty() {
			continue
		}
		txMin, tyMin := r.Min.X/TileSize, r.Min.Y/TileSize
		txMax, tyMax := (r.Max.X-1)/TileSize, (r.Max.Y-1)/TileSize
		for ty := tyMin; ty <= tyMax; ty++ {
			for tx := txMin; tx <= txMax; tx++ {
				marked[ty*gw+tx] = true
			}
		}
	}

	var out []tileCoord
	for ty := 0; ty < gh; ty++ {
		for tx := 0; tx < gw; tx++ {
			if marked[ty*gw+tx] {
				out = append(out, tileCoord{tx, ty})
			}
		}
	}
	return out
}
