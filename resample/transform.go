package resample

import (
	"image"

	"github.com/jauntywunderkind/neatvnc/fb"
)

// OutputDims returns the pixel dimensions a buffer of size w x h has
// after t is applied. Quarter-turn rotations swap width and height.
func OutputDims(t fb.Transform, w, h int) (int, int) {
	switch t {
	case fb.TransformRotate90, fb.TransformRotate270,
		fb.TransformFlippedRotate90, fb.TransformFlippedRotate270:
		return h, w
	default:
		return w, h
	}
}

// mapPoint returns where the source pixel (x, y) of a w x h buffer lands
// after t is applied.
func mapPoint(t fb.Transform, x, y, w, h int) (int, int) {
	switch t {
	case fb.TransformNormal:
		return x, y
	case fb.TransformRotate90:
		return h - 1 - y, x
	case fb.TransformRotate180:
		return w - 1 - x, h - 1 - y
	case fb.TransformRotate270:
		return y, w - 1 - x
	case fb.TransformFlipped:
		return w - 1 - x, y
	case fb.TransformFlippedRotate90:
		fx, fy := w-1-x, y
		return h - 1 - fy, fx
	case fb.TransformFlippedRotate180:
		fx, fy := w-1-x, y
		return w - 1 - fx, h - 1 - fy
	case fb.TransformFlippedRotate270:
		fx, fy := w-1-x, y
		return fy, w - 1 - fx
	default:
		return x, y
	}
}

// TransformRegion maps every rectangle in src (given in a w x h source
// buffer's coordinate space) into the coordinate space of the
// transformed output buffer.
func TransformRegion(t fb.Transform, src []image.Rectangle, w, h int) []image.Rectangle {
	if t == fb.TransformNormal {
		out := make([]image.Rectangle, len(src))
		copy(out, src)
		return out
	}
	out := make([]image.Rectangle, 0, len(src))
	for _, r := range src {
		x0, y0 := mapPoint(t, r.Min.X, r.Min.Y, w, h)
		x1, y1 := mapPoint(t, r.Max.X-1, r.Max.Y-1, w, h)
		if x1 < x0 {
			x0, x1 = x1, x0
		}
		if y1 < y0 {
			y0, y1 = y1, y0
		}
		out = append(out, image.Rect(x0, y0, x1+1, y1+1))
	}
	return out
}
