package tight

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/jauntywunderkind/neatvnc/internal/pixfmt"
)

// JPEGSupported reports whether JPEG-mode tiles are available. Always
// true in this port (stdlib image/jpeg has no optional-build story) —
// exists so tests and callers can force the basic-mode fallback path
// deterministically, the way a build without libjpeg would.
var JPEGSupported = true

// jpegQuality maps a Quality level onto an image/jpeg quality setting.
// QualityLossless has no JPEG representation; callers must not reach
// here with it.
func jpegQuality(q Quality) (int, error) {
	switch q {
	case QualityHigh:
		return 66, nil
	case QualityLow:
		return 33, nil
	default:
		return 0, fmt.Errorf("tight: quality %v has no JPEG mode", q)
	}
}

// encodeTileJPEG JPEG-compresses one tile's pixels. Returns an error
// (rather than aborting, unlike basic mode) if the result would exceed
// MaxTileSize — the caller falls the tile back to basic mode.
func encodeTileJPEG(rect image.Rectangle, pixels []byte, stride int, srcFmt pixfmt.PixelFormat, quality Quality) ([]byte, error) {
	q, err := jpegQuality(quality)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	srcBPP := srcFmt.BytesPerPixel()
	px := make([]byte, 4)
	for y := 0; y < rect.Dy(); y++ {
		rowOff := (rect.Min.Y+y)*stride + rect.Min.X*srcBPP
		for x := 0; x < rect.Dx(); x++ {
			pixfmt.ConvertPixel(px, 0, rgbaFmt, 4, pixels, rowOff+x*srcBPP, srcFmt, srcBPP)
			img.SetRGBA(x, y, color.RGBA{R: px[0], G: px[1], B: px[2], A: 0xff})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, fmt.Errorf("tight: jpeg encode: %w", err)
	}
	if buf.Len() > MaxTileSize {
		return nil, fmt.Errorf("tight: jpeg tile exceeded max size (%d > %d)", buf.Len(), MaxTileSize)
	}
	return buf.Bytes(), nil
}

// rgbaFmt is the pixel format image.RGBA's SetRGBA expects: 8 bits per
// channel, red in byte 0.
var rgbaFmt = pixfmt.PixelFormat{
	BitsPerPixel: 32, Depth: 24, TrueColour: true,
	RedMax: 255, GreenMax: 255, BlueMax: 255,
	RedShift: 0, GreenShift: 8, BlueShift: 16,
}
