// Package pixfmt maps DRM-style FourCC pixel formats onto the RFB
// PixelFormat record (RFC 6143 §7.4) and provides the shift/mask
// arithmetic the Tight encoder and resampler need to convert raw
// framebuffer bytes into RFB "compact pixels".
package pixfmt

import "fmt"

// FourCC identifies a pixel layout the way DRM/GBM does: four ASCII
// characters packed little-endian into a uint32.
type FourCC uint32

func fourcc(a, b, c, d byte) FourCC {
	return FourCC(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

var (
	XRGB8888 = fourcc('X', 'R', '2', '4')
	XBGR8888 = fourcc('X', 'B', '2', '4')
	RGBX8888 = fourcc('R', 'X', '2', '4')
	BGRX8888 = fourcc('B', 'X', '2', '4')
	ARGB8888 = fourcc('A', 'R', '2', '4')
	ABGR8888 = fourcc('A', 'B', '2', '4')
	RGBA8888 = fourcc('R', 'A', '2', '4')
	BGRA8888 = fourcc('B', 'A', '2', '4')
	RGB565   = fourcc('R', 'G', '1', '6')
)

// PixelFormat mirrors the wire layout of an RFB PIXEL_FORMAT structure.
// Field names and meanings match RFC 6143 §7.4 exactly so the values can
// be serialised without translation.
type PixelFormat struct {
	BitsPerPixel uint8
	Depth        uint8
	BigEndian    bool
	TrueColour   bool
	RedMax       uint16
	GreenMax     uint16
	BlueMax      uint16
	RedShift     uint8
	GreenShift   uint8
	BlueShift    uint8
}

// BytesPerPixel returns the storage width of one pixel in this format.
func (f PixelFormat) BytesPerPixel() int {
	return int(f.BitsPerPixel) / 8
}

type entry struct {
	fmt        PixelFormat
	bytesPerPx int
}

var table = map[FourCC]entry{
	XRGB8888: {PixelFormat{32, 24, false, true, 255, 255, 255, 16, 8, 0}, 4},
	RGBX8888: {PixelFormat{32, 24, false, true, 255, 255, 255, 24, 16, 8}, 4},
	XBGR8888: {PixelFormat{32, 24, false, true, 255, 255, 255, 0, 8, 16}, 4},
	BGRX8888: {PixelFormat{32, 24, false, true, 255, 255, 255, 8, 16, 24}, 4},
	ARGB8888: {PixelFormat{32, 24, false, true, 255, 255, 255, 16, 8, 0}, 4},
	ABGR8888: {PixelFormat{32, 24, false, true, 255, 255, 255, 0, 8, 16}, 4},
	RGBA8888: {PixelFormat{32, 24, false, true, 255, 255, 255, 24, 16, 8}, 4},
	BGRA8888: {PixelFormat{32, 24, false, true, 255, 255, 255, 8, 16, 24}, 4},
	RGB565:   {PixelFormat{16, 16, false, true, 31, 63, 31, 11, 5, 0}, 2},
}

// FromFourCC looks up the RFB pixel format record for a DRM FourCC code.
func FromFourCC(f FourCC) (PixelFormat, error) {
	e, ok := table[f]
	if !ok {
		return PixelFormat{}, fmt.Errorf("pixfmt: unsupported fourcc %#08x", uint32(f))
	}
	return e.fmt, nil
}

// BytesPerPixel returns the storage width of a FourCC's samples, or an
// error if the format is not in the table.
func BytesPerPixel(f FourCC) (int, error) {
	e, ok := table[f]
	if !ok {
		return 0, fmt.Errorf("pixfmt: unsupported fourcc %#08x", uint32(f))
	}
	return e.bytesPerPx, nil
}

// ConvertPixel reads one source pixel at src[srcOff:] (srcBPP bytes,
// little-endian channel order implied by srcFmt's shifts) and writes the
// equivalent pixel into dst[dstOff:] using dstFmt's layout. dstBPP is the
// number of bytes to write (1, 2, 3 or 4 — the Tight "compact pixel"
// width, which may be narrower than dstFmt.BytesPerPixel()).
//
// This is the Go equivalent of pixel32_to_cpixel: the source word is
// assembled from srcBPP little-endian bytes, each channel is rescaled
// from srcFmt's maximum to dstFmt's, and the destination is written in
// whatever width the caller asked for.
func ConvertPixel(dst []byte, dstOff int, dstFmt PixelFormat, dstBPP int, src []byte, srcOff int, srcFmt PixelFormat, srcBPP int) {
	var word uint32
	for i := 0; i < srcBPP; i++ {
		word |= uint32(src[srcOff+i]) << (8 * i)
	}

	r := ((word >> srcFmt.RedShift) & uint32(srcFmt.RedMax)) * uint32(dstFmt.RedMax) / uint32(srcFmt.RedMax)
	g := ((word >> srcFmt.GreenShift) & uint32(srcFmt.GreenMax)) * uint32(dstFmt.GreenMax) / uint32(srcFmt.GreenMax)
	b := ((word >> srcFmt.BlueShift) & uint32(srcFmt.BlueMax)) * uint32(dstFmt.BlueMax) / uint32(srcFmt.BlueMax)

	var out uint32
	out |= r << dstFmt.RedShift
	out |= g << dstFmt.GreenShift
	out |= b << dstFmt.BlueShift

	if dstFmt.BigEndian {
		for i := 0; i < dstBPP; i++ {
			dst[dstOff+i] = byte(out >> (8 * (dstBPP - 1 - i)))
		}
		return
	}
	for i := 0; i < dstBPP; i++ {
		dst[dstOff+i] = byte(out >> (8 * i))
	}
}
