// Package fb implements the server-side framebuffer handle shared by
// every stage of the frame pipeline. An FB carries two independent
// lifecycle counters: ref, which governs when the underlying storage is
// freed, and hold, which governs when the producer that handed the
// buffer to the pipeline gets it back. Both are safe to manipulate from
// any goroutine.
package fb

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jauntywunderkind/neatvnc/internal/pixfmt"
)

// Transform describes a rotation/flip applied to a buffer's contents
// relative to how it should be displayed. Values match the eight
// dihedral-group orientations a compositor hands the server.
type Transform int

const (
	TransformNormal Transform = iota
	TransformRotate90
	TransformRotate180
	TransformRotate270
	TransformFlipped
	TransformFlippedRotate90
	TransformFlippedRotate180
	TransformFlippedRotate270
)

// StorageKind distinguishes buffers backed by plain Go memory from
// buffers backed by a GPU buffer object that must be imported before its
// pixels are CPU-readable.
type StorageKind int

const (
	StorageSystemMemory StorageKind = iota
	StorageGPUBuffer
)

// ErrHeldAtFinalUnref is returned by Unref (as a panic value, matching
// the C source's assertion) when the last reference is dropped while the
// buffer is still held — that is always a caller bug, never a runtime
// condition the pipeline can recover from.
var ErrHeldAtFinalUnref = errors.New("fb: unref of last reference while still held")

// ImportFunc lazily maps a GPU-backed buffer's contents into CPU-visible
// memory. It is called the first time Map is called; a successful
// result is cached, while a failed import is attempted again on the
// next Map.
type ImportFunc func() ([]byte, error)

// FB is a reference- and hold-counted framebuffer handle.
//
// ref tracks memory lifetime: storage is released when ref reaches zero.
// hold tracks pipeline possession: a component calls Hold before it
// starts reading a buffer's pixels and Release when it is done; the
// OnRelease callback fires every time hold returns to zero, telling the
// producer the buffer is safe to reuse. The two counters are independent
// — a buffer can be ref'd by several owners while only one of them holds
// it for processing.
type FB struct {
	Width, Height uint32
	Format        pixfmt.FourCC
	Modifier      uint64
	Storage       StorageKind
	TraceID       string

	transform atomic.Int32

	ref  atomic.Int32
	hold atomic.Int32

	addr   []byte
	mapped atomic.Bool
	imp    ImportFunc

	onRelease  func(*FB)
	releaseCtx any
}

// New creates a system-memory FB and allocates its backing storage
// immediately — width*height*bytesPerPixel zeroed bytes.
func New(width, height uint32, format pixfmt.FourCC) (*FB, error) {
	bpp, err := pixfmt.BytesPerPixel(format)
	if err != nil {
		return nil, fmt.Errorf("fb: %w", err)
	}
	f := &FB{
		Width:   width,
		Height:  height,
		Format:  format,
		Storage: StorageSystemMemory,
		TraceID: uuid.New().String(),
		addr:    make([]byte, int(width)*int(height)*bpp),
	}
	f.mapped.Store(true)
	f.ref.Store(1)
	return f, nil
}

// NewGPUBuffer creates an FB backed by a GPU buffer object. Its pixels
// are not readable until Map is called, which invokes imp exactly once.
func NewGPUBuffer(width, height uint32, format pixfmt.FourCC, modifier uint64, imp ImportFunc) (*FB, error) {
	if imp == nil {
		return nil, fmt.Errorf("fb: NewGPUBuffer requires a non-nil ImportFunc")
	}
	f := &FB{
		Width:    width,
		Height:   height,
		Format:   format,
		Modifier: modifier,
		Storage:  StorageGPUBuffer,
		TraceID:  uuid.New().String(),
		imp:      imp,
	}
	f.ref.Store(1)
	return f, nil
}

// SetOnRelease attaches the callback invoked whenever hold transitions
// to zero. Must be called before the FB is handed to the pipeline.
func (f *FB) SetOnRelease(fn func(*FB), ctx any) {
	f.onRelease = fn
	f.releaseCtx = ctx
}

// ReleaseContext returns the opaque value passed to SetOnRelease.
func (f *FB) ReleaseContext() any { return f.releaseCtx }

// Transform returns the buffer's current orientation.
func (f *FB) Transform() Transform { return Transform(f.transform.Load()) }

// SetTransform updates the buffer's orientation.
func (f *FB) SetTransform(t Transform) { f.transform.Store(int32(t)) }

// Ref increments the reference count.
func (f *FB) Ref() { f.ref.Add(1) }

// Unref decrements the reference count. When it reaches zero the buffer
// is retired: if hold is still positive at that point the caller has
// violated the lifecycle contract (the buffer is still in the pipeline)
// and Unref panics, matching the C source's assert.
func (f *FB) Unref() {
	if f.ref.Add(-1) == 0 {
		if f.hold.Load() > 0 {
			panic(ErrHeldAtFinalUnref)
		}
		f.addr = nil
	}
}

// Hold increments the hold count, signalling that the caller now
// possesses the buffer for processing.
func (f *FB) Hold() { f.hold.Add(1) }

// Release decrements the hold count. Every time the count returns to
// zero, the OnRelease callback set via SetOnRelease fires synchronously.
func (f *FB) Release() {
	if f.hold.Add(-1) == 0 && f.onRelease != nil {
		f.onRelease(f)
	}
}

// HoldCount reports the current hold count, for tests and diagnostics.
func (f *FB) HoldCount() int32 { return f.hold.Load() }

// Map returns the CPU-visible pixel bytes, importing a GPU buffer object
// on first call.
func (f *FB) Map() ([]byte, error) {
	if f.mapped.Load() {
		return f.addr, nil
	}
	if f.imp == nil {
		return nil, fmt.Errorf("fb: buffer has no import function configured")
	}
	addr, err := f.imp()
	if err != nil {
		return nil, fmt.Errorf("fb: map failed: %w", err)
	}
	f.addr = addr
	f.mapped.Store(true)
	return f.addr, nil
}

// Stride returns the row pitch in bytes, assuming tightly packed rows
// (width * bytes-per-pixel).
func (f *FB) Stride() (int, error) {
	bpp, err := pixfmt.BytesPerPixel(f.Format)
	if err != nil {
		return 0, fmt.Errorf("fb: %w", err)
	}
	return int(f.Width) * bpp, nil
}
