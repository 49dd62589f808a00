package tight

import (
	"image"
	"testing"

	"github.com/jauntywunderkind/neatvnc/damage"
	"github.com/jauntywunderkind/neatvnc/fb"
	"github.com/jauntywunderkind/neatvnc/internal/pixfmt"
	"github.com/jauntywunderkind/neatvnc/internal/scheduler"
)

func TestEncodeFrameNoDamage(t *testing.T) {
	buf, _ := fb.New(128, 128, pixfmt.XRGB8888)
	e := New(scheduler.Inline{}, 128, 128)

	err := e.EncodeFrame(buf, nil, QualityLossless, func([]byte, error) {
		t.Fatal("done should not be called when EncodeFrame returns ErrNoDamage")
	})
	if err != ErrNoDamage {
		t.Fatalf("expected ErrNoDamage, got %v", err)
	}
}

func TestEncodeFrameBasicModeProducesRects(t *testing.T) {
	buf, _ := fb.New(128, 128, pixfmt.XRGB8888)
	e := New(scheduler.Inline{}, 128, 128)

	var out []byte
	var outErr error
	called := false
	err := e.EncodeFrame(buf, damage.Region{image.Rect(0, 0, 128, 128)}, QualityLossless, func(o []byte, e error) {
		called = true
		out = o
		outErr = e
	})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if !called {
		t.Fatal("done was never invoked")
	}
	if outErr != nil {
		t.Fatalf("unexpected encode error: %v", outErr)
	}

	// 128x128 at 64px tiles is a 2x2 grid: rect-count header (2 bytes)
	// should report 4 rectangles.
	if len(out) < 2 {
		t.Fatalf("output too short: %d bytes", len(out))
	}
	rectCount := int(out[0])<<8 | int(out[1])
	if rectCount != 4 {
		t.Fatalf("expected 4 rectangles, got %d", rectCount)
	}
}

func TestEncodeFramePartialDamageFewerRects(t *testing.T) {
	buf, _ := fb.New(128, 128, pixfmt.XRGB8888)
	e := New(scheduler.Inline{}, 128, 128)

	var out []byte
	err := e.EncodeFrame(buf, damage.Region{image.Rect(0, 0, 64, 64)}, QualityLossless, func(o []byte, _ error) {
		out = o
	})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	rectCount := int(out[0])<<8 | int(out[1])
	if rectCount != 1 {
		t.Fatalf("expected 1 rectangle for a single-tile damage hint, got %d", rectCount)
	}
}

func TestEncodeFrameReleasesBuffer(t *testing.T) {
	buf, _ := fb.New(64, 64, pixfmt.XRGB8888)
	released := 0
	buf.SetOnRelease(func(*fb.FB) { released++ }, nil)

	e := New(scheduler.Inline{}, 64, 64)
	e.EncodeFrame(buf, damage.Region{image.Rect(0, 0, 64, 64)}, QualityLossless, func([]byte, error) {})

	if released != 1 {
		t.Fatalf("expected buffer to be released exactly once after encode, got %d", released)
	}
	if buf.HoldCount() != 0 {
		t.Fatalf("expected hold count 0 after encode, got %d", buf.HoldCount())
	}
}

func TestEncodeFrameJPEGMode(t *testing.T) {
	buf, _ := fb.New(64, 64, pixfmt.XRGB8888)
	e := New(scheduler.Inline{}, 64, 64)

	var out []byte
	var outErr error
	err := e.EncodeFrame(buf, damage.Region{image.Rect(0, 0, 64, 64)}, QualityHigh, func(o []byte, e error) {
		out = o
		outErr = e
	})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if outErr != nil {
		t.Fatalf("unexpected encode error: %v", outErr)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty jpeg-mode output")
	}
}
