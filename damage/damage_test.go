package damage

import (
	"image"
	"testing"

	"github.com/jauntywunderkind/neatvnc/fb"
	"github.com/jauntywunderkind/neatvnc/internal/pixfmt"
)

func TestRefineFirstCallDamagesEverything(t *testing.T) {
	buf, err := fb.New(64, 64, pixfmt.XRGB8888)
	if err != nil {
		t.Fatalf("fb.New: %v", err)
	}
	r := NewRefinery(64, 64)

	out, err := r.Refine(buf, Region{image.Rect(0, 0, 64, 64)})
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if len(out) != 4 { // 64x64 px / 32px tiles = 2x2 grid
		t.Fatalf("expected 4 damaged tiles, got %d", len(out))
	}
}

func TestRefineSkipsUnchangedTiles(t *testing.T) {
	buf, _ := fb.New(64, 64, pixfmt.XRGB8888)
	r := NewRefinery(64, 64)

	full := Region{image.Rect(0, 0, 64, 64)}
	if _, err := r.Refine(buf, full); err != nil {
		t.Fatalf("first Refine: %v", err)
	}

	out, err := r.Refine(buf, full)
	if err != nil {
		t.Fatalf("second Refine: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no damage on unchanged buffer, got %d tiles", len(out))
	}
}

func TestRefineDetectsChangedTile(t *testing.T) {
	buf, _ := fb.New(64, 64, pixfmt.XRGB8888)
	r := NewRefinery(64, 64)
	full := Region{image.Rect(0, 0, 64, 64)}
	r.Refine(buf, full)

	pixels, _ := buf.Map()
	pixels[0] ^= 0xFF // mutate top-left tile only

	out, err := r.Refine(buf, full)
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected exactly 1 damaged tile, got %d", len(out))
	}
	if out[0] != image.Rect(0, 0, 32, 32) {
		t.Fatalf("unexpected damaged tile: %v", out[0])
	}
}

func TestResizeUnchangedPreservesHashes(t *testing.T) {
	buf, _ := fb.New(64, 64, pixfmt.XRGB8888)
	r := NewRefinery(64, 64)
	full := Region{image.Rect(0, 0, 64, 64)}
	if _, err := r.Refine(buf, full); err != nil {
		t.Fatalf("first Refine: %v", err)
	}

	// A same-size Resize (as display.FeedBuffer calls on every frame)
	// must not discard the hash cache.
	r.Resize(64, 64)

	out, err := r.Refine(buf, full)
	if err != nil {
		t.Fatalf("second Refine: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no damage after no-op Resize, got %d tiles", len(out))
	}
}

func TestRefinePartialTileAtEdge(t *testing.T) {
	buf, _ := fb.New(48, 48, pixfmt.XRGB8888)
	r := NewRefinery(48, 48)

	out, err := r.Refine(buf, Region{image.Rect(0, 0, 48, 48)})
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 tiles for 48x48 at 32px tiles, got %d", len(out))
	}
	for _, rect := range out {
		if rect.Max.X > 48 || rect.Max.Y > 48 {
			t.Fatalf("tile rect exceeds buffer bounds: %v", rect)
		}
	}
}
