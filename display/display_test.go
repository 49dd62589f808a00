package display

import (
	"image"
	"testing"

	"github.com/jauntywunderkind/neatvnc/damage"
	"github.com/jauntywunderkind/neatvnc/fb"
	"github.com/jauntywunderkind/neatvnc/internal/pixfmt"
	"github.com/jauntywunderkind/neatvnc/internal/scheduler"
)

func TestFeedBufferNormalTransformNotifiesDamage(t *testing.T) {
	var gotBuf *fb.FB
	var gotDamage damage.Region

	d := New(scheduler.Inline{}, 0, 0, func(buf *fb.FB, region damage.Region) {
		gotBuf = buf
		gotDamage = region
	}, nil)

	buf, err := fb.New(64, 64, pixfmt.XRGB8888)
	if err != nil {
		t.Fatalf("fb.New: %v", err)
	}

	d.FeedBuffer(buf, damage.Region{image.Rect(0, 0, 64, 64)})

	if gotBuf == nil {
		t.Fatal("onDamage was never called")
	}
	if len(gotDamage) == 0 {
		t.Fatal("expected non-empty damage region")
	}
	if d.CurrentBuffer() != gotBuf {
		t.Fatal("CurrentBuffer should match the buffer passed to onDamage")
	}
	if d.IsOpenH264Supported() {
		t.Fatal("system-memory buffers should never be open-h264 eligible")
	}
}

func TestFeedBufferSecondCallReleasesFirst(t *testing.T) {
	d := New(scheduler.Inline{}, 0, 0, func(*fb.FB, damage.Region) {}, nil)

	buf1, _ := fb.New(32, 32, pixfmt.XRGB8888)
	released1 := 0
	buf1.SetOnRelease(func(*fb.FB) { released1++ }, nil)

	d.FeedBuffer(buf1, damage.Region{image.Rect(0, 0, 32, 32)})
	if released1 != 0 {
		t.Fatalf("first buffer should still be held after becoming current, got %d releases", released1)
	}

	buf2, _ := fb.New(32, 32, pixfmt.XRGB8888)
	d.FeedBuffer(buf2, damage.Region{image.Rect(0, 0, 32, 32)})

	if released1 != 1 {
		t.Fatalf("expected first buffer released once superseded, got %d", released1)
	}
	if d.CurrentBuffer() == nil {
		t.Fatal("expected a current buffer after second feed")
	}
}

func TestUnrefTearsDownCurrentBuffer(t *testing.T) {
	d := New(scheduler.Inline{}, 0, 0, func(*fb.FB, damage.Region) {}, nil)

	buf, _ := fb.New(16, 16, pixfmt.XRGB8888)
	released := 0
	buf.SetOnRelease(func(*fb.FB) { released++ }, nil)

	d.FeedBuffer(buf, damage.Region{image.Rect(0, 0, 16, 16)})
	d.Unref()

	if released != 1 {
		t.Fatalf("expected current buffer released on teardown, got %d", released)
	}
}

func TestStreamWithNoEncoderActivityReturnsNil(t *testing.T) {
	d := New(scheduler.Inline{}, 0, 0, func(*fb.FB, damage.Region) {}, nil)
	out, err := d.Stream()
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil output with no open-h264 activity, got %v", out)
	}
}
