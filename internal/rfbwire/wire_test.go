package rfbwire

import (
	"bytes"
	"testing"
)

func TestRectHeadAppend(t *testing.T) {
	h := RectHead{X: 1, Y: 2, Width: 640, Height: 480, Encoding: EncodingTight}
	got := h.Append(nil)
	want := []byte{
		0x00, 0x01, // x
		0x00, 0x02, // y
		0x02, 0x80, // width 640
		0x01, 0xE0, // height 480
		0x00, 0x00, 0x00, 0x07, // encoding 7
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestCompactLengthRoundTrip(t *testing.T) {
	cases := []int{0, 1, 127, 128, 16383, 16384, 1<<20 - 1}
	for _, n := range cases {
		encoded, err := AppendCompactLength(nil, n)
		if err != nil {
			t.Fatalf("AppendCompactLength(%d): %v", n, err)
		}
		if len(encoded) != CompactLengthSize(n) {
			t.Fatalf("size mismatch for %d: got %d want %d", n, len(encoded), CompactLengthSize(n))
		}
		// decode
		got := 0
		shift := 0
		for i, b := range encoded {
			got |= int(b&0x7f) << shift
			shift += 7
			if b&0x80 == 0 {
				if i != len(encoded)-1 {
					t.Fatalf("continuation bit clear before last byte for %d", n)
				}
			}
		}
		if got != n {
			t.Fatalf("round trip failed: encoded %d as % x, decoded %d", n, encoded, got)
		}
	}
}

func TestAppendCompactLengthOutOfRange(t *testing.T) {
	if _, err := AppendCompactLength(nil, -1); err == nil {
		t.Fatal("expected error for negative length")
	}
	if _, err := AppendCompactLength(nil, 1<<24); err == nil {
		t.Fatal("expected error for length >= 2^24")
	}
}

func TestAppendRectCount(t *testing.T) {
	got := AppendRectCount(nil, 4)
	if !bytes.Equal(got, []byte{0x00, 0x04}) {
		t.Fatalf("got % x", got)
	}
}
