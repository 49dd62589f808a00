package bytevector

import (
	"bytes"
	"io"
	"testing"
)

func TestAppendAndReset(t *testing.T) {
	var v Vector
	v.AppendByte(0x01)
	v.Append([]byte{0x02, 0x03})
	if !bytes.Equal(v.Bytes(), []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("unexpected contents: %v", v.Bytes())
	}
	v.Reset()
	if v.Len() != 0 {
		t.Fatalf("expected empty vector after reset, got len=%d", v.Len())
	}
	v.AppendByte(0xAA)
	if !bytes.Equal(v.Bytes(), []byte{0xAA}) {
		t.Fatalf("unexpected contents after reset+append: %v", v.Bytes())
	}
}

func TestGrowPreservesContents(t *testing.T) {
	var v Vector
	v.Append([]byte{1, 2, 3})
	v.Grow(1024)
	if !bytes.Equal(v.Bytes(), []byte{1, 2, 3}) {
		t.Fatalf("Grow corrupted contents: %v", v.Bytes())
	}
}

func TestWriteImplementsIOWriter(t *testing.T) {
	var v Vector
	var w io.Writer = &v
	n, err := w.Write([]byte{0x10, 0x20})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected n=2, got %d", n)
	}
	n, err = w.Write([]byte{0x30})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected n=1, got %d", n)
	}
	if !bytes.Equal(v.Bytes(), []byte{0x10, 0x20, 0x30}) {
		t.Fatalf("unexpected contents: %v", v.Bytes())
	}
}
