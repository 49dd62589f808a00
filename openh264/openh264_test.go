package openh264

import (
	"testing"

	"github.com/jauntywunderkind/neatvnc/internal/scheduler"
)

func TestReadEmptyReturnsNil(t *testing.T) {
	s := New(scheduler.Inline{}, nil)
	out, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil output with nothing pending, got %v", out)
	}
}

func TestReadFramesPendingData(t *testing.T) {
	s := New(scheduler.Inline{}, nil)
	s.width, s.height = 640, 480
	s.needsReset = true
	s.handlePacket([]byte{1, 2, 3, 4}, true)

	out, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty rectangle output")
	}

	rectCount := int(out[0])<<8 | int(out[1])
	if rectCount != 1 {
		t.Fatalf("expected rect count 1, got %d", rectCount)
	}

	// Second read with nothing new pending should report nothing.
	out2, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out2 != nil {
		t.Fatalf("expected nil on second read, got %v", out2)
	}
}

func TestReadyCallbackFiresOnPacket(t *testing.T) {
	fired := 0
	s := New(scheduler.Inline{}, func() { fired++ })
	s.handlePacket([]byte{9}, false)
	if fired != 1 {
		t.Fatalf("expected onReady to fire once, got %d", fired)
	}
}
