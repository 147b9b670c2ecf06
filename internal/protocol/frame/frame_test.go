package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/paisync/internal/testutil/testlog"
)

func TestWriteReadRoundTrip(t *testing.T) {
	testlog.Start(t)
	f, err := New([]byte{0x30, 0x00, 0x00, 0x00, 20, 26, 10, 14, 9, 30})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.Len() != Size {
		t.Fatalf("unexpected wire size=%d", buf.Len())
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != f {
		t.Fatalf("round-trip mismatch got=%s want=%s", got, f)
	}
	if got.Code() != 0x3 || got.Status() != 0x0 {
		t.Fatalf("unexpected code=%x status=%x", got.Code(), got.Status())
	}
}

func TestChecksumWraps(t *testing.T) {
	testlog.Start(t)
	if got := Checksum([]byte{0xFF, 0x02}); got != 0x01 {
		t.Fatalf("checksum got=%#x", got)
	}
}

func TestParseRejectsBadChecksum(t *testing.T) {
	testlog.Start(t)
	f, _ := New([]byte{0x12})
	b := f.Bytes()
	b[BodyLen]++
	if _, err := Parse(b); !errors.Is(err, ErrBadChecksum) {
		t.Fatalf("expected ErrBadChecksum, got %v", err)
	}
}

func TestParseRejectsLength(t *testing.T) {
	testlog.Start(t)
	if _, err := Parse(make([]byte, 10)); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestReadFrameShort(t *testing.T) {
	testlog.Start(t)
	if _, err := ReadFrame(bytes.NewReader(make([]byte, 12))); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}
	if _, err := ReadFrame(bytes.NewReader(nil)); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestNewBodyTooLarge(t *testing.T) {
	testlog.Start(t)
	if _, err := New(make([]byte, BodyLen+1)); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestLiveEventCode(t *testing.T) {
	testlog.Start(t)
	f, _ := New([]byte{0xE2})
	if !f.IsLiveEvent() {
		t.Fatalf("expected live event for %s", f)
	}
	r, _ := New([]byte{0x32})
	if r.IsLiveEvent() {
		t.Fatalf("unexpected live event for %s", r)
	}
}
