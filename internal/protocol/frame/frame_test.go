package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	payload := []byte(`{"msg":"pause","req":0,"data":{"id":7}}`)
	var buf bytes.Buffer
	if err := WriteFrame(&buf, payload, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if got := binary.LittleEndian.Uint32(buf.Bytes()[:PrefixLen]); got != uint32(len(payload)) {
		t.Fatalf("prefix mismatch: got=%d want=%d", got, len(payload))
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("payload mismatch: %q", out)
	}
	if _, err := ReadFrame(&buf, DefaultLimits()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF on drained stream, got %v", err)
	}
}

func TestReadFrameShortPrefix(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2}), DefaultLimits())
	if !errors.Is(err, ErrShortPrefix) {
		t.Fatalf("expected ErrShortPrefix, got %v", err)
	}
}

func TestReadFrameTruncatedBody(t *testing.T) {
	buf := []byte{10, 0, 0, 0, '{', '}'}
	_, err := ReadFrame(bytes.NewReader(buf), DefaultLimits())
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadFrameRejectsEmptyAndOversize(t *testing.T) {
	if _, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 0}), DefaultLimits()); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	limits := Limits{MaxReadBytes: 4, MaxWriteBytes: 4}
	if _, err := ReadFrame(bytes.NewReader([]byte{5, 0, 0, 0, 1, 2, 3, 4, 5}), limits); !errors.Is(err, ErrReadTooLarge) {
		t.Fatalf("expected ErrReadTooLarge, got %v", err)
	}
	if err := WriteFrame(io.Discard, []byte("12345"), limits); !errors.Is(err, ErrWriteTooLarge) {
		t.Fatalf("expected ErrWriteTooLarge, got %v", err)
	}
	if err := WriteFrame(io.Discard, nil, limits); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}
