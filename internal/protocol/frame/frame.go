package frame

import (
	"encoding/binary"
	"errors"
	"io"
)

// PrefixLen is the size of the little-endian length prefix in front of
// every native messaging frame.
const PrefixLen = 4

var (
	ErrShortPrefix   = errors.New("frame: short length prefix")
	ErrEmptyMessage  = errors.New("frame: empty message")
	ErrReadTooLarge  = errors.New("frame: inbound message too large")
	ErrWriteTooLarge = errors.New("frame: outbound message too large")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxReadBytes  uint32
	MaxWriteBytes uint32
}

// DefaultLimits mirrors the native messaging caps: 1 MiB from the host and
// 64 MiB towards it.
func DefaultLimits() Limits {
	return Limits{
		MaxReadBytes:  1024 * 1024,
		MaxWriteBytes: 64 * 1024 * 1024,
	}
}

// ReadFrame reads one length-prefixed message. A clean EOF before any prefix
// byte is returned as io.EOF; a partial prefix is ErrShortPrefix.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var prefix [PrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortPrefix
		}
		return nil, err
	}
	n := binary.LittleEndian.Uint32(prefix[:])
	if n == 0 {
		return nil, ErrEmptyMessage
	}
	if limits.MaxReadBytes > 0 && n > limits.MaxReadBytes {
		return nil, ErrReadTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload behind its length prefix in a single Write so
// that concurrent readers never observe a prefix without its body.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	if len(payload) == 0 {
		return ErrEmptyMessage
	}
	if uint64(len(payload)) > uint64(^uint32(0)) ||
		(limits.MaxWriteBytes > 0 && uint32(len(payload)) > limits.MaxWriteBytes) {
		return ErrWriteTooLarge
	}
	buf := make([]byte, PrefixLen+len(payload))
	binary.LittleEndian.PutUint32(buf[:PrefixLen], uint32(len(payload)))
	copy(buf[PrefixLen:], payload)
	_, err := w.Write(buf)
	return err
}
