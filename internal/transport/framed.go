package transport

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"

	"github.com/danmuck/dlport/internal/protocol"
	"github.com/danmuck/dlport/internal/protocol/frame"
)

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// FramedConn speaks length-prefixed envelopes over a byte stream.
type FramedConn struct {
	rwc    io.ReadWriteCloser
	reader *bufio.Reader
	codec  protocol.Codec
	limits frame.Limits

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

func NewFramedConn(rwc io.ReadWriteCloser, codec protocol.Codec, limits frame.Limits) *FramedConn {
	if codec == nil {
		codec = protocol.JSON()
	}
	return &FramedConn{
		rwc:    rwc,
		reader: bufio.NewReader(rwc),
		codec:  codec,
		limits: limits,
		closed: make(chan struct{}),
	}
}

func (c *FramedConn) Send(ctx context.Context, env protocol.Envelope) error {
	payload, err := c.codec.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	if wd, ok := c.rwc.(writeDeadliner); ok {
		deadline, _ := ctx.Deadline()
		_ = wd.SetWriteDeadline(deadline)
	}
	return frame.WriteFrame(c.rwc, payload, c.limits)
}

// Receive returns the next envelope. A frame that decodes to a malformed
// envelope yields protocol.ErrMalformedEnvelope and leaves the stream usable.
func (c *FramedConn) Receive() (protocol.Envelope, error) {
	payload, err := frame.ReadFrame(c.reader, c.limits)
	if err != nil {
		return protocol.Envelope{}, err
	}
	return c.codec.DecodeEnvelope(payload)
}

func (c *FramedConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.rwc.Close()
	})
	return c.closeErr
}
