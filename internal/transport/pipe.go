package transport

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/danmuck/dlport/internal/protocol"
	"github.com/danmuck/dlport/internal/protocol/frame"
)

var ErrPipeClosed = errors.New("transport: pipe dialer closed")

// PipeDialer is an in-process peer link built on net.Pipe. Every Dial hands
// the far end to Accept, which the fake peer drives.
type PipeDialer struct {
	codec  protocol.Codec
	limits frame.Limits
	newCh  chan Conn

	mu      sync.Mutex
	refuse  error
	dials   int
	closed  bool
	closeCh chan struct{}
}

func NewPipeDialer(codec protocol.Codec) *PipeDialer {
	if codec == nil {
		codec = protocol.JSON()
	}
	return &PipeDialer{
		codec:   codec,
		limits:  frame.DefaultLimits(),
		newCh:   make(chan Conn, 8),
		closeCh: make(chan struct{}),
	}
}

// Refuse makes subsequent dials fail with err; nil restores dialing.
func (d *PipeDialer) Refuse(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refuse = err
}

// Dials reports how many dial attempts were made, refused ones included.
func (d *PipeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *PipeDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	refuse, closed := d.refuse, d.closed
	d.mu.Unlock()
	if closed {
		return nil, ErrPipeClosed
	}
	if refuse != nil {
		return nil, refuse
	}

	near, far := net.Pipe()
	peer := NewFramedConn(far, d.codec, d.limits)
	select {
	case d.newCh <- peer:
	case <-ctx.Done():
		_ = near.Close()
		_ = far.Close()
		return nil, ctx.Err()
	}
	return NewFramedConn(near, d.codec, d.limits), nil
}

// Accept returns the peer side of the next dialed pipe.
func (d *PipeDialer) Accept(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.closeCh:
		return nil, ErrPipeClosed
	case c := <-d.newCh:
		return c, nil
	}
}

func (d *PipeDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.closeCh)
	}
	return nil
}
