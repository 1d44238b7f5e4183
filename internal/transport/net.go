package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/danmuck/dlport/internal/protocol"
	"github.com/danmuck/dlport/internal/protocol/frame"
)

// NetDialer connects to a helper already listening on a unix or tcp socket.
// A non-nil TLS wraps the stream after connect.
type NetDialer struct {
	Network string
	Address string
	Timeout time.Duration
	TLS     *tls.Config
	Codec   protocol.Codec
	Limits  frame.Limits
}

func (d *NetDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	rawConn, err := dialer.DialContext(ctx, d.Network, d.Address)
	if err != nil {
		return nil, err
	}
	if d.TLS == nil {
		return NewFramedConn(rawConn, d.Codec, d.Limits), nil
	}

	conn := tls.Client(rawConn, d.TLS)
	handshakeCtx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		handshakeCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return NewFramedConn(conn, d.Codec, d.Limits), nil
}
