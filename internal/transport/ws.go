package transport

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/dlport/internal/protocol"
	"github.com/danmuck/dlport/internal/protocol/frame"
	"github.com/gorilla/websocket"
)

// WSDialer reaches a helper exposed over WebSocket. Each message carries one
// envelope, so no length prefix is used.
type WSDialer struct {
	URL     string
	Header  http.Header
	Timeout time.Duration
	TLS     *tls.Config
	Codec   protocol.Codec
	Limits  frame.Limits
}

func (d *WSDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.Timeout, TLSClientConfig: d.TLS}
	conn, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	if d.Limits.MaxReadBytes > 0 {
		conn.SetReadLimit(int64(d.Limits.MaxReadBytes))
	}
	codec := d.Codec
	if codec == nil {
		codec = protocol.JSON()
	}
	return NewWSConn(conn, codec), nil
}

// WSConn carries envelopes over an established WebSocket.
type WSConn struct {
	conn  *websocket.Conn
	codec protocol.Codec
	mtype int

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func NewWSConn(conn *websocket.Conn, codec protocol.Codec) *WSConn {
	mtype := websocket.TextMessage
	if codec.Name() != protocol.CodecJSON {
		mtype = websocket.BinaryMessage
	}
	return &WSConn{conn: conn, codec: codec, mtype: mtype}
}

func (c *WSConn) Send(ctx context.Context, env protocol.Envelope) error {
	payload, err := c.codec.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	deadline, _ := ctx.Deadline()
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(c.mtype, payload)
}

func (c *WSConn) Receive() (protocol.Envelope, error) {
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, err
	}
	return c.codec.DecodeEnvelope(payload)
}

func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.wmu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
