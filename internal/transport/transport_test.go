package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/dlport/internal/protocol"
	"github.com/danmuck/dlport/internal/protocol/frame"
	"github.com/danmuck/dlport/internal/testutil/testlog"
	"github.com/gorilla/websocket"
)

const envWantHelper = "DLPORT_WANT_HELPER_PROCESS"

type stdio struct{}

func (stdio) Read(b []byte) (int, error)  { return os.Stdin.Read(b) }
func (stdio) Write(b []byte) (int, error) { return os.Stdout.Write(b) }
func (stdio) Close() error                { return os.Stdout.Close() }

// TestHelperProcess is the fake native helper spawned by exec dialer tests.
// It echoes every request payload back as the reply.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(envWantHelper) != "1" {
		return
	}
	conn := NewFramedConn(stdio{}, protocol.JSON(), frame.DefaultLimits())
	for {
		env, err := conn.Receive()
		if err != nil {
			os.Exit(0)
		}
		if env.Msg == "crash" {
			os.Exit(3)
		}
		if env.Msg == "stall" {
			time.Sleep(time.Minute)
			os.Exit(0)
		}
		if env.Req != nil {
			_ = conn.Send(context.Background(), protocol.Envelope{Req: env.Req, Data: env.Data})
		}
	}
}

func echoPeer(t *testing.T, conn Conn) {
	t.Helper()
	go func() {
		for {
			env, err := conn.Receive()
			if err != nil {
				return
			}
			_ = conn.Send(context.Background(), protocol.Envelope{Msg: env.Msg, Req: env.Req, Data: env.Data})
		}
	}()
}

func roundTrip(t *testing.T, conn Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := protocol.JSON().Marshal(map[string]int{"id": 9})
	if err := conn.Send(ctx, protocol.Envelope{Msg: "show", Req: protocol.RequestID(4), Data: data}); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := conn.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !got.IsReply() || *got.Req != 4 || string(got.Data) != `{"id":9}` {
		t.Fatalf("unexpected reply: %+v data=%s", got, got.Data)
	}
}

func TestPipeDialerRoundTrip(t *testing.T) {
	testlog.Start(t)
	d := NewPipeDialer(nil)
	defer d.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		peer, err := d.Accept(ctx)
		if err != nil {
			return
		}
		echoPeer(t, peer)
	}()
	conn, err := d.Dial(ctx, "fxdm")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	roundTrip(t, conn)
	if d.Dials() != 1 {
		t.Fatalf("unexpected dial count: %d", d.Dials())
	}
}

func TestPipeDialerRefuse(t *testing.T) {
	testlog.Start(t)
	d := NewPipeDialer(nil)
	refused := errors.New("helper not installed")
	d.Refuse(refused)
	if _, err := d.Dial(context.Background(), "fxdm"); !errors.Is(err, refused) {
		t.Fatalf("expected refusal, got %v", err)
	}
	_ = d.Close()
	if _, err := d.Dial(context.Background(), "fxdm"); !errors.Is(err, ErrPipeClosed) {
		t.Fatalf("expected ErrPipeClosed, got %v", err)
	}
}

func TestFramedConnPeerCloseIsEOF(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	conn := NewFramedConn(a, nil, frame.DefaultLimits())
	_ = b.Close()
	if _, err := conn.Receive(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	_ = conn.Close()
	if err := conn.Send(context.Background(), protocol.Envelope{Msg: "open"}); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("expected ErrConnClosed, got %v", err)
	}
}

func TestFramedConnMalformedEnvelopeKeepsStream(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	conn := NewFramedConn(a, nil, frame.DefaultLimits())
	defer conn.Close()
	go func() {
		_ = frame.WriteFrame(b, []byte(`not json`), frame.DefaultLimits())
		_ = frame.WriteFrame(b, []byte(`{"msg":"created","data":{"id":1}}`), frame.DefaultLimits())
	}()
	if _, err := conn.Receive(); !errors.Is(err, protocol.ErrMalformedEnvelope) {
		t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
	}
	env, err := conn.Receive()
	if err != nil || env.Msg != "created" {
		t.Fatalf("expected event after malformed frame, got %+v err=%v", env, err)
	}
}

func TestNetDialerTCP(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		echoPeer(t, NewFramedConn(c, nil, frame.DefaultLimits()))
	}()

	d, err := NewDialer(Config{Kind: KindTCP, Address: ln.Addr().String(), DialTimeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("new dialer: %v", err)
	}
	conn, err := d.Dial(context.Background(), "fxdm")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	roundTrip(t, conn)
}

func TestWSDialerRoundTrip(t *testing.T) {
	testlog.Start(t)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			mt, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	d, err := NewDialer(Config{Kind: KindWS, Address: url, DialTimeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("new dialer: %v", err)
	}
	conn, err := d.Dial(context.Background(), "fxdm")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	roundTrip(t, conn)
}

func TestExecDialerHelperProcess(t *testing.T) {
	testlog.Start(t)
	d := &ExecDialer{
		Command: os.Args[0],
		Args:    []string{"-test.run=^TestHelperProcess$"},
		Env:     []string{envWantHelper + "=1"},
		Codec:   protocol.JSON(),
		Limits:  frame.DefaultLimits(),
	}
	conn, err := d.Dial(context.Background(), "fxdm")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	roundTrip(t, conn)

	if err := conn.Send(context.Background(), protocol.Envelope{Msg: "crash"}); err != nil {
		t.Fatalf("send crash: %v", err)
	}
	if _, err := conn.Receive(); err == nil {
		t.Fatalf("expected receive error after helper exit")
	}
}

func TestExecDialerWriteDeadline(t *testing.T) {
	testlog.Start(t)
	if runtime.GOOS == "windows" {
		t.Skip("pipe write deadlines are not supported on windows")
	}
	d := &ExecDialer{
		Command: os.Args[0],
		Args:    []string{"-test.run=^TestHelperProcess$"},
		Env:     []string{envWantHelper + "=1"},
		Codec:   protocol.JSON(),
		Limits:  frame.DefaultLimits(),
	}
	conn, err := d.Dial(context.Background(), "fxdm")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.Send(context.Background(), protocol.Envelope{Msg: "stall"}); err != nil {
		t.Fatalf("send stall: %v", err)
	}

	// Larger than any pipe buffer, so the write blocks once the helper stops reading.
	big, _ := protocol.JSON().Marshal(strings.Repeat("x", 4<<20))
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- conn.Send(ctx, protocol.Envelope{Msg: "download", Req: protocol.RequestID(1), Data: big})
	}()
	select {
	case err := <-done:
		if !errors.Is(err, os.ErrDeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("send to a stalled helper ignored its deadline")
	}
}

func TestNewDialerValidation(t *testing.T) {
	testlog.Start(t)
	if _, err := NewDialer(Config{Kind: KindUnix}, nil); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got %v", err)
	}
	if _, err := NewDialer(Config{Kind: "carrier-pigeon"}, nil); !errors.Is(err, ErrUnsupportedKind) {
		t.Fatalf("expected ErrUnsupportedKind, got %v", err)
	}
	d, err := NewDialer(DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("default dialer: %v", err)
	}
	if _, ok := d.(*ExecDialer); !ok {
		t.Fatalf("expected exec dialer by default, got %T", d)
	}
}
