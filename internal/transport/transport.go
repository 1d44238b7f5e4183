package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/dlport/internal/protocol"
	"github.com/danmuck/dlport/internal/protocol/frame"
)

// Kind identifies how the channel to the peer is opened.
type Kind string

const (
	KindExec Kind = "exec"
	KindUnix Kind = "unix"
	KindTCP  Kind = "tcp"
	KindWS   Kind = "ws"
	KindPipe Kind = "pipe"
)

var (
	ErrUnsupportedKind = errors.New("transport: unsupported kind")
	ErrAddressRequired = errors.New("transport: address required")
	ErrConnClosed      = errors.New("transport: connection closed")
)

// Conn is one open channel to the peer.
type Conn interface {
	Send(ctx context.Context, env protocol.Envelope) error
	Receive() (protocol.Envelope, error)
	Close() error
}

// Dialer opens a fresh Conn to the named peer.
type Dialer interface {
	Dial(ctx context.Context, peer string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, peer string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, peer string) (Conn, error) {
	return f(ctx, peer)
}

// Config selects and parameterizes a Dialer.
type Config struct {
	Kind        Kind
	Command     string
	Args        []string
	Env         []string
	Dir         string
	Address     string
	DialTimeout time.Duration
	TLS         TLSConfig
	Limits      frame.Limits
}

func DefaultConfig() Config {
	return Config{
		Kind:        KindExec,
		DialTimeout: 5 * time.Second,
		Limits:      frame.DefaultLimits(),
	}
}

// NewDialer builds the dialer named by cfg.Kind.
func NewDialer(cfg Config, codec protocol.Codec) (Dialer, error) {
	if codec == nil {
		codec = protocol.JSON()
	}
	if cfg.Limits == (frame.Limits{}) {
		cfg.Limits = frame.DefaultLimits()
	}
	kind := Kind(strings.ToLower(strings.TrimSpace(string(cfg.Kind))))
	switch kind {
	case "", KindExec:
		if cfg.TLS.Enabled {
			return nil, fmt.Errorf("%w: exec", ErrTLSUnsupported)
		}
		return &ExecDialer{
			Command: cfg.Command,
			Args:    cfg.Args,
			Env:     cfg.Env,
			Dir:     cfg.Dir,
			Codec:   codec,
			Limits:  cfg.Limits,
		}, nil
	case KindUnix, KindTCP:
		if strings.TrimSpace(cfg.Address) == "" {
			return nil, ErrAddressRequired
		}
		if kind == KindUnix && cfg.TLS.Enabled {
			return nil, fmt.Errorf("%w: %s", ErrTLSUnsupported, kind)
		}
		tlsCfg, err := cfg.TLS.ClientConfig(cfg.Address)
		if err != nil {
			return nil, err
		}
		return &NetDialer{
			Network: string(kind),
			Address: cfg.Address,
			Timeout: cfg.DialTimeout,
			TLS:     tlsCfg,
			Codec:   codec,
			Limits:  cfg.Limits,
		}, nil
	case KindWS:
		if strings.TrimSpace(cfg.Address) == "" {
			return nil, ErrAddressRequired
		}
		tlsCfg, err := cfg.TLS.ClientConfig(cfg.Address)
		if err != nil {
			return nil, err
		}
		return &WSDialer{
			URL:     cfg.Address,
			Timeout: cfg.DialTimeout,
			TLS:     tlsCfg,
			Codec:   codec,
			Limits:  cfg.Limits,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, cfg.Kind)
	}
}
