package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/dlport/internal/protocol"
)

// DefaultPeer names the companion download helper.
const DefaultPeer = "fxdm"

var ErrInvalidConfig = errors.New("session: invalid config")

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines channel and request defaults.
// RequestTimeout zero means a request waits until replied or disconnected.
type Config struct {
	Peer           string
	Codec          string
	Reconnect      BackoffConfig
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
}

// DefaultConfig reconnects on a fixed one second cadence; the helper is
// local and expected to come back quickly.
func DefaultConfig() Config {
	return Config{
		Peer:  DefaultPeer,
		Codec: protocol.CodecJSON,
		Reconnect: BackoffConfig{
			InitialDelay: time.Second,
			Multiplier:   1.0,
			MaxDelay:     time.Second,
			Jitter:       false,
		},
		DialTimeout:    5 * time.Second,
		WriteTimeout:   15 * time.Second,
		RequestTimeout: 0,
	}
}

func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.Peer) == "" {
		c.Peer = def.Peer
	}
	if strings.TrimSpace(c.Codec) == "" {
		c.Codec = def.Codec
	}
	if c.Reconnect.InitialDelay <= 0 {
		c.Reconnect.InitialDelay = def.Reconnect.InitialDelay
	}
	if c.Reconnect.Multiplier < 1.0 {
		c.Reconnect.Multiplier = 1.0
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}
	if c.RequestTimeout < 0 {
		c.RequestTimeout = 0
	}
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Peer) == "" {
		return fmt.Errorf("%w: missing peer", ErrInvalidConfig)
	}
	if _, err := protocol.CodecByName(c.Codec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Reconnect.InitialDelay <= 0 {
		return fmt.Errorf("%w: reconnect delay must be positive", ErrInvalidConfig)
	}
	if c.Reconnect.MaxDelay > 0 && c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return fmt.Errorf("%w: reconnect max delay below initial delay", ErrInvalidConfig)
	}
	return nil
}
