package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/dlport/internal/logging"
	"github.com/danmuck/dlport/internal/protocol/frame"
	"github.com/danmuck/dlport/internal/protocol/session"
	"github.com/danmuck/dlport/internal/transport"
)

var ErrInvalid = errors.New("config: invalid")

// Config is the resolved runtime configuration for dlportctl.
type Config struct {
	Session   session.Config
	Transport transport.Config
	Admin     AdminConfig
	Log       LogConfig
}

// AdminConfig enables the local HTTP admin surface when Listen is set.
// A non-empty Token is required as a bearer token on mutating routes.
type AdminConfig struct {
	Listen      string
	Token       string
	CorsOrigins []string
}

type LogConfig struct {
	Level   string
	File    string
	NoColor bool
}

func Default() Config {
	return Config{
		Session:   session.DefaultConfig(),
		Transport: transport.DefaultConfig(),
		Admin: AdminConfig{
			CorsOrigins: []string{"http://localhost:3000"},
		},
		Log: LogConfig{Level: "info"},
	}
}

func Validate(cfg Config) error {
	if err := cfg.Session.Validate(); err != nil {
		return err
	}
	kind := transport.Kind(strings.ToLower(strings.TrimSpace(string(cfg.Transport.Kind))))
	local := kind == "" || kind == transport.KindExec || kind == transport.KindUnix
	if local && cfg.Transport.TLS.Enabled {
		return fmt.Errorf("%w: %w", ErrInvalid, transport.ErrTLSUnsupported)
	}
	if err := cfg.Transport.TLS.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch kind {
	case "", transport.KindExec:
	case transport.KindTCP, transport.KindUnix, transport.KindWS:
		if strings.TrimSpace(cfg.Transport.Address) == "" {
			return fmt.Errorf("%w: transport %s requires address", ErrInvalid, cfg.Transport.Kind)
		}
	default:
		return fmt.Errorf("%w: transport kind %q", ErrInvalid, cfg.Transport.Kind)
	}
	if cfg.Transport.Limits.MaxReadBytes == 0 || cfg.Transport.Limits.MaxWriteBytes == 0 {
		return fmt.Errorf("%w: frame limits must be positive", ErrInvalid)
	}
	if lvl := strings.TrimSpace(cfg.Log.Level); lvl != "" {
		if _, ok := logging.ParseLevel(lvl); !ok {
			return fmt.Errorf("%w: log level %q", ErrInvalid, cfg.Log.Level)
		}
	}
	return nil
}

// Logging folds the log section over the runtime profile. Environment
// overrides are applied last.
func (c Config) Logging() logging.Config {
	out := logging.DefaultConfig(logging.ProfileRuntime)
	if lvl, ok := logging.ParseLevel(c.Log.Level); ok {
		out.Level = lvl
	}
	if f := strings.TrimSpace(c.Log.File); f != "" {
		out.File = f
	}
	if c.Log.NoColor {
		out.NoColor = true
	}
	logging.ApplyEnvOverrides(&out)
	return out
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalid, key)
	}
	return d, nil
}

func limitsOrDefault(read, write uint32) frame.Limits {
	limits := frame.DefaultLimits()
	if read > 0 {
		limits.MaxReadBytes = read
	}
	if write > 0 {
		limits.MaxWriteBytes = write
	}
	return limits
}
