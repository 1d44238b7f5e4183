package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/dlport/internal/transport"
)

// File mirrors the on-disk toml layout. Durations are strings such as "1s".
type File struct {
	Peer           string        `toml:"peer"`
	Codec          string        `toml:"codec"`
	DialTimeout    string        `toml:"dial_timeout"`
	WriteTimeout   string        `toml:"write_timeout"`
	RequestTimeout string        `toml:"request_timeout"`
	Reconnect      ReconnectFile `toml:"reconnect"`
	Transport      TransportFile `toml:"transport"`
	Admin          AdminFile     `toml:"admin"`
	Log            LogFile       `toml:"log"`
}

type ReconnectFile struct {
	Delay      string  `toml:"delay"`
	Multiplier float64 `toml:"multiplier"`
	MaxDelay   string  `toml:"max_delay"`
	Jitter     bool    `toml:"jitter"`
}

type TransportFile struct {
	Kind          string   `toml:"kind"`
	Command       string   `toml:"command"`
	Args          []string `toml:"args"`
	Dir           string   `toml:"dir"`
	Address       string   `toml:"address"`
	MaxReadBytes  uint32   `toml:"max_read_bytes"`
	MaxWriteBytes uint32   `toml:"max_write_bytes"`
	TLS           TLSFile  `toml:"tls"`
}

type TLSFile struct {
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	CAFile             string `toml:"ca_file"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

type AdminFile struct {
	Listen      string   `toml:"listen"`
	Token       string   `toml:"token"`
	CorsOrigins []string `toml:"cors_origins"`
}

type LogFile struct {
	Level   string `toml:"level"`
	File    string `toml:"file"`
	NoColor bool   `toml:"no_color"`
}

// Load reads path over Default. Keys absent from the file keep their
// defaults; the result is validated.
func Load(path string) (Config, error) {
	var raw File
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalid, undecoded[0].String())
	}
	cfg, err := apply(Default(), raw, meta)
	if err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func apply(cfg Config, raw File, meta toml.MetaData) (Config, error) {
	var err error
	if meta.IsDefined("peer") {
		cfg.Session.Peer = strings.TrimSpace(raw.Peer)
	}
	if meta.IsDefined("codec") {
		cfg.Session.Codec = strings.ToLower(strings.TrimSpace(raw.Codec))
	}
	if meta.IsDefined("dial_timeout") {
		if cfg.Session.DialTimeout, err = parseDuration("dial_timeout", raw.DialTimeout); err != nil {
			return Config{}, err
		}
		cfg.Transport.DialTimeout = cfg.Session.DialTimeout
	}
	if meta.IsDefined("write_timeout") {
		if cfg.Session.WriteTimeout, err = parseDuration("write_timeout", raw.WriteTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("request_timeout") {
		if cfg.Session.RequestTimeout, err = parseDuration("request_timeout", raw.RequestTimeout); err != nil {
			return Config{}, err
		}
	}

	if meta.IsDefined("reconnect", "delay") {
		if cfg.Session.Reconnect.InitialDelay, err = parseDuration("reconnect.delay", raw.Reconnect.Delay); err != nil {
			return Config{}, err
		}
		if !meta.IsDefined("reconnect", "max_delay") {
			cfg.Session.Reconnect.MaxDelay = cfg.Session.Reconnect.InitialDelay
		}
	}
	if meta.IsDefined("reconnect", "max_delay") {
		if cfg.Session.Reconnect.MaxDelay, err = parseDuration("reconnect.max_delay", raw.Reconnect.MaxDelay); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("reconnect", "multiplier") {
		cfg.Session.Reconnect.Multiplier = raw.Reconnect.Multiplier
	}
	if meta.IsDefined("reconnect", "jitter") {
		cfg.Session.Reconnect.Jitter = raw.Reconnect.Jitter
	}

	if meta.IsDefined("transport", "kind") {
		cfg.Transport.Kind = transport.Kind(strings.ToLower(strings.TrimSpace(raw.Transport.Kind)))
	}
	if meta.IsDefined("transport", "command") {
		cfg.Transport.Command = strings.TrimSpace(raw.Transport.Command)
	}
	if meta.IsDefined("transport", "args") {
		cfg.Transport.Args = raw.Transport.Args
	}
	if meta.IsDefined("transport", "dir") {
		cfg.Transport.Dir = strings.TrimSpace(raw.Transport.Dir)
	}
	if meta.IsDefined("transport", "address") {
		cfg.Transport.Address = strings.TrimSpace(raw.Transport.Address)
	}
	cfg.Transport.Limits = limitsOrDefault(raw.Transport.MaxReadBytes, raw.Transport.MaxWriteBytes)
	if meta.IsDefined("transport", "tls") {
		cfg.Transport.TLS = transport.TLSConfig{
			Enabled:            raw.Transport.TLS.Enabled,
			Mutual:             raw.Transport.TLS.Mutual,
			CAFile:             strings.TrimSpace(raw.Transport.TLS.CAFile),
			CertFile:           strings.TrimSpace(raw.Transport.TLS.CertFile),
			KeyFile:            strings.TrimSpace(raw.Transport.TLS.KeyFile),
			ServerName:         strings.TrimSpace(raw.Transport.TLS.ServerName),
			InsecureSkipVerify: raw.Transport.TLS.InsecureSkipVerify,
		}
	}

	if meta.IsDefined("admin", "listen") {
		cfg.Admin.Listen = strings.TrimSpace(raw.Admin.Listen)
	}
	if meta.IsDefined("admin", "token") {
		cfg.Admin.Token = strings.TrimSpace(raw.Admin.Token)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CorsOrigins = normalizeList(raw.Admin.CorsOrigins)
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "file") {
		cfg.Log.File = strings.TrimSpace(raw.Log.File)
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}
	return cfg, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
