package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/danmuck/dlport/internal/config"
	"github.com/danmuck/dlport/internal/downloads"
	"github.com/danmuck/dlport/internal/logging"
	"github.com/danmuck/dlport/internal/protocol"
	"github.com/danmuck/dlport/internal/protocol/session"
	"github.com/danmuck/dlport/internal/transport"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "dlport.toml"

type globalFlags struct {
	ConfigPath string
	Peer       string
	Verbose    bool
}

// app carries the resolved configuration between cobra hooks and commands.
type app struct {
	flags globalFlags
	cfg   config.Config
	out   io.Writer

	// dialer overrides the configured transport; tests inject a pipe here.
	dialer transport.Dialer
}

func newRootCmd() *cobra.Command {
	return newAppCmd(&app{})
}

func newAppCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "dlportctl",
		Short:         "Drive a native download helper over its messaging channel",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			if cmd.Annotations["skip-config"] == "true" {
				return nil
			}
			return a.loadConfig()
		},
	}
	root.PersistentFlags().StringVarP(&a.flags.ConfigPath, "config", "c", "", "config file (default ./"+defaultConfigPath+" when present)")
	root.PersistentFlags().StringVar(&a.flags.Peer, "peer", "", "override the peer name")
	root.PersistentFlags().BoolVarP(&a.flags.Verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newConfigCmd(a),
		newDownloadCmd(a),
		newSearchCmd(a),
		newEraseCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
	)
	for _, op := range idOps {
		root.AddCommand(newIDCmd(a, op))
	}
	return root
}

func (a *app) loadConfig() error {
	path := a.flags.ConfigPath
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	cfg := config.Default()
	if _, err := os.Stat(path); err == nil || explicit {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if a.flags.Peer != "" {
		cfg.Session.Peer = a.flags.Peer
	}
	if a.flags.Verbose {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg
	logging.Apply(cfg.Logging())
	return nil
}

// client builds a downloads client. When connect is set the first channel
// attempt must succeed; the caller owns the returned close func.
func (a *app) client(ctx context.Context, connect bool) (*downloads.Client, func(), error) {
	dialer := a.dialer
	if dialer == nil {
		codec, err := protocol.CodecByName(a.cfg.Session.Codec)
		if err != nil {
			return nil, nil, err
		}
		tcfg := a.cfg.Transport
		if tcfg.Command == "" {
			tcfg.Command = a.cfg.Session.Peer
		}
		if dialer, err = transport.NewDialer(tcfg, codec); err != nil {
			return nil, nil, err
		}
	}
	mgr, err := session.NewManager(a.cfg.Session, dialer, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { _ = mgr.Close() }
	if connect {
		if err := mgr.Start(ctx); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("connect to %s: %w", a.cfg.Session.Peer, err)
		}
	}
	return downloads.NewClient(mgr), closeFn, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	return enc.Encode(v)
}

var errUsage = errors.New("usage")
