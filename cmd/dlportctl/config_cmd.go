package main

import (
	"fmt"

	"github.com/danmuck/dlport/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Create or check a config file",
		Annotations: map[string]string{"skip-config": "true"},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write a config file populated with defaults",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"skip-config": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configArg(a, args)
			if err := config.WriteTemplate(path, force); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:         "validate [path]",
		Short:       "Load a config file and report problems",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"skip-config": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configArg(a, args)
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s ok: peer=%s codec=%s transport=%s\n",
				path, cfg.Session.Peer, cfg.Session.Codec, cfg.Transport.Kind)
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}

func configArg(a *app, args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	if a.flags.ConfigPath != "" {
		return a.flags.ConfigPath
	}
	return defaultConfigPath
}
