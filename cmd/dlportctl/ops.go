package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/dlport/internal/downloads"
	"github.com/spf13/cobra"
)

type idOp struct {
	use   string
	msg   string
	short string
	run   func(c *downloads.Client, ctx context.Context, id int) error
}

var idOps = []idOp{
	{"open", downloads.OpOpen, "Open a finished download", (*downloads.Client).Open},
	{"show", downloads.OpShow, "Reveal a download in its folder", (*downloads.Client).Show},
	{"pause", downloads.OpPause, "Pause a download", (*downloads.Client).Pause},
	{"resume", downloads.OpResume, "Resume a paused download", (*downloads.Client).Resume},
	{"cancel", downloads.OpCancel, "Cancel a download", (*downloads.Client).Cancel},
	{"remove-file", downloads.OpRemoveFile, "Delete a download's file from disk", (*downloads.Client).RemoveFile},
}

func newIDCmd(a *app, op idOp) *cobra.Command {
	return &cobra.Command{
		Use:   op.use + " <id>",
		Short: op.short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			client, closeFn, err := a.client(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closeFn()
			if err := op.run(client, cmd.Context(), id); err != nil {
				return err
			}
			return a.printJSON(map[string]any{"op": op.msg, "id": id, "status": "ok"})
		},
	}
}

func newDownloadCmd(a *app) *cobra.Command {
	var (
		opts    downloads.DownloadOptions
		saveAs  bool
		headers []string
	)
	cmd := &cobra.Command{
		Use:   "download <url>",
		Short: "Start a download and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.URL = args[0]
			if cmd.Flags().Changed("save-as") {
				opts.SaveAs = &saveAs
			}
			for _, h := range headers {
				pair, err := parseHeader(h)
				if err != nil {
					return err
				}
				opts.Headers = append(opts.Headers, pair)
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			client, closeFn, err := a.client(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closeFn()
			id, err := client.Download(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return a.printJSON(map[string]any{"op": downloads.OpDownload, "id": id})
		},
	}
	cmd.Flags().StringVar(&opts.Filename, "filename", "", "target file name relative to the download folder")
	cmd.Flags().StringVar(&opts.ConflictAction, "conflict", "", "uniquify | overwrite | prompt")
	cmd.Flags().BoolVar(&saveAs, "save-as", false, "ask where to save")
	cmd.Flags().StringVar(&opts.Method, "method", "", "GET or POST")
	cmd.Flags().StringVar(&opts.Body, "body", "", "POST body")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "request header as Name: value (repeatable)")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var id int
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Look up a download by id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := downloads.Query{}
			if cmd.Flags().Changed("id") {
				q = downloads.ByID(id)
			}
			client, closeFn, err := a.client(cmd.Context(), q.ID != nil)
			if err != nil {
				return err
			}
			defer closeFn()
			items, err := client.Search(cmd.Context(), q)
			if err != nil {
				return err
			}
			return a.printJSON(items)
		},
	}
	cmd.Flags().IntVar(&id, "id", 0, "download id")
	return cmd
}

func newEraseCmd(a *app) *cobra.Command {
	var id int
	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Remove a download from history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := downloads.Query{}
			if cmd.Flags().Changed("id") {
				q = downloads.ByID(id)
			}
			client, closeFn, err := a.client(cmd.Context(), q.ID != nil)
			if err != nil {
				return err
			}
			defer closeFn()
			if err := client.Erase(cmd.Context(), q); err != nil {
				return err
			}
			return a.printJSON(map[string]any{"op": downloads.OpErase, "status": "ok"})
		},
	}
	cmd.Flags().IntVar(&id, "id", 0, "download id")
	return cmd
}

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: id %q must be a non-negative integer", errUsage, raw)
	}
	return id, nil
}

func parseHeader(raw string) (downloads.HeaderPair, error) {
	name, value, ok := strings.Cut(raw, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return downloads.HeaderPair{}, fmt.Errorf("%w: header %q must be Name: value", errUsage, raw)
	}
	return downloads.HeaderPair{Name: name, Value: strings.TrimSpace(value)}, nil
}
