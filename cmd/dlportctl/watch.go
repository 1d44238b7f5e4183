package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/dlport/internal/downloads"
	"github.com/danmuck/dlport/internal/protocol"
	"github.com/danmuck/dlport/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// watchLine is one printed event.
type watchLine struct {
	At    time.Time       `json:"at"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print peer events as JSON lines until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.watch(ctx)
		},
	}
}

// watch keeps the channel up, reconnecting as needed, and prints every event
// until ctx ends. A peer that is down at start is retried, not fatal.
func (a *app) watch(ctx context.Context) error {
	client, closeFn, err := a.client(ctx, false)
	if err != nil {
		return err
	}
	defer closeFn()

	var mu sync.Mutex
	enc := json.NewEncoder(a.out)
	subs := make([]session.Subscription, 0, len(downloads.EventKinds))
	for _, kind := range downloads.EventKinds {
		subs = append(subs, client.OnRaw(kind, func(data protocol.Raw) {
			mu.Lock()
			defer mu.Unlock()
			line := watchLine{At: time.Now().UTC(), Event: kind}
			if client.Manager().Codec().Name() == protocol.CodecJSON {
				line.Data = json.RawMessage(data)
			} else if v, err := protocol.Decode[any](client.Manager().Codec(), data); err == nil {
				line.Data, _ = json.Marshal(v)
			}
			if err := enc.Encode(line); err != nil {
				log.Warn().Err(err).Msg("write event")
			}
		}))
	}
	defer func() {
		for _, sub := range subs {
			client.Unsubscribe(sub)
		}
	}()

	client.Manager().OnStateChange(func(s session.State) {
		log.Info().Str("state", s.String()).Msg("channel state")
	})
	if err := client.Manager().Start(ctx); err != nil {
		log.Warn().Err(err).Msg("peer unavailable, retrying")
	}
	<-ctx.Done()
	return nil
}
