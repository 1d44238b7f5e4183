package downloads

import (
	"context"
	"fmt"

	"github.com/danmuck/dlport/internal/logging"
	"github.com/danmuck/dlport/internal/protocol"
	"github.com/danmuck/dlport/internal/protocol/session"
	"github.com/rs/zerolog"
)

// Client exposes the download operations of the peer behind mgr. Calls block
// until the peer replies, the channel drops, or ctx ends.
type Client struct {
	mgr    *session.Manager
	logger zerolog.Logger
}

func NewClient(mgr *session.Manager) *Client {
	return &Client{
		mgr:    mgr,
		logger: logging.Component("downloads"),
	}
}

func (c *Client) Manager() *session.Manager { return c.mgr }

// Download starts a transfer and returns the peer's id for it.
func (c *Client) Download(ctx context.Context, opts DownloadOptions) (int, error) {
	if err := opts.Validate(); err != nil {
		return 0, err
	}
	var id int
	if err := c.call(ctx, OpDownload, opts, &id); err != nil {
		return 0, err
	}
	c.logger.Info().Int("id", id).Str("url", opts.URL).Msg("download started")
	return id, nil
}

func (c *Client) Open(ctx context.Context, id int) error {
	return c.call(ctx, OpOpen, idPayload{ID: id}, nil)
}

func (c *Client) Show(ctx context.Context, id int) error {
	return c.call(ctx, OpShow, idPayload{ID: id}, nil)
}

func (c *Client) Pause(ctx context.Context, id int) error {
	return c.call(ctx, OpPause, idPayload{ID: id}, nil)
}

func (c *Client) Resume(ctx context.Context, id int) error {
	return c.call(ctx, OpResume, idPayload{ID: id}, nil)
}

func (c *Client) Cancel(ctx context.Context, id int) error {
	return c.call(ctx, OpCancel, idPayload{ID: id}, nil)
}

func (c *Client) RemoveFile(ctx context.Context, id int) error {
	return c.call(ctx, OpRemoveFile, idPayload{ID: id}, nil)
}

// Erase removes a download from the peer's history. A query without an id
// succeeds without contacting the peer, whatever the channel state.
func (c *Client) Erase(ctx context.Context, q Query) error {
	if q.ID == nil {
		return nil
	}
	return c.call(ctx, OpErase, idPayload{ID: *q.ID}, nil)
}

// Search returns the matching downloads. A query without an id yields an
// empty list without contacting the peer.
func (c *Client) Search(ctx context.Context, q Query) ([]Item, error) {
	if q.ID == nil {
		return []Item{}, nil
	}
	var items []Item
	if err := c.call(ctx, OpSearch, idPayload{ID: *q.ID}, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// GetFileIcon is not supported by the peer and always yields "".
func (c *Client) GetFileIcon(_ context.Context, _ int, _ *IconOptions) (string, error) {
	return "", nil
}

// SetShelfEnabled has no peer counterpart.
func (c *Client) SetShelfEnabled(enabled bool) {
	c.logger.Debug().Bool("enabled", enabled).Msg("shelf toggle ignored")
}

func (c *Client) call(ctx context.Context, op string, payload any, out any) error {
	raw, err := c.mgr.Call(ctx, op, payload)
	if err != nil {
		return fmt.Errorf("downloads: %s: %w", op, err)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := c.mgr.Codec().Unmarshal(raw, out); err != nil {
		return fmt.Errorf("downloads: %s: decode reply: %w", op, err)
	}
	return nil
}

func (c *Client) OnCreated(fn func(Item)) session.Subscription {
	return subscribe(c, EventCreated, fn)
}

func (c *Client) OnChanged(fn func(Delta)) session.Subscription {
	return subscribe(c, EventChanged, fn)
}

// OnErased receives the id of each erased download.
func (c *Client) OnErased(fn func(int)) session.Subscription {
	return subscribe(c, EventErased, fn)
}

func (c *Client) OnDeterminingFilename(fn func(Item)) session.Subscription {
	return subscribe(c, EventDeterminingFilename, fn)
}

// OnRaw subscribes to kind without decoding the payload.
func (c *Client) OnRaw(kind string, fn func(protocol.Raw)) session.Subscription {
	if fn == nil {
		return session.Subscription{}
	}
	return c.mgr.Events().Subscribe(kind, session.Handler(fn))
}

func (c *Client) Unsubscribe(sub session.Subscription) bool {
	return c.mgr.Events().Unsubscribe(sub)
}

func subscribe[T any](c *Client, kind string, fn func(T)) session.Subscription {
	if fn == nil {
		return session.Subscription{}
	}
	return c.mgr.Events().Subscribe(kind, func(data protocol.Raw) {
		v, err := protocol.Decode[T](c.mgr.Codec(), data)
		if err != nil {
			c.logger.Warn().Err(err).Str("event", kind).Msg("dropping undecodable event")
			return
		}
		fn(v)
	})
}
