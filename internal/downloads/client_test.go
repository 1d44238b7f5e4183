package downloads

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/dlport/internal/protocol"
	"github.com/danmuck/dlport/internal/protocol/session"
	"github.com/danmuck/dlport/internal/testutil/testlog"
	"github.com/danmuck/dlport/internal/transport"
)

const waitFor = 2 * time.Second

type peer struct {
	t    *testing.T
	conn transport.Conn
	in   chan protocol.Envelope
}

func newClient(t *testing.T) (*Client, *transport.PipeDialer) {
	t.Helper()
	dialer := transport.NewPipeDialer(protocol.JSON())
	cfg := session.DefaultConfig()
	cfg.Reconnect.InitialDelay = 20 * time.Millisecond
	cfg.Reconnect.MaxDelay = 20 * time.Millisecond
	mgr, err := session.NewManager(cfg, dialer, nil, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() {
		_ = mgr.Close()
		_ = dialer.Close()
	})
	return NewClient(mgr), dialer
}

func connect(t *testing.T, c *Client, dialer *transport.PipeDialer) *peer {
	t.Helper()
	if err := c.Manager().Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	conn, err := dialer.Accept(ctx)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	p := &peer{t: t, conn: conn, in: make(chan protocol.Envelope, 16)}
	go func() {
		defer close(p.in)
		for {
			env, err := conn.Receive()
			if err != nil {
				return
			}
			p.in <- env
		}
	}()
	return p
}

// serve answers the next request with data and returns it.
func (p *peer) serve(data string) protocol.Envelope {
	p.t.Helper()
	var env protocol.Envelope
	select {
	case e, ok := <-p.in:
		if !ok {
			p.t.Fatalf("peer stream closed")
		}
		env = e
	case <-time.After(waitFor):
		p.t.Fatalf("timed out waiting for request")
	}
	reply := protocol.Envelope{Req: env.Req, Data: protocol.Raw(data)}
	if err := p.conn.Send(context.Background(), reply); err != nil {
		p.t.Fatalf("reply: %v", err)
	}
	return env
}

func (p *peer) push(kind, data string) {
	p.t.Helper()
	if err := p.conn.Send(context.Background(), protocol.Envelope{Msg: kind, Data: protocol.Raw(data)}); err != nil {
		p.t.Fatalf("push: %v", err)
	}
}

func payloadID(t *testing.T, env protocol.Envelope) int {
	t.Helper()
	var body struct {
		ID *int `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &body); err != nil || body.ID == nil {
		t.Fatalf("payload %s has no id: %v", env.Data, err)
	}
	return *body.ID
}

func TestIDOperationsUseExpectedMessages(t *testing.T) {
	testlog.Start(t)
	c, dialer := newClient(t)
	p := connect(t, c, dialer)

	ops := []struct {
		msg string
		run func(context.Context, int) error
	}{
		{OpPause, c.Pause},
		{OpOpen, c.Open},
		{OpShow, c.Show},
		{OpResume, c.Resume},
		{OpCancel, c.Cancel},
		{OpRemoveFile, c.RemoveFile},
	}
	for i, op := range ops {
		done := make(chan error, 1)
		go func() { done <- op.run(context.Background(), 7) }()
		env := p.serve(`null`)
		if env.Msg != op.msg || env.Req == nil || *env.Req != uint32(i) {
			t.Fatalf("op %s: unexpected envelope %+v", op.msg, env)
		}
		if id := payloadID(t, env); id != 7 {
			t.Fatalf("op %s: unexpected id %d", op.msg, id)
		}
		if err := <-done; err != nil {
			t.Fatalf("op %s: %v", op.msg, err)
		}
	}
}

func TestDownloadSendsOptionsAndReturnsID(t *testing.T) {
	testlog.Start(t)
	c, dialer := newClient(t)
	p := connect(t, c, dialer)

	saveAs := false
	opts := DownloadOptions{
		URL:            "https://example.org/file.iso",
		Filename:       "file.iso",
		ConflictAction: ConflictUniquify,
		SaveAs:         &saveAs,
		Headers:        []HeaderPair{{Name: "Referer", Value: "https://example.org/"}},
	}
	type result struct {
		id  int
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := c.Download(context.Background(), opts)
		done <- result{id, err}
	}()
	env := p.serve(`42`)
	if env.Msg != OpDownload {
		t.Fatalf("unexpected msg %q", env.Msg)
	}
	var sent DownloadOptions
	if err := json.Unmarshal(env.Data, &sent); err != nil {
		t.Fatalf("decode options: %v", err)
	}
	if sent.URL != opts.URL || sent.ConflictAction != ConflictUniquify || sent.SaveAs == nil || *sent.SaveAs {
		t.Fatalf("options not forwarded intact: %+v", sent)
	}
	r := <-done
	if r.err != nil || r.id != 42 {
		t.Fatalf("unexpected download result id=%d err=%v", r.id, r.err)
	}
}

func TestDownloadRejectsInvalidOptionsLocally(t *testing.T) {
	testlog.Start(t)
	c, dialer := newClient(t)
	if _, err := c.Download(context.Background(), DownloadOptions{URL: "https://x", Method: "PUT"}); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions, got %v", err)
	}
	if dialer.Dials() != 0 {
		t.Fatalf("validation failure must not touch the channel")
	}
}

func TestQueryWithoutIDShortCircuits(t *testing.T) {
	testlog.Start(t)
	c, dialer := newClient(t)

	items, err := c.Search(context.Background(), Query{})
	if err != nil || items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil result, got %v err=%v", items, err)
	}
	if err := c.Erase(context.Background(), Query{}); err != nil {
		t.Fatalf("erase without id: %v", err)
	}
	if c.Manager().State() != session.StateDisconnected || dialer.Dials() != 0 {
		t.Fatalf("short-circuit touched the channel")
	}
	if c.Manager().Registry().Len() != 0 {
		t.Fatalf("short-circuit allocated a request")
	}
}

func TestSearchAndEraseByID(t *testing.T) {
	testlog.Start(t)
	c, dialer := newClient(t)
	p := connect(t, c, dialer)

	type result struct {
		items []Item
		err   error
	}
	done := make(chan result, 1)
	go func() {
		items, err := c.Search(context.Background(), ByID(3))
		done <- result{items, err}
	}()
	env := p.serve(`[{"id":3,"url":"https://example.org/a","state":"in_progress","bytesReceived":10,"totalBytes":100}]`)
	if env.Msg != OpSearch || payloadID(t, env) != 3 {
		t.Fatalf("unexpected search envelope %+v", env)
	}
	r := <-done
	if r.err != nil || len(r.items) != 1 || r.items[0].State != StateInProgress || r.items[0].TotalBytes != 100 {
		t.Fatalf("unexpected search result %+v err=%v", r.items, r.err)
	}

	go func() {
		items, err := c.Search(context.Background(), ByID(4))
		done <- result{items, err}
	}()
	p.serve(`null`)
	if r := <-done; r.err != nil || r.items == nil || len(r.items) != 0 {
		t.Fatalf("null search reply should be empty, got %+v err=%v", r.items, r.err)
	}

	errs := make(chan error, 1)
	go func() { errs <- c.Erase(context.Background(), ByID(3)) }()
	if env := p.serve(`null`); env.Msg != OpErase || payloadID(t, env) != 3 {
		t.Fatalf("unexpected erase envelope %+v", env)
	}
	if err := <-errs; err != nil {
		t.Fatalf("erase: %v", err)
	}
}

func TestOperationWhileDisconnected(t *testing.T) {
	testlog.Start(t)
	c, _ := newClient(t)
	if err := c.Open(context.Background(), 3); !errors.Is(err, session.ErrChannelUnavailable) {
		t.Fatalf("expected ErrChannelUnavailable, got %v", err)
	}
	if c.Manager().Registry().Len() != 0 {
		t.Fatalf("unavailable call allocated a request")
	}
}

func TestCompatibilityNoOps(t *testing.T) {
	testlog.Start(t)
	c, dialer := newClient(t)
	icon, err := c.GetFileIcon(context.Background(), 1, &IconOptions{Size: 32})
	if err != nil || icon != "" {
		t.Fatalf("unexpected icon %q err=%v", icon, err)
	}
	c.SetShelfEnabled(false)
	if dialer.Dials() != 0 {
		t.Fatalf("no-ops must not touch the channel")
	}
}

func TestEventSubscriptions(t *testing.T) {
	testlog.Start(t)
	c, dialer := newClient(t)
	created := make(chan Item, 1)
	changed := make(chan Delta, 1)
	erased := make(chan int, 2)
	c.OnCreated(func(it Item) { created <- it })
	c.OnChanged(func(d Delta) { changed <- d })
	sub := c.OnErased(func(id int) { erased <- id })
	p := connect(t, c, dialer)

	p.push(EventCreated, `{"id":5,"url":"https://example.org/b","state":"in_progress"}`)
	p.push(EventChanged, `{"id":5,"state":{"previous":"in_progress","current":"complete"},"paused":{"previous":true,"current":false}}`)
	p.push(EventErased, `"not a number"`)
	p.push(EventErased, `5`)

	select {
	case it := <-created:
		if it.ID != 5 || it.URL != "https://example.org/b" {
			t.Fatalf("unexpected created item %+v", it)
		}
	case <-time.After(waitFor):
		t.Fatalf("created event not delivered")
	}
	select {
	case d := <-changed:
		if d.ID != 5 || d.State == nil || d.State.Current != StateComplete || d.Paused == nil || d.Paused.Current {
			t.Fatalf("unexpected delta %+v", d)
		}
		if d.Filename != nil {
			t.Fatalf("unchanged field should be nil")
		}
	case <-time.After(waitFor):
		t.Fatalf("changed event not delivered")
	}
	select {
	case id := <-erased:
		if id != 5 {
			t.Fatalf("unexpected erased id %d", id)
		}
	case <-time.After(waitFor):
		t.Fatalf("erased event not delivered")
	}

	if !c.Unsubscribe(sub) {
		t.Fatalf("unsubscribe failed")
	}
	p.push(EventErased, `6`)
	p.push(EventCreated, `{"id":6,"url":"https://example.org/c"}`)
	<-created
	select {
	case id := <-erased:
		t.Fatalf("handler ran after unsubscribe with %d", id)
	default:
	}
}

func TestDownloadOptionsValidate(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		opts DownloadOptions
		ok   bool
	}{
		{"minimal", DownloadOptions{URL: "https://example.org/a"}, true},
		{"post body", DownloadOptions{URL: "https://example.org/a", Method: "POST", Body: "x=1"}, true},
		{"missing url", DownloadOptions{}, false},
		{"relative url", DownloadOptions{URL: "/a"}, false},
		{"bad method", DownloadOptions{URL: "https://example.org/a", Method: "DELETE"}, false},
		{"body without post", DownloadOptions{URL: "https://example.org/a", Body: "x"}, false},
		{"bad conflict", DownloadOptions{URL: "https://example.org/a", ConflictAction: "rename"}, false},
		{"unnamed header", DownloadOptions{URL: "https://example.org/a", Headers: []HeaderPair{{Value: "v"}}}, false},
	}
	for _, tc := range cases {
		err := tc.opts.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidOptions) {
			t.Fatalf("%s: expected ErrInvalidOptions, got %v", tc.name, err)
		}
	}
}
