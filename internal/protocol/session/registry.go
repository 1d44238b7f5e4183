package session

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/dlport/internal/protocol"
)

// Future is the single-resolution result of one request.
type Future struct {
	id    uint32
	done  chan struct{}
	data  protocol.Raw
	err   error
	timer *time.Timer
}

func (f *Future) ID() uint32 { return f.id }

// Done is closed once the future is resolved or rejected.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result reports the outcome once Done is closed, and ErrPending before.
func (f *Future) Result() (protocol.Raw, error) {
	select {
	case <-f.done:
		return f.data, f.err
	default:
		return nil, ErrPending
	}
}

// Wait blocks until the future completes or ctx ends. Ending ctx does not
// complete the future.
func (f *Future) Wait(ctx context.Context) (protocol.Raw, error) {
	select {
	case <-f.done:
		return f.data, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Registry allocates correlation ids and tracks pending requests. A future is
// completed only after it has been removed from the pending set, so each id
// resolves or rejects at most once.
type Registry struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint32]*Future
}

func NewRegistry() *Registry {
	return &Registry{
		pending: make(map[uint32]*Future),
	}
}

// Allocate returns a future bound to a never-before-used id.
func (r *Registry) Allocate() (*Future, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next > math.MaxUint32 {
		return nil, ErrIDSpaceExhausted
	}
	f := &Future{id: uint32(r.next), done: make(chan struct{})}
	r.next++
	r.pending[f.id] = f
	return f, nil
}

// Resolve fulfills id with data. Unknown ids are ignored and reported false.
func (r *Registry) Resolve(id uint32, data protocol.Raw) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.takeLocked(id)
	if !ok {
		return false
	}
	f.complete(data, nil)
	return true
}

// Reject fails one pending id.
func (r *Registry) Reject(id uint32, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.takeLocked(id)
	if !ok {
		return false
	}
	f.complete(nil, err)
	return true
}

// RejectAll fails and clears every pending request, returning how many.
func (r *Registry) RejectAll(err error) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.pending)
	for id, f := range r.pending {
		delete(r.pending, id)
		f.complete(nil, err)
	}
	return n
}

// Forget drops id without completing it.
func (r *Registry) Forget(id uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.takeLocked(id)
	if ok && f.timer != nil {
		f.timer.Stop()
	}
	return ok
}

// expireAfter rejects id with err unless it completes within d.
func (r *Registry) expireAfter(f *Future, d time.Duration, err error) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[f.id]; !ok {
		return
	}
	f.timer = time.AfterFunc(d, func() { r.Reject(f.id, err) })
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Pending lists outstanding ids in ascending order.
func (r *Registry) Pending() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint32, 0, len(r.pending))
	for id := range r.pending {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i] < out[j]
	})
	return out
}

func (r *Registry) takeLocked(id uint32) (*Future, bool) {
	f, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	return f, ok
}

func (f *Future) complete(data protocol.Raw, err error) {
	if f.timer != nil {
		f.timer.Stop()
	}
	f.data = data
	f.err = err
	close(f.done)
}
