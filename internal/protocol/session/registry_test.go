package session

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/danmuck/dlport/internal/protocol"
	"github.com/danmuck/dlport/internal/testutil/testlog"
)

func TestRegistryAllocateIsMonotonic(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	var last int64 = -1
	for i := 0; i < 50; i++ {
		f, err := r.Allocate()
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		if int64(f.ID()) <= last {
			t.Fatalf("id %d not greater than %d", f.ID(), last)
		}
		last = int64(f.ID())
		if i%2 == 0 {
			r.Resolve(f.ID(), nil)
		}
	}
	if r.Len() != 25 {
		t.Fatalf("unexpected pending count: %d", r.Len())
	}
}

func TestRegistryResolveOnce(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	f, _ := r.Allocate()
	if !r.Resolve(f.ID(), protocol.Raw(`1`)) {
		t.Fatalf("expected first resolve to match")
	}
	if r.Resolve(f.ID(), protocol.Raw(`2`)) {
		t.Fatalf("second resolve must be a no-op")
	}
	if r.Reject(f.ID(), errors.New("late")) {
		t.Fatalf("reject after resolve must be a no-op")
	}
	data, err := f.Wait(context.Background())
	if err != nil || string(data) != `1` {
		t.Fatalf("unexpected result: %s err=%v", data, err)
	}
}

func TestRegistryUnknownResolveLeavesOthers(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	f, _ := r.Allocate()
	if r.Resolve(99, protocol.Raw(`null`)) {
		t.Fatalf("unknown id must not match")
	}
	select {
	case <-f.Done():
		t.Fatalf("pending future completed by unrelated reply")
	default:
	}
	if got := r.Pending(); len(got) != 1 || got[0] != f.ID() {
		t.Fatalf("unexpected pending set: %v", got)
	}
}

func TestRegistryRejectAll(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	futures := make([]*Future, 0, 3)
	for i := 0; i < 3; i++ {
		f, _ := r.Allocate()
		futures = append(futures, f)
	}
	if n := r.RejectAll(ErrDisconnected); n != 3 {
		t.Fatalf("expected 3 rejections, got %d", n)
	}
	if r.Len() != 0 {
		t.Fatalf("registry not empty after RejectAll")
	}
	for _, f := range futures {
		if _, err := f.Wait(context.Background()); !errors.Is(err, ErrDisconnected) {
			t.Fatalf("future %d: expected ErrDisconnected, got %v", f.ID(), err)
		}
	}
	next, _ := r.Allocate()
	if next.ID() != 3 {
		t.Fatalf("ids must not be reused after RejectAll, got %d", next.ID())
	}
}

func TestRegistryForgetDoesNotComplete(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	f, _ := r.Allocate()
	if !r.Forget(f.ID()) {
		t.Fatalf("expected forget to find id")
	}
	if r.Resolve(f.ID(), nil) {
		t.Fatalf("forgotten id must behave as unknown")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected forgotten future to stay incomplete, got %v", err)
	}
}

func TestRegistryIDSpaceExhausted(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	r.next = math.MaxUint32
	f, err := r.Allocate()
	if err != nil || f.ID() != math.MaxUint32 {
		t.Fatalf("expected last id, got %v err=%v", f, err)
	}
	if _, err := r.Allocate(); !errors.Is(err, ErrIDSpaceExhausted) {
		t.Fatalf("expected ErrIDSpaceExhausted, got %v", err)
	}
}

func TestRegistryExpireAfter(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	slow, _ := r.Allocate()
	fast, _ := r.Allocate()
	r.expireAfter(slow, 20*time.Millisecond, ErrRequestTimeout)
	r.expireAfter(fast, 20*time.Millisecond, ErrRequestTimeout)
	r.Resolve(fast.ID(), protocol.Raw(`true`))

	if _, err := slow.Wait(context.Background()); !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("expected ErrRequestTimeout, got %v", err)
	}
	if data, err := fast.Wait(context.Background()); err != nil || string(data) != `true` {
		t.Fatalf("resolved future changed by timer: %s err=%v", data, err)
	}
}

func TestFutureResultBeforeCompletion(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	f, _ := r.Allocate()
	if data, err := f.Result(); !errors.Is(err, ErrPending) || data != nil {
		t.Fatalf("expected ErrPending before completion, got %s err=%v", data, err)
	}
	r.Resolve(f.ID(), nil)
	if data, err := f.Result(); err != nil || data != nil {
		t.Fatalf("null reply must read as success, got %s err=%v", data, err)
	}
}
