package existing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOwnerRegistry_BeginSupersedesPrevious(t *testing.T) {
	r := NewOwnerRegistry(time.Minute)

	first, _ := r.Begin(context.Background(), "tab-1")
	second, tok2 := r.Begin(context.Background(), "tab-1")

	select {
	case <-first.Done():
	default:
		t.Fatal("first request should be cancelled")
	}
	if cause := context.Cause(first); !errors.Is(cause, ErrAborted) {
		t.Fatalf("cause: got %v, want %v", cause, ErrAborted)
	}
	if second.Err() != nil {
		t.Fatalf("second request cancelled: %v", second.Err())
	}

	r.Finish("tab-1", tok2)
	if r.Len() != 0 {
		t.Fatalf("Len after Finish: got %d, want 0", r.Len())
	}
}

func TestOwnerRegistry_StaleFinishIgnored(t *testing.T) {
	r := NewOwnerRegistry(time.Minute)

	_, tok1 := r.Begin(context.Background(), "tab-1")
	current, _ := r.Begin(context.Background(), "tab-1")

	// 旧请求结束时不能删掉新请求的登记
	r.Finish("tab-1", tok1)
	if r.Len() != 1 {
		t.Fatalf("Len: got %d, want 1", r.Len())
	}
	if current.Err() != nil {
		t.Fatalf("current request cancelled by stale Finish: %v", current.Err())
	}
}

func TestOwnerRegistry_OwnersAreIndependent(t *testing.T) {
	r := NewOwnerRegistry(time.Minute)

	a, _ := r.Begin(context.Background(), "tab-a")
	_, _ = r.Begin(context.Background(), "tab-b")
	if a.Err() != nil {
		t.Fatalf("tab-a cancelled by tab-b: %v", a.Err())
	}
	if r.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", r.Len())
	}
}

func TestOwnerRegistry_Cancel(t *testing.T) {
	r := NewOwnerRegistry(time.Minute)

	ctx, _ := r.Begin(context.Background(), "tab-1")
	if !r.Cancel("tab-1") {
		t.Fatal("Cancel: got false, want true")
	}
	if !errors.Is(context.Cause(ctx), ErrAborted) {
		t.Fatalf("cause: got %v, want %v", context.Cause(ctx), ErrAborted)
	}
	if r.Cancel("tab-1") {
		t.Fatal("second Cancel: got true, want false")
	}
}

func TestOwnerRegistry_StaleEntriesExpire(t *testing.T) {
	r := NewOwnerRegistry(20 * time.Millisecond)

	ctx, _ := r.Begin(context.Background(), "gone")
	waitFor(t, time.Second, func() bool { return r.Len() == 0 })

	<-ctx.Done()
	if !errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
		t.Fatalf("cause: got %v, want %v", context.Cause(ctx), context.DeadlineExceeded)
	}
}

// waitFor 轮询直到 cond 为 true，超时则失败。
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
