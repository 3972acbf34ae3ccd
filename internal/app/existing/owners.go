package existing

import (
	"context"
	"sync"
	"time"

	"bmcheck.local/internal/platform/metrics"
)

// DefaultStaleAfter 是 owner 记录的兜底清理时间。
const DefaultStaleAfter = time.Minute

// Token 标识某个 owner 的一次请求。
type Token uint64

type ownerEntry struct {
	token  Token
	cancel context.CancelCauseFunc
	timer  *time.Timer
}

// OwnerRegistry 为每个 owner（tab）保留至多一个活跃请求。
//
// 新请求会先取消同一 owner 尚未结束的旧请求，再发放新的 token。
// owner 消失而没有调用 Finish 时，记录在 staleAfter 之后被清理。
type OwnerRegistry struct {
	mu         sync.Mutex
	entries    map[string]*ownerEntry
	seq        uint64
	staleAfter time.Duration
}

func NewOwnerRegistry(staleAfter time.Duration) *OwnerRegistry {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &OwnerRegistry{
		entries:    make(map[string]*ownerEntry),
		staleAfter: staleAfter,
	}
}

// Begin 取消 owner 之前的请求并返回新请求的 context 和 token。
// 旧请求的 context 以 ErrAborted 为 cause 被取消。
func (r *OwnerRegistry) Begin(parent context.Context, ownerID string) (context.Context, Token) {
	ctx, cancel := context.WithCancelCause(parent)

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.entries[ownerID]; ok {
		prev.timer.Stop()
		prev.cancel(ErrAborted)
		metrics.OwnerSupersessionsTotal.Inc()
	}

	r.seq++
	tok := Token(r.seq)
	e := &ownerEntry{token: tok, cancel: cancel}
	e.timer = time.AfterFunc(r.staleAfter, func() { r.expire(ownerID, tok) })
	r.entries[ownerID] = e
	return ctx, tok
}

// Finish 结束一次请求；只有 token 仍是该 owner 当前的 token 时才删除记录。
func (r *OwnerRegistry) Finish(ownerID string, tok Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[ownerID]
	if !ok || e.token != tok {
		return
	}
	e.timer.Stop()
	e.cancel(nil)
	delete(r.entries, ownerID)
}

// Cancel 取消 owner 当前的请求（例如 tab 被关闭），返回是否存在待取消的请求。
func (r *OwnerRegistry) Cancel(ownerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[ownerID]
	if !ok {
		return false
	}
	e.timer.Stop()
	e.cancel(ErrAborted)
	delete(r.entries, ownerID)
	return true
}

// Len 返回当前登记的 owner 数量。
func (r *OwnerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *OwnerRegistry) expire(ownerID string, tok Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[ownerID]
	if !ok || e.token != tok {
		return
	}
	e.cancel(context.DeadlineExceeded)
	delete(r.entries, ownerID)
}
