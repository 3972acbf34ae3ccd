package existing

import (
	"context"
	"fmt"
	"sync"

	"bmcheck.local/internal/platform/metrics"
	"golang.org/x/sync/singleflight"
)

// ComputeFunc 执行一次远端解析。传入的 context 不随任何单个等待者取消。
type ComputeFunc func(ctx context.Context) (Resolution, error)

// Coalescer 保证同一个 key 同时最多只有一个进行中的计算，结果分发给所有等待者。
//
// 计算结束（成功、失败或 panic）后 singleflight 会无条件移除该 key 的登记，
// 失败不会把 key 永久卡住。
type Coalescer struct {
	group singleflight.Group

	mu      sync.Mutex
	waiters map[string]int
}

func NewCoalescer() *Coalescer {
	return &Coalescer{waiters: make(map[string]int)}
}

// Resolve 加入或发起 key 对应的计算。
//
// ctx 只控制本调用方的等待：ctx 结束时本调用方拿到 ErrAborted，计算继续进行。
// shared 表示结果是否同时交给了其他等待者。
func (c *Coalescer) Resolve(ctx context.Context, key string, fn ComputeFunc) (res Resolution, shared bool, err error) {
	detached := context.WithoutCancel(ctx)

	// 计数和 DoChan 在同一把锁内完成：Waiters 看到的数量一定已经登记进 singleflight。
	c.mu.Lock()
	c.waiters[key]++
	if c.waiters[key] > 1 {
		metrics.CoalescedWaitersTotal.Inc()
	}
	ch := c.group.DoChan(key, func() (any, error) {
		metrics.InflightComputations.Inc()
		defer metrics.InflightComputations.Dec()
		return fn(detached)
	})
	c.mu.Unlock()
	defer c.leave(key)

	select {
	case r := <-ch:
		if r.Err != nil {
			return Resolution{}, r.Shared, r.Err
		}
		v, ok := r.Val.(Resolution)
		if !ok {
			return Resolution{}, r.Shared, fmt.Errorf("coalesce %s: unexpected result %T", key, r.Val)
		}
		return v, r.Shared, nil
	case <-ctx.Done():
		return Resolution{}, false, ErrAborted
	}
}

// Waiters 返回当前在等待 key 的调用方数量。
func (c *Coalescer) Waiters(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiters[key]
}

func (c *Coalescer) leave(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiters[key] <= 1 {
		delete(c.waiters, key)
		return
	}
	c.waiters[key]--
}
