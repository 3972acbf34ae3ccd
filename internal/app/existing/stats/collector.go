package stats

import (
	"sync"
	"time"

	"bmcheck.local/internal/platform/metrics"
)

// LookupEvent 是一次结束的查询。
type LookupEvent struct {
	Key        string    `json:"key"`
	OwnerID    string    `json:"owner_id"`
	Outcome    string    `json:"outcome"` // found / not_found / unavailable / aborted / disabled
	Source     string    `json:"source"`  // cache / remote / shared / disabled
	Count      int       `json:"count"`
	DurationMS int64     `json:"duration_ms"`
	At         time.Time `json:"at"`
}

// Collector 收集器接口（channel 或 Kafka）
type Collector interface {
	Collect(event LookupEvent)
	Close()
}

// NopCollector 关闭统计时使用。
type NopCollector struct{}

func (NopCollector) Collect(LookupEvent) {}
func (NopCollector) Close()              {}

// ChannelCollector 基于 channel 的收集器，通道满时直接丢弃，不阻塞查询路径。
type ChannelCollector struct {
	mu     sync.RWMutex
	ch     chan LookupEvent
	closed bool
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	return &ChannelCollector{
		ch: make(chan LookupEvent, bufferSize),
	}
}

func (c *ChannelCollector) Collect(event LookupEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- event:
	default:
		metrics.StatsDroppedTotal.Inc()
	}
}

func (c *ChannelCollector) Events() <-chan LookupEvent {
	return c.ch
}

func (c *ChannelCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
