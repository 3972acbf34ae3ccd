package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// Copier 是写入 lookup_events 需要的最小能力，*pgxpool.Pool 满足它。
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var eventColumns = []string{"key", "owner_id", "outcome", "source", "match_count", "duration_ms", "created_at"}

// writeEvents 用 COPY 批量写入一批事件。
func writeEvents(db Copier, batch []LookupEvent) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := db.CopyFrom(ctx, pgx.Identifier{"lookup_events"}, eventColumns,
		pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
			e := batch[i]
			return []any{e.Key, e.OwnerID, e.Outcome, e.Source, e.Count, e.DurationMS, e.At}, nil
		}))
	if err != nil {
		slog.Error("lookup stats: copy failed", "err", err, "count", len(batch))
		return
	}
	slog.Debug("lookup stats: flushed", "count", n)
}

// Consumer 消费 ChannelCollector 里的事件，按批写入 Postgres。
type Consumer struct {
	db        Copier
	collector *ChannelCollector
	batchSize int
	interval  time.Duration
}

func NewConsumer(db Copier, collector *ChannelCollector) *Consumer {
	return &Consumer{
		db:        db,
		collector: collector,
		batchSize: 100,         //批量写入大小
		interval:  time.Second, //最大等待时间
	}
}

// Run 阻塞消费，直到 ctx 结束或 collector 关闭；退出前会写完 batch 和 channel 里已缓冲的事件。
func (c *Consumer) Run(ctx context.Context) {
	batch := make([]LookupEvent, 0, c.batchSize)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drain(batch)
			return
		case event, ok := <-c.collector.Events():
			if !ok {
				writeEvents(c.db, batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.batchSize {
				writeEvents(c.db, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				writeEvents(c.db, batch)
				batch = batch[:0]
			}
		}
	}
}

// drain 把 channel 里已经缓冲的事件取完写入，不等待新事件。
func (c *Consumer) drain(batch []LookupEvent) {
	for {
		select {
		case event, ok := <-c.collector.Events():
			if !ok {
				writeEvents(c.db, batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.batchSize {
				writeEvents(c.db, batch)
				batch = batch[:0]
			}
		default:
			writeEvents(c.db, batch)
			return
		}
	}
}
