package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaCollector 把事件异步写入 Kafka topic，key 为查询 key，同一 key 落在同一分区。
type KafkaCollector struct {
	writer *kafka.Writer
}

func NewKafkaCollector(brokers []string, topic string) *KafkaCollector {
	return &KafkaCollector{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			Async:        true, // 异步发送
			BatchTimeout: 200 * time.Millisecond,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					slog.Error("kafka write failed", "err", err, "count", len(messages))
				}
			},
		},
	}
}

func (k *KafkaCollector) Collect(event LookupEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("lookup event marshal failed", "err", err)
		return
	}
	if err := k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(event.Key),
		Value: data,
	}); err != nil {
		slog.Error("kafka write failed", "err", err)
	}
}

func (k *KafkaCollector) Close() {
	if err := k.writer.Close(); err != nil {
		slog.Error("kafka writer close failed", "err", err)
	}
}

// KafkaConsumer 从 Kafka 读取事件，按批写入 Postgres。
type KafkaConsumer struct {
	reader    *kafka.Reader
	db        Copier
	batchSize int
	interval  time.Duration
}

func NewKafkaConsumer(brokers []string, topic string, db Copier) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  "lookup-stats-consumer",
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		db:        db,
		batchSize: 100,
		interval:  time.Second,
	}
}

func (k *KafkaConsumer) Run(ctx context.Context) {
	batch := make([]LookupEvent, 0, k.batchSize)
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	msgCh := make(chan LookupEvent, k.batchSize)

	// 读取协程：ReadMessage 是阻塞的，单独跑，主循环负责攒批和定时刷新
	go func() {
		defer close(msgCh)
		for {
			msg, err := k.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("kafka read failed", "err", err)
				continue
			}

			var event LookupEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				slog.Error("unmarshal lookup event failed", "err", err, "offset", msg.Offset)
				continue
			}
			select {
			case msgCh <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			writeEvents(k.db, batch)
			return

		case event, ok := <-msgCh:
			if !ok {
				writeEvents(k.db, batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= k.batchSize {
				writeEvents(k.db, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				writeEvents(k.db, batch)
				batch = batch[:0]
			}
		}
	}
}

func (k *KafkaConsumer) Close() {
	if err := k.reader.Close(); err != nil {
		slog.Error("kafka reader close failed", "err", err)
	}
}
