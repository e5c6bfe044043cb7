package settlement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig configures the broker-backed queue driver.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// KafkaQueue is the durable Queue driver. Tasks are keyed by account so a
// single account's trades land on one partition, though the executor does not
// rely on that ordering.
type KafkaQueue struct {
	writer *kafka.Writer
	reader *kafka.Reader
	logger *zap.Logger
}

func NewKafkaQueue(cfg KafkaConfig, logger *zap.Logger) *KafkaQueue {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topic:   cfg.Topic,
		// A fresh consumer group must start at the beginning of the topic:
		// trades enqueued before the first worker attached are still owed a
		// settlement.
		StartOffset: kafka.FirstOffset,
	})
	return &KafkaQueue{writer: writer, reader: reader, logger: logger}
}

func (q *KafkaQueue) Enqueue(ctx context.Context, task Task) error {
	value, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.AccountID.String()),
		Value: value,
	})
}

// Dequeue fetches a task without committing its offset. The offset moves only
// through the returned Ack, after the executor has persisted the task's
// outcome; a worker crash before that point redelivers the task to the group.
func (q *KafkaQueue) Dequeue(ctx context.Context) (Task, Ack, error) {
	for {
		msg, err := q.reader.FetchMessage(ctx)
		if err != nil {
			return Task{}, nil, err
		}
		var task Task
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			q.logger.Error("discarding malformed settlement task",
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			if err := q.reader.CommitMessages(ctx, msg); err != nil {
				return Task{}, nil, err
			}
			continue
		}
		ack := func() error {
			// The worker context may already be canceled by the time a drained
			// task is committed; the offset commit must still go out.
			return q.reader.CommitMessages(context.Background(), msg)
		}
		return task, ack, nil
	}
}

func (q *KafkaQueue) Close() error {
	werr := q.writer.Close()
	rerr := q.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
