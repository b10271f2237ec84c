package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"escrow-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}

	return &Producer{writer: writer}
}

// PublishEvent publishes an event to Kafka. Messages sharing a key land on the
// same partition so per-order events stay ordered.
func (p *Producer) PublishEvent(ctx context.Context, key string, event interface{}) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: eventBytes,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	util.GetLogger().Debug("Published event", zap.String("key", key), zap.String("type", fmt.Sprintf("%T", event)))
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// messageReader is the part of *kafka.Reader the consumer drives
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ErrUnprocessable marks a message that can never be handled. The consumer
// commits past it instead of retrying.
var ErrUnprocessable = errors.New("unprocessable message")

const (
	retryBackoffMin = 500 * time.Millisecond
	retryBackoffMax = 30 * time.Second
)

// Consumer represents a Kafka consumer
type Consumer struct {
	reader     messageReader
	topic      string
	backoffMin time.Duration
	backoffMax time.Duration
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	return newConsumer(reader, topic)
}

func newConsumer(reader messageReader, topic string) *Consumer {
	return &Consumer{
		reader:     reader,
		topic:      topic,
		backoffMin: retryBackoffMin,
		backoffMax: retryBackoffMax,
	}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// MessageHandler is a function type for handling messages
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming fetches messages until ctx is done. A failed message is retried
// with backoff and the next one is not fetched until it is committed, so
// delivery is at least once and in partition order.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	logger := util.GetLogger().With(zap.String("topic", c.topic))
	logger.Info("Starting Kafka consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.Info("Consumer context cancelled, stopping")
				return ctx.Err()
			}
			logger.Error("Error fetching message", zap.Error(err))
			if !sleep(ctx, time.Second) {
				return ctx.Err()
			}
			continue
		}

		if err := c.handle(ctx, logger, msg, handler); err != nil {
			logger.Info("Consumer context cancelled, stopping")
			return err
		}
	}
}

// handle runs handler until it succeeds or reports ErrUnprocessable, then
// commits. It returns only a context error.
func (c *Consumer) handle(ctx context.Context, logger *zap.Logger, msg kafka.Message, handler MessageHandler) error {
	fields := []zap.Field{zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset)}
	backoff := c.backoffMin

	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			break
		}
		if errors.Is(err, ErrUnprocessable) {
			logger.Warn("Skipping unprocessable message", append(fields, zap.Error(err))...)
			break
		}
		logger.Error("Error handling message, will retry",
			append(fields, zap.Error(err), zap.Int("attempt", attempt), zap.Duration("backoff", backoff))...)
		if !sleep(ctx, backoff) {
			return ctx.Err()
		}
		if backoff *= 2; backoff > c.backoffMax {
			backoff = c.backoffMax
		}
	}

	for {
		err := c.reader.CommitMessages(ctx, msg)
		if err == nil {
			return nil
		}
		logger.Error("Error committing message", append(fields, zap.Error(err))...)
		if !sleep(ctx, c.backoffMin) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
