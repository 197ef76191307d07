// Package kafka publishes order events to Kafka.
package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/tshirt-store/internal/domain/order"
)

const DefaultTopic = "store.orders"

var _ order.EventPublisher = (*Publisher)(nil)

// Publisher sends order events keyed by order id, so every event of one
// order lands on the same partition in order.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	lg       *zap.Logger
}

// NewConfig returns the producer settings used for order events:
// idempotent delivery acknowledged by all in-sync replicas.
func NewConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "tshirt-store"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// NewPublisher connects a sync producer to brokers.
func NewPublisher(brokers []string, topic string, lg *zap.Logger) (*Publisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, errors.Wrap(err, "create kafka producer")
	}
	return NewPublisherWithProducer(producer, topic, lg), nil
}

// NewPublisherWithProducer wraps an existing producer.
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string, lg *zap.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Publisher{producer: producer, topic: topic, lg: lg}
}

func (p *Publisher) Publish(ctx context.Context, e order.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(e.OrderID),
		Value:     sarama.ByteEncoder(data),
		Timestamp: e.At,
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(e.Type)},
		},
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return errors.Wrapf(err, "send %s", e.Type)
	}

	p.lg.Debug("Order event sent",
		zap.String("type", e.Type),
		zap.String("order_id", e.OrderID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *Publisher) Close() error {
	if err := p.producer.Close(); err != nil {
		return errors.Wrap(err, "close kafka producer")
	}
	return nil
}
