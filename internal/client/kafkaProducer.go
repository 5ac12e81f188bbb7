package client

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type EventPublisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error
	Close() error
}

type kafkaPublisherImpl struct {
	w *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) EventPublisher {
	return &kafkaPublisherImpl{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *kafkaPublisherImpl) Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	err := p.w.WriteMessages(ctx, kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", p.w.Topic, err)
	}
	return nil
}

func (p *kafkaPublisherImpl) Close() error {
	return p.w.Close()
}
