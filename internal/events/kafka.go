package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

var ErrPublisherClosed = errors.New("publisher is closed")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	topic  string
	closed atomic.Bool
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		Transport: &kafka.Transport{
			Dial: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error().Str("topic", topic).Msgf("kafka: "+msg, args...)
		}),
	}
	return newKafkaPublisher(writer, topic)
}

func newKafkaPublisher(w messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic}
}

// PublishOrderPaid writes the event keyed by order id so all events of one
// order land on the same partition.
func (p *KafkaPublisher) PublishOrderPaid(ctx context.Context, evt OrderPaid) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}

	value, err := json.Marshal(Envelope{
		Type:       TypeOrderPaid,
		OccurredAt: time.Now().UTC(),
		Data:       evt,
	})
	if err != nil {
		return fmt.Errorf("events: failed to encode %s: %w", TypeOrderPaid, err)
	}

	msg := kafka.Message{
		Key:   []byte(evt.OrderID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(TypeOrderPaid)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: failed to publish %s to %s: %w", TypeOrderPaid, p.topic, err)
	}

	log.Debug().Stringer("order_id", evt.OrderID).Str("topic", p.topic).Msg("events: order.paid published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}
