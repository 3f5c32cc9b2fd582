// Package publish streams order updates to downstream consumers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"quantbroker/internal/domain"

	"github.com/segmentio/kafka-go"
)

// Publisher delivers order snapshots.
type Publisher interface {
	Publish(ctx context.Context, o *domain.Order) error
	Close() error
}

// OrderEvent is the message body of one order snapshot.
type OrderEvent struct {
	Run           string    `json:"run"`
	Ref           uint64    `json:"ref"`
	ClientID      string    `json:"client_id,omitempty"`
	VenueID       string    `json:"venue_id,omitempty"`
	Instrument    string    `json:"instrument"`
	Kind          string    `json:"kind"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	Size          float64   `json:"size"`
	Price         float64   `json:"price"`
	ExecutedSize  float64   `json:"executed_size"`
	ExecutedPrice float64   `json:"executed_price"`
	Comm          float64   `json:"comm"`
	PnL           float64   `json:"pnl"`
	Time          time.Time `json:"time"`
}

// NewOrderEvent builds the message body for o.
func NewOrderEvent(run string, o *domain.Order) OrderEvent {
	t := o.Executed.Time
	if t.IsZero() {
		t = o.Created.Time
	}
	return OrderEvent{
		Run:           run,
		Ref:           o.Ref,
		ClientID:      o.ClientID,
		VenueID:       o.VenueID,
		Instrument:    o.Instrument,
		Kind:          o.Kind.String(),
		Status:        o.Status.String(),
		Reason:        o.Reason,
		Size:          o.Size,
		Price:         o.Price,
		ExecutedSize:  o.Executed.Size,
		ExecutedPrice: o.Executed.Price,
		Comm:          o.Executed.Comm,
		PnL:           o.Executed.PnL,
		Time:          t,
	}
}

// messageWriter is the part of kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes order events keyed by instrument, so the updates
// of one instrument stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	run    string
	logger *slog.Logger
}

// NewKafkaPublisher creates a producer for topic.
func NewKafkaPublisher(brokers []string, topic, run string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		BatchTimeout:           10 * time.Millisecond,
		WriteBackoffMin:        100 * time.Millisecond,
		WriteBackoffMax:        time.Second,
	}

	slog.Info("Kafka publisher created", slog.Any("brokers", brokers), slog.String("topic", topic))
	return newKafkaPublisher(writer, topic, run)
}

func newKafkaPublisher(w messageWriter, topic, run string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		topic:  topic,
		run:    run,
		logger: slog.Default().With("module", "kafka_publisher"),
	}
}

// Publish sends one order snapshot.
func (p *KafkaPublisher) Publish(ctx context.Context, o *domain.Order) error {
	data, err := json.Marshal(NewOrderEvent(p.run, o))
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(o.Instrument),
		Value: data,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(o.Status.String())},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to send order event",
			slog.String("topic", p.topic),
			slog.Uint64("ref", o.Ref),
			slog.Any("error", err),
		)
		return domain.NewNetworkError("publish", err)
	}

	p.logger.Debug("Order event sent", slog.Uint64("ref", o.Ref), slog.String("status", o.Status.String()))
	return nil
}

// Close flushes pending messages and closes the producer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop discards every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, *domain.Order) error { return nil }
func (Nop) Close() error { return nil }
