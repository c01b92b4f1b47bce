package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"

	"github.com/rl1809/order-pipeline/internal/core/domain"
)

// messageWriter is satisfied by the traced otelkafka writer.
type messageWriter interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// AlertEvent is the payload written to the alert topic.
type AlertEvent struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"orderId"`
	UserEmail     string    `json:"userEmail"`
	TotalAmount   int64     `json:"totalAmount"`
	DeliveryCount int       `json:"deliveryCount,omitempty"`
	Subject       string    `json:"subject"`
	Text          string    `json:"text"`
	SentAt        time.Time `json:"sentAt"`
}

// KafkaAlerter publishes operational alerts keyed by order id.
type KafkaAlerter struct {
	writer messageWriter
	log    *zap.Logger
}

// NewKafkaAlerter writes through an otelkafka writer so each alert carries
// a producer span and the W3C trace context in its headers.
func NewKafkaAlerter(brokers []string, topic, clientID string, logger *zap.Logger) (*KafkaAlerter, error) {
	base := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		RequiredAcks: kafka.RequireOne,
	}

	writer, err := otelkafka.NewWriter(base,
		otelkafka.WithTracerProvider(otel.GetTracerProvider()),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes([]attribute.KeyValue{
			semconv.MessagingDestinationNameKey.String(topic),
			attribute.String("messaging.kafka.client_id", clientID),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka writer: %w", err)
	}
	return &KafkaAlerter{writer: writer, log: logger}, nil
}

func (k *KafkaAlerter) AlertNewOrder(ctx context.Context, msg domain.ConfirmationMessage) error {
	r := RenderNewOrderAlert(msg)
	return k.write(ctx, AlertEvent{
		Type:        TypeOrderConfirmation,
		OrderID:     msg.OrderID,
		UserEmail:   msg.UserEmail,
		TotalAmount: msg.TotalAmount,
		Subject:     r.Subject,
		Text:        r.Text,
		SentAt:      time.Now().UTC(),
	})
}

func (k *KafkaAlerter) AlertUndeliverable(ctx context.Context, msg domain.ConfirmationMessage, deliveryCount int) error {
	r := RenderUndeliverableAlert(msg, deliveryCount)
	return k.write(ctx, AlertEvent{
		Type:          TypeUndeliverable,
		OrderID:       msg.OrderID,
		UserEmail:     msg.UserEmail,
		TotalAmount:   msg.TotalAmount,
		DeliveryCount: deliveryCount,
		Subject:       r.Subject,
		Text:          r.Text,
		SentAt:        time.Now().UTC(),
	})
}

func (k *KafkaAlerter) write(ctx context.Context, event AlertEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = k.writer.WriteMessage(ctx, kafka.Message{
		Key:   []byte(event.OrderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: domain.AttrOrderID, Value: []byte(event.OrderID)},
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return domain.Transient("write alert", err)
	}

	k.log.Debug("alert_published", zap.String("order_id", event.OrderID), zap.String("type", event.Type))
	return nil
}

func (k *KafkaAlerter) Close() error {
	return k.writer.Close()
}
