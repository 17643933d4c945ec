package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkout-service/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	TypePaymentSettled  = "payment.settled"
	TypePaymentFailed   = "payment.failed"
	TypePaymentRefunded = "payment.refunded"
	TypeTopupCompleted  = "topup.completed"
)

// PaymentEvent is what downstream services (fulfilment, notifications,
// reporting) consume after a payment transitions.
type PaymentEvent struct {
	Type     string `json:"type"`
	OrderID  string `json:"order_id,omitempty"`
	UserID   string `json:"user_id"`
	WalletID string `json:"wallet_id,omitempty"`
	Method   string `json:"method,omitempty"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	At       int64  `json:"at"`
}

// Publisher writes payment events to Kafka, keyed by order (or wallet
// for top-ups) so per-entity ordering is preserved. With no brokers
// configured it degrades to a no-op, keeping local setups broker-free.
type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewPublisher(cfg config.KafkaConfig, logger *zap.Logger) *Publisher {
	if len(cfg.Brokers) == 0 {
		logger.Info("kafka brokers not configured, payment events disabled")
		return &Publisher{logger: logger}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		MaxAttempts:  10,
	}

	return &Publisher{writer: writer, logger: logger}
}

// Publish is best-effort: the money has already moved, so a broker
// outage is logged and absorbed rather than failing the request.
func (p *Publisher) Publish(ctx context.Context, event PaymentEvent) {
	if p.writer == nil {
		return
	}

	msg, err := newMessage(event)
	if err != nil {
		p.logger.Error("failed to marshal payment event",
			zap.String("type", event.Type),
			zap.Error(err))
		return
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish payment event",
			zap.String("type", event.Type),
			zap.String("key", string(msg.Key)),
			zap.Error(err))
	}
}

// newMessage stamps the event time and picks the partition key. The
// timestamp is set here and nowhere else; callers never fill At.
func newMessage(event PaymentEvent) (kafka.Message, error) {
	event.At = time.Now().Unix()

	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}

	key := event.OrderID
	if key == "" {
		key = event.WalletID
	}

	return kafka.Message{
		Key:   []byte(key),
		Value: payload,
	}, nil
}

func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}
