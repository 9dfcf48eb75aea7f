// Package notify delivers order confirmations.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/makehive/marketplace/internal/domain/order"
	"github.com/makehive/marketplace/internal/domain/user"
)

// EventOrderConfirmed is the event_type header of confirmation messages.
const EventOrderConfirmed = "order.confirmed"

var (
	_ order.Notifier = (*Kafka)(nil)
	_ order.Notifier = (*Breaker)(nil)
	_ order.Notifier = Log{}
)

// Event is the JSON payload published for a confirmed order.
type Event struct {
	OrderID   string       `json:"orderId"`
	UserID    string       `json:"userId"`
	Email     string       `json:"email,omitempty"`
	Username  string       `json:"username,omitempty"`
	Total     string       `json:"total"`
	Status    order.Status `json:"status"`
	Lines     []order.Line `json:"lines"`
	CreatedAt time.Time    `json:"createdAt"`
}

// NewEvent builds the confirmation event for o.
func NewEvent(u user.User, o *order.Order) Event {
	return Event{
		OrderID:   o.ID,
		UserID:    o.UserID,
		Email:     u.Email,
		Username:  u.Username,
		Total:     o.Total.StringFixed(2),
		Status:    o.Status,
		Lines:     o.Lines,
		CreatedAt: o.CreatedAt,
	}
}

// MessageWriter is the subset of *kafka.Writer used by Kafka.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Kafka publishes confirmation events for a downstream mailer.
type Kafka struct {
	writer MessageWriter
}

// NewKafka creates a Kafka notifier writing to w.
func NewKafka(w MessageWriter) *Kafka {
	return &Kafka{writer: w}
}

// WriterBatchTimeout bounds the wait for batch companions. Orders write one
// message each, synchronously.
const WriterBatchTimeout = 10 * time.Millisecond

// NewWriter creates a kafka writer for topic that flushes every message
// immediately.
func NewWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              1,
		BatchTimeout:           WriterBatchTimeout,
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
	}
}

func (k *Kafka) NotifyOrderConfirmed(ctx context.Context, u user.User, o *order.Order) error {
	payload, err := json.Marshal(NewEvent(u, o))
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	msg := kafka.Message{
		// Keyed by order id so events of one order stay ordered.
		Key:   []byte(o.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventOrderConfirmed)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Breaker stops calling a failing notifier for a cool-down period.
type Breaker struct {
	next order.Notifier
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// BreakerConfig tunes Breaker.
type BreakerConfig struct {
	// Failures is the number of consecutive failures that open the circuit.
	Failures uint32
	// Cooldown is how long the circuit stays open.
	Cooldown time.Duration
}

// NewBreaker wraps next with a circuit breaker.
func NewBreaker(next order.Notifier, cfg BreakerConfig, lg *zap.Logger) *Breaker {
	if cfg.Failures == 0 {
		cfg.Failures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	st := gobreaker.Settings{
		Name:        "order-notifier",
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.Failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker[struct{}](st)}
}

func (b *Breaker) NotifyOrderConfirmed(ctx context.Context, u user.User, o *order.Order) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.NotifyOrderConfirmed(ctx, u, o)
	})
	return err
}

// State reports the breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Log records confirmations in the application log. Used when no broker is
// configured.
type Log struct{}

func (Log) NotifyOrderConfirmed(ctx context.Context, u user.User, o *order.Order) error {
	zctx.From(ctx).Info("Order confirmed",
		zap.String("order_id", o.ID),
		zap.String("user_id", u.ID),
		zap.String("email", u.Email),
		zap.String("total", o.Total.StringFixed(2)),
	)
	return nil
}
