// Package redpanda carries templated notifications over Redpanda/Kafka.
//
// The Publisher implements domain.Notifier for the API process; the
// Consumer runs in the notifier process and hands each message to a mail
// Deliverer, dead-lettering the ones that cannot be delivered.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interview/internal/observability"
)

const (
	headerTemplate  = "template"
	headerRequestID = "request_id"
	headerError     = "error"
)

// Notification is the wire form of one templated message.
type Notification struct {
	ID        string            `json:"id"`
	Template  string            `json:"template"`
	Recipient domain.Recipient  `json:"recipient"`
	Vars      map[string]string `json:"vars"`
	RequestID string            `json:"request_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type recordProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher implements domain.Notifier by producing to a topic.
type Publisher struct {
	producer recordProducer
	client   *kgo.Client
	topic    string
	now      func() time.Time
}

func kotelHooks() kgo.Opt {
	k := kotel.NewKotel(kotel.WithTracer(kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))))
	return kgo.WithHooks(k.Hooks()...)
}

// NewPublisher connects to brokers and makes sure the topic and its
// dead-letter companion exist. The client is idempotent, not transactional,
// so several API replicas can publish concurrently.
func NewPublisher(ctx context.Context, brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.new_publisher: no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
		kotelHooks(),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.new_publisher: %w", err)
	}
	if err := EnsureTopics(ctx, client, 1, 1, topic, DLQTopic(topic)); err != nil {
		slog.Warn("ensure notification topics failed", slog.String("topic", topic), slog.Any("error", err))
	}
	slog.Info("notification publisher ready", slog.Any("brokers", brokers), slog.String("topic", topic))
	return &Publisher{producer: client, client: client, topic: topic, now: time.Now}, nil
}

// DLQTopic names the dead-letter topic paired with topic.
func DLQTopic(topic string) string { return topic + ".dlq" }

// SendTemplated produces one Notification keyed by the recipient so a
// recipient's messages stay ordered.
func (p *Publisher) SendTemplated(ctx domain.Context, templateKey string, to domain.Recipient, vars map[string]string) error {
	msg := Notification{
		ID:        ulid.Make().String(),
		Template:  templateKey,
		Recipient: to,
		Vars:      vars,
		RequestID: obsctx.RequestIDFromContext(ctx),
		CreatedAt: p.now().UTC(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("op=redpanda.publish: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(to.SubjectID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: headerTemplate, Value: []byte(templateKey)},
			{Key: headerRequestID, Value: []byte(msg.RequestID)},
		},
	}
	if err := p.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("op=redpanda.publish: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	obsctx.LoggerFromContext(ctx).Debug("notification published",
		slog.String("notification_id", msg.ID),
		slog.String("template", templateKey))
	return nil
}

// Ping checks broker connectivity for readiness probes.
func (p *Publisher) Ping(ctx context.Context) error {
	if p.client == nil {
		return nil
	}
	return p.client.Ping(ctx)
}

func (p *Publisher) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
