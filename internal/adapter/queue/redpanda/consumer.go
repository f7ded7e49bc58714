package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interview/internal/observability"
)

type fetchClient interface {
	PollFetches(ctx context.Context) kgo.Fetches
	MarkCommitRecords(rs ...*kgo.Record)
}

// Consumer reads notifications from a consumer group and delivers them.
// Undeliverable messages go to the dead-letter topic; either way the
// record is marked so the group moves on.
type Consumer struct {
	fetcher   fetchClient
	dlq       recordProducer
	client    *kgo.Client
	deliverer domain.Notifier
	topic     string
	groupID   string
	poller    *AdaptivePoller
	timeout   time.Duration
}

// NewConsumer joins groupID on topic. deliverer is usually the mailer.
func NewConsumer(ctx context.Context, brokers []string, groupID, topic string, deliverer domain.Notifier) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.new_consumer: no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(time.Second),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.FetchMaxWait(5*time.Second),
		kgo.DialTimeout(10*time.Second),
		kgo.RequestRetries(10),
		kotelHooks(),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.new_consumer: %w", err)
	}
	if err := EnsureTopics(ctx, client, 1, 1, topic, DLQTopic(topic)); err != nil {
		slog.Warn("ensure notification topics failed", slog.String("topic", topic), slog.Any("error", err))
	}
	c := newConsumer(client, client, deliverer, topic)
	c.client = client
	c.groupID = groupID
	return c, nil
}

func newConsumer(f fetchClient, dlq recordProducer, deliverer domain.Notifier, topic string) *Consumer {
	return &Consumer{
		fetcher:   f,
		dlq:       dlq,
		deliverer: deliverer,
		topic:     topic,
		poller:    NewAdaptivePoller(500 * time.Millisecond),
		timeout:   30 * time.Second,
	}
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("notification consumer started", slog.String("topic", c.topic), slog.String("group_id", c.groupID))
	for {
		if d := c.poller.NextInterval(); d > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(d):
			}
		}

		fetches := c.fetcher.PollFetches(ctx)
		if ctx.Err() != nil || fetches.IsClientClosed() {
			slog.Info("notification consumer stopping", slog.String("topic", c.topic))
			return nil
		}

		errs := fetches.Errors()
		for _, fe := range errs {
			slog.Error("fetch error",
				slog.String("topic", fe.Topic),
				slog.Int("partition", int(fe.Partition)),
				slog.Any("error", fe.Err))
		}

		n := 0
		fetches.EachRecord(func(rec *kgo.Record) {
			c.handleRecord(ctx, rec)
			c.fetcher.MarkCommitRecords(rec)
			n++
		})

		if len(errs) > 0 {
			c.poller.RecordFailure()
			continue
		}
		c.poller.RecordSuccess(n)
	}
}

func (c *Consumer) handleRecord(ctx context.Context, rec *kgo.Record) {
	var msg Notification
	if err := json.Unmarshal(rec.Value, &msg); err != nil {
		c.deadLetter(ctx, rec, "unknown", fmt.Errorf("decode: %w", err))
		return
	}

	lg := slog.Default().With(
		slog.String("notification_id", msg.ID),
		slog.String("template", msg.Template),
		slog.String("request_id", msg.RequestID))
	dctx := obsctx.ContextWithLogger(ctx, lg)
	dctx = obsctx.ContextWithRequestID(dctx, msg.RequestID)
	dctx, cancel := context.WithTimeout(dctx, c.timeout)
	defer cancel()

	if err := c.deliverer.SendTemplated(dctx, msg.Template, msg.Recipient, msg.Vars); err != nil {
		c.deadLetter(ctx, rec, msg.Template, err)
		return
	}
	observability.RecordNotification(msg.Template, "delivered")
	lg.Info("notification delivered", slog.Duration("queued_for", time.Since(msg.CreatedAt)))
}

func (c *Consumer) deadLetter(ctx context.Context, rec *kgo.Record, template string, cause error) {
	observability.RecordNotification(template, "dead_lettered")
	slog.Warn("dead-lettering notification",
		slog.String("topic", rec.Topic),
		slog.Int64("offset", rec.Offset),
		slog.Any("error", cause))

	headers := append([]kgo.RecordHeader{}, rec.Headers...)
	headers = append(headers, kgo.RecordHeader{Key: headerError, Value: []byte(cause.Error())})
	dl := &kgo.Record{
		Topic:   DLQTopic(c.topic),
		Key:     rec.Key,
		Value:   rec.Value,
		Headers: headers,
	}
	if err := c.dlq.ProduceSync(ctx, dl).FirstErr(); err != nil {
		slog.Error("dead-letter publish failed, dropping notification",
			slog.String("topic", rec.Topic),
			slog.Int64("offset", rec.Offset),
			slog.Any("error", err))
	}
}

// Healthy reports whether recent polls succeeded.
func (c *Consumer) Healthy() bool { return c.poller.IsHealthy() }

// Close commits marked offsets and leaves the group.
func (c *Consumer) Close(ctx context.Context) {
	if c.client == nil {
		return
	}
	if err := c.client.CommitMarkedOffsets(ctx); err != nil {
		slog.Warn("commit marked offsets failed", slog.Any("error", err))
	}
	c.client.Close()
}
