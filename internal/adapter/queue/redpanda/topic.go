package redpanda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// requester is the admin surface of *kgo.Client used for topic creation.
type requester interface {
	Request(ctx context.Context, req kmsg.Request) (kmsg.Response, error)
}

// EnsureTopics creates each topic unless it already exists.
func EnsureTopics(ctx context.Context, client requester, partitions int32, replicationFactor int16, topics ...string) error {
	if partitions <= 0 {
		return fmt.Errorf("op=redpanda.ensure_topics: partitions must be greater than 0")
	}
	if replicationFactor <= 0 {
		return fmt.Errorf("op=redpanda.ensure_topics: replication factor must be greater than 0")
	}

	req := kmsg.NewCreateTopicsRequest()
	req.TimeoutMillis = 30000
	for _, topic := range topics {
		if topic == "" {
			return fmt.Errorf("op=redpanda.ensure_topics: topic name cannot be empty")
		}
		t := kmsg.NewCreateTopicsRequestTopic()
		t.Topic = topic
		t.NumPartitions = partitions
		t.ReplicationFactor = replicationFactor
		req.Topics = append(req.Topics, t)
	}

	resp, err := client.Request(ctx, &req)
	if err != nil {
		return fmt.Errorf("op=redpanda.ensure_topics: %w", err)
	}
	created, ok := resp.(*kmsg.CreateTopicsResponse)
	if !ok {
		return fmt.Errorf("op=redpanda.ensure_topics: unexpected response type %T", resp)
	}

	for _, t := range created.Topics {
		err := kerr.ErrorForCode(t.ErrorCode)
		switch {
		case err == nil:
			slog.Info("topic created", slog.String("topic", t.Topic), slog.Int("partitions", int(partitions)))
		case errors.Is(err, kerr.TopicAlreadyExists):
			slog.Debug("topic already exists", slog.String("topic", t.Topic))
		default:
			msg := ""
			if t.ErrorMessage != nil {
				msg = *t.ErrorMessage
			}
			return fmt.Errorf("op=redpanda.ensure_topics: topic %s: %w %s", t.Topic, err, msg)
		}
	}
	return nil
}
