package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"accounts/internal/users/models"
	dErrors "accounts/pkg/domain-errors"
	"accounts/pkg/requestcontext"
)

// DefaultTopic receives one record per registration.
const DefaultTopic = "accounts.verification-requested"

const eventTypeHeader = "event-type"

// KafkaNotifier publishes verification requests keyed by user id, so all
// records for a user land on one partition.
type KafkaNotifier struct {
	client *kgo.Client
	topic  string
}

// NewKafkaClient builds a producer client for brokers.
func NewKafkaClient(brokers []string, opts ...kgo.Opt) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "at least one broker is required")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

func NewKafkaNotifier(client *kgo.Client, topic string) *KafkaNotifier {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaNotifier{client: client, topic: topic}
}

// Topic is where records are produced.
func (n *KafkaNotifier) Topic() string { return n.topic }

// RequestVerification blocks until the broker acknowledges the record.
func (n *KafkaNotifier) RequestVerification(ctx context.Context, user *models.User) error {
	payload, err := json.Marshal(newRequest(ctx, user))
	if err != nil {
		return fmt.Errorf("encode verification request: %w", err)
	}
	record := &kgo.Record{
		Topic: n.topic,
		Key:   []byte(user.ID.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: eventTypeHeader, Value: []byte("verification_requested")},
			{Key: "request-id", Value: []byte(requestcontext.RequestID(ctx))},
		},
	}
	if err := n.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish verification request: %w", err)
	}
	return nil
}

// EnsureTopic creates topic if the cluster does not have it yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}
