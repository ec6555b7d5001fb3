//go:build integration

package verification_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"accounts/internal/users/models"
	"accounts/internal/users/verification"
	id "accounts/pkg/domain"
	"accounts/pkg/testutil/containers"
)

func TestKafkaNotifierPublishes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	broker := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	producer, err := verification.NewKafkaClient([]string{broker.SeedBroker})
	require.NoError(t, err)
	defer producer.Close()

	require.NoError(t, verification.EnsureTopic(ctx, producer, verification.DefaultTopic, 1, 1))
	require.NoError(t, verification.EnsureTopic(ctx, producer, verification.DefaultTopic, 1, 1), "second call is a no-op")

	user, err := models.NewUser(id.NewUserID(), models.NewUserParams{
		Username:     "alice",
		Email:        "a@x.com",
		PasswordHash: "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy",
	}, time.Now())
	require.NoError(t, err)

	notifier := verification.NewKafkaNotifier(producer, "")
	require.NoError(t, notifier.RequestVerification(ctx, user))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.SeedBroker),
		kgo.ConsumeTopics(verification.DefaultTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollRecords(ctx, 1)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)

	assert.Equal(t, user.ID.String(), string(records[0].Key))
	var payload verification.Request
	require.NoError(t, json.Unmarshal(records[0].Value, &payload))
	assert.Equal(t, user.ID, payload.UserID)
	assert.Equal(t, "a@x.com", payload.Email)
}
