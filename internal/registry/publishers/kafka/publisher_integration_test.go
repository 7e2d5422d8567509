//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"assetregistry/internal/platform/config"
	platformkafka "assetregistry/internal/platform/kafka"
	"assetregistry/internal/registry/models"
	"assetregistry/internal/registry/publishers/kafka"
	"assetregistry/pkg/domain"
	"assetregistry/pkg/testutil/containers"
)

func TestPublishToRedpanda(t *testing.T) {
	broker := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	topic := "registry.events." + uuid.NewString()
	client, err := platformkafka.New(ctx, config.KafkaConfig{
		Brokers:           broker.Brokers,
		Topic:             topic,
		ClientID:          "registry-test",
		CreateTopic:       true,
		Partitions:        1,
		ReplicationFactor: 1,
		DialTimeout:       10 * time.Second,
		DeliveryTimeout:   10 * time.Second,
	})
	require.NoError(t, err)
	defer client.Close()

	publisher, err := kafka.New(client, topic)
	require.NoError(t, err)

	id := domain.HashAssetName("sample")
	sent := []models.Event{
		{Sequence: 1, ID: uuid.New(), Kind: models.EventAssetRegistered, AssetID: id, Owner: "alice", Actor: "alice", Timestamp: time.Now().UTC()},
		{Sequence: 2, ID: uuid.New(), Kind: models.EventOwnershipTransferred, AssetID: id, PreviousOwner: "alice", NewOwner: "bob", Actor: "alice", Timestamp: time.Now().UTC()},
	}
	require.NoError(t, publisher.Publish(ctx, sent))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var got []models.Event
	for len(got) < len(sent) {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, ctx.Err())
		for _, fe := range fetches.Errors() {
			require.NoError(t, fe.Err)
		}
		fetches.EachRecord(func(r *kgo.Record) {
			var e models.Event
			require.NoError(t, json.Unmarshal(r.Value, &e))
			require.Equal(t, id.String(), string(r.Key))
			got = append(got, e)
		})
	}
	require.Equal(t, sent[0].ID, got[0].ID)
	require.Equal(t, sent[1].ID, got[1].ID)
}
