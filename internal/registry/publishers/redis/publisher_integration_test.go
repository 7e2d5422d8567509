//go:build integration

package redis_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"assetregistry/internal/registry/models"
	"assetregistry/internal/registry/publishers/redis"
	"assetregistry/pkg/domain"
	"assetregistry/pkg/testutil/containers"
)

func TestPublishToRedis(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	channel := "registry.events." + uuid.NewString()
	sub := rc.Client.Subscribe(ctx, channel)
	defer sub.Close()
	_, err := sub.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	publisher, err := redis.New(rc.Client, channel)
	require.NoError(t, err)

	id := domain.HashAssetName("sample")
	sent := []models.Event{
		{Sequence: 1, ID: uuid.New(), Kind: models.EventAssetRegistered, AssetID: id, Owner: "alice", Actor: "alice"},
		{Sequence: 2, ID: uuid.New(), Kind: models.EventAssetMetadataUpdated, AssetID: id, Metadata: "v2", Actor: "alice"},
	}
	require.NoError(t, publisher.Publish(ctx, sent))

	msgs := sub.Channel()
	for _, want := range sent {
		select {
		case msg := <-msgs:
			var got models.Event
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
			require.Equal(t, want.Sequence, got.Sequence)
			require.Equal(t, want.ID, got.ID)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for event %d", want.Sequence)
		}
	}
}
