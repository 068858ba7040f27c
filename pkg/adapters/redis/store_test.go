package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/Veolinan/triage/pkg/adapters/redis"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/ports/tests"
	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	return redis.NewFromClient(client, opts...), mr
}

func TestRedisStore_SessionContract(t *testing.T) {
	store, _ := newStore(t)
	tests.RunSessionStoreContract(t, store)
}

func TestRedisStore_NodeContract(t *testing.T) {
	store, _ := newStore(t)
	tests.RunNodeStoreContract(t, store)
}

func TestRedisStore_ResponseContract(t *testing.T) {
	store, _ := newStore(t)
	tests.RunResponseStoreContract(t, store)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	store, mr := newStore(t, redis.WithTTL(1*time.Second))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.NewSession("session-ttl", "")))
	assert.True(t, mr.Exists("triage:session:session-ttl"))

	mr.FastForward(2 * time.Second)

	_, err := store.Load(ctx, "session-ttl")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRedisStore_PartitionIsAHash(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplacePartition(ctx, tests.SamplePartition, tests.SampleNodes()))

	key := "triage:partition:" + tests.SamplePartition.Key()
	fields, err := mr.HKeys(key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"q1", "q2"}, fields)

	nodes, err := store.FetchNodes(ctx, tests.SamplePartition)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "q1", nodes[0].ID, "nodes come back sorted by order")

	partitions, err := store.ListPartitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Partition{tests.SamplePartition}, partitions)

	require.NoError(t, store.ReplacePartition(ctx, tests.SamplePartition, nil))
	assert.False(t, mr.Exists(key))
	partitions, err = store.ListPartitions(ctx)
	require.NoError(t, err)
	assert.Empty(t, partitions)
}
