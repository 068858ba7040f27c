package badger_test

import (
	"context"
	"testing"

	"github.com/Veolinan/triage/pkg/adapters/badger"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openInMemory(t *testing.T) *badger.Store {
	t.Helper()
	store, err := badger.Open(badger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBadgerStore_NodeContract(t *testing.T) {
	tests.RunNodeStoreContract(t, openInMemory(t))
}

func TestBadgerStore_SessionContract(t *testing.T) {
	tests.RunSessionStoreContract(t, openInMemory(t))
}

func TestBadgerStore_ResponseContract(t *testing.T) {
	tests.RunResponseStoreContract(t, openInMemory(t))
}

func TestBadgerStore_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := badger.Open(badger.Config{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, store.ReplacePartition(ctx, tests.SamplePartition, tests.SampleNodes()))
	require.NoError(t, store.Close())

	reopened, err := badger.Open(badger.Config{Path: dir})
	require.NoError(t, err)
	defer reopened.Close()

	nodes, err := reopened.FetchNodes(ctx, tests.SamplePartition)
	require.NoError(t, err)
	tests.AssertSameNodes(t, tests.SampleNodes(), nodes)

	partitions, err := reopened.ListPartitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Partition{tests.SamplePartition}, partitions)
}

func TestBadgerStore_PathRequired(t *testing.T) {
	_, err := badger.Open(badger.Config{})
	assert.Error(t, err)
}
