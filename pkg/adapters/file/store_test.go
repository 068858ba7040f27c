package file_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veolinan/triage/pkg/adapters/file"
	"github.com/Veolinan/triage/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SessionContract(t *testing.T) {
	tests.RunSessionStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_NodeContract(t *testing.T) {
	tests.RunNodeStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_ResponseContract(t *testing.T) {
	tests.RunResponseStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_PartitionDocumentIsYAML(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	require.NoError(t, store.ReplacePartition(ctx, tests.SamplePartition, tests.SampleNodes()))

	entries, err := os.ReadDir(filepath.Join(dir, "partitions"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")

	data, err := os.ReadFile(filepath.Join(dir, "partitions", entries[0].Name()))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "stageType: pregnant"))
	assert.True(t, strings.Contains(string(data), "Any bleeding?"))

	partitions, err := store.ListPartitions(ctx)
	require.NoError(t, err)
	require.Len(t, partitions, 1)
	assert.Equal(t, tests.SamplePartition, partitions[0])

	// An empty replace removes the document.
	require.NoError(t, store.ReplacePartition(ctx, tests.SamplePartition, nil))
	partitions, err = store.ListPartitions(ctx)
	require.NoError(t, err)
	assert.Empty(t, partitions)
}

func TestFileStore_RejectsPathIDs(t *testing.T) {
	store := file.New(t.TempDir())
	_, err := store.GetResponse(context.Background(), "../escape")
	assert.Error(t, err)
}

func TestFileStore_Watch(t *testing.T) {
	store := file.New(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := store.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, store.ReplacePartition(ctx, tests.SamplePartition, tests.SampleNodes()))

	select {
	case name := <-events:
		assert.True(t, strings.HasSuffix(name, ".yaml"), "got %q", name)
	case <-time.After(3 * time.Second):
		t.Fatal("expected a change notification")
	}
}
