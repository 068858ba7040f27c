package ports

import (
	"context"

	"github.com/Veolinan/triage/pkg/domain"
)

// NodeReader retrieves the question graph of a partition.
type NodeReader interface {
	// FetchNodes returns every node of the partition. An unknown or empty
	// partition yields an empty slice, not an error. Ordering is the caller's
	// responsibility.
	FetchNodes(ctx context.Context, partition domain.Partition) ([]domain.QuestionNode, error)
}

// NodeWriter mutates the question bank.
type NodeWriter interface {
	// ReplacePartition atomically replaces the node set of a partition:
	// every given node is created or updated and every other node of the
	// partition is removed. Either all changes are visible or none.
	ReplacePartition(ctx context.Context, partition domain.Partition, nodes []domain.QuestionNode) error

	// DeleteNode removes one node. Returns domain.ErrNodeNotFound if absent
	// and domain.ErrNodeReferenced while any choice of the partition leads
	// to it.
	DeleteNode(ctx context.Context, partition domain.Partition, id string) error
}

// NodeStore is a readable and writable question bank.
type NodeStore interface {
	NodeReader
	NodeWriter
}

// PartitionLister is implemented by node stores that can enumerate the
// partitions they hold.
type PartitionLister interface {
	ListPartitions(ctx context.Context) ([]domain.Partition, error)
}

// Watchable defines an interface for sources that can notify about backend changes.
// This is typically used for hot-reload of the question bank.
type Watchable interface {
	// Watch returns a channel that receives the key of every changed entry.
	// The channel is closed when ctx is done.
	Watch(ctx context.Context) (<-chan string, error)
}
