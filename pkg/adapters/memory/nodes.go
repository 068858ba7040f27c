package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/Veolinan/triage/pkg/domain"
)

// NodeStore implements ports.NodeStore in memory.
// Safe for concurrent use.
type NodeStore struct {
	mu         sync.RWMutex
	partitions map[domain.Partition][]domain.QuestionNode
}

// NewNodeStore creates an empty question bank.
func NewNodeStore() *NodeStore {
	return &NodeStore{
		partitions: make(map[domain.Partition][]domain.QuestionNode),
	}
}

// NewNodeStoreFrom seeds a question bank, grouping nodes by their partition.
func NewNodeStoreFrom(nodes ...domain.QuestionNode) *NodeStore {
	s := NewNodeStore()
	for _, n := range nodes {
		p := n.Partition()
		s.partitions[p] = append(s.partitions[p], n.Clone())
	}
	return s
}

// FetchNodes returns a copy of the partition's nodes.
func (s *NodeStore) FetchNodes(ctx context.Context, partition domain.Partition) ([]domain.QuestionNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := domain.CloneNodes(s.partitions[partition])
	if nodes == nil {
		nodes = []domain.QuestionNode{}
	}
	return nodes, nil
}

// ReplacePartition swaps the whole partition under one lock.
func (s *NodeStore) ReplacePartition(ctx context.Context, partition domain.Partition, nodes []domain.QuestionNode) error {
	copied := domain.CloneNodes(nodes)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(copied) == 0 {
		delete(s.partitions, partition)
		return nil
	}
	s.partitions[partition] = copied
	return nil
}

// DeleteNode removes a node from its partition unless another choice leads to it.
func (s *NodeStore) DeleteNode(ctx context.Context, partition domain.Partition, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := s.partitions[partition]
	if err := domain.CheckDelete(nodes, id); err != nil {
		return err
	}
	i := slices.IndexFunc(nodes, func(n domain.QuestionNode) bool { return n.ID == id })
	s.partitions[partition] = append(nodes[:i:i], nodes[i+1:]...)
	return nil
}

// ListPartitions returns the partitions that hold at least one node.
func (s *NodeStore) ListPartitions(ctx context.Context) ([]domain.Partition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Partition, 0, len(s.partitions))
	for p, nodes := range s.partitions {
		if len(nodes) > 0 {
			out = append(out, p)
		}
	}
	return out, nil
}
