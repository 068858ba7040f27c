package dsl

import (
	"github.com/Veolinan/triage/pkg/adapters/memory"
	"github.com/Veolinan/triage/pkg/domain"
)

// Builder manages the construction of one partition's question graph.
type Builder struct {
	partition domain.Partition
	order     []string
	nodes     map[string]*NodeBuilder
}

// New creates a builder for the given partition.
func New(partition domain.Partition) *Builder {
	return &Builder{
		partition: partition,
		nodes:     make(map[string]*NodeBuilder),
	}
}

// Add creates a new question in the graph. Questions are ordered by the
// sequence of Add calls. If the question already exists, it returns the
// existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	b.order = append(b.order, id)
	nb := &NodeBuilder{
		node: domain.QuestionNode{
			ID:         id,
			Order:      len(b.order),
			StageType:  b.partition.StageType,
			StageRange: b.partition.StageRange,
		},
		builder: b,
	}
	b.nodes[id] = nb
	return nb
}

// Build returns the nodes in Add order. The result is a fresh copy.
func (b *Builder) Build() []domain.QuestionNode {
	out := make([]domain.QuestionNode, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.nodes[id].node.Clone())
	}
	return out
}

// Store compiles the graph into an in-memory node store.
func (b *Builder) Store() *memory.NodeStore {
	return memory.NewNodeStoreFrom(b.Build()...)
}
