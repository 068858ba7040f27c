// Package authoring edits and publishes a partition's question graph.
//
// A Draft is an in-memory working copy of one partition. Edits address
// questions by their position (the order the author sees) while edges use
// stable IDs, so reordering never breaks a leadsTo. Save publishes the whole
// partition in one NodeWriter.ReplacePartition call after ValidateAll
// passes. Two operators saving the same partition concurrently are not
// arbitrated: the last save wins.
package authoring

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/graph"
	"github.com/Veolinan/triage/pkg/ports"
	"github.com/google/uuid"
)

var (
	// ErrLastChoice is returned when removing the only choice of a question.
	ErrLastChoice = errors.New("a question needs at least one choice")
	// ErrNodeReferenced is returned when deleting a question other choices lead to.
	ErrNodeReferenced = domain.ErrNodeReferenced
	// ErrOutOfRange is returned for a question or choice index that does not exist.
	ErrOutOfRange = errors.New("index out of range")
	// ErrOperatorRequired is returned when saving without an operator identity.
	ErrOperatorRequired = errors.New("operator identity is required to save")
)

// Draft is a working copy of one partition.
type Draft struct {
	Partition domain.Partition
	Category  string
	Nodes     []domain.QuestionNode

	newID func() string
	now   func() time.Time
}

// NewDraft starts an empty draft.
func NewDraft(partition domain.Partition, category string) *Draft {
	return &Draft{
		Partition: partition,
		Category:  category,
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Open loads the partition's current nodes into a draft, in display order.
// The category is taken from the first node that has one.
func Open(ctx context.Context, reader ports.NodeReader, partition domain.Partition) (*Draft, error) {
	nodes, err := reader.FetchNodes(ctx, partition)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrLoadFailure, partition, err)
	}
	slices.SortStableFunc(nodes, func(a, b domain.QuestionNode) int { return a.Order - b.Order })

	d := NewDraft(partition, "")
	d.Nodes = nodes
	for _, n := range nodes {
		if n.Category != "" {
			d.Category = n.Category
			break
		}
	}
	return d, nil
}

// Clone returns an independent copy of the draft.
func (d *Draft) Clone() *Draft {
	out := *d
	out.Nodes = domain.CloneNodes(d.Nodes)
	return &out
}

func (d *Draft) question(qi int) (*domain.QuestionNode, error) {
	if qi < 0 || qi >= len(d.Nodes) {
		return nil, fmt.Errorf("%w: question %d of %d", ErrOutOfRange, qi, len(d.Nodes))
	}
	return &d.Nodes[qi], nil
}

func (d *Draft) choice(qi, ci int) (*domain.Choice, error) {
	q, err := d.question(qi)
	if err != nil {
		return nil, err
	}
	if ci < 0 || ci >= len(q.Choices) {
		return nil, fmt.Errorf("%w: choice %d of question %d", ErrOutOfRange, ci, qi)
	}
	return &q.Choices[ci], nil
}

// AddQuestion appends a question with one blank choice and returns its ID.
func (d *Draft) AddQuestion(text string) string {
	id := d.newID()
	d.Nodes = append(d.Nodes, domain.QuestionNode{
		ID:         id,
		Order:      len(d.Nodes) + 1,
		Text:       text,
		StageType:  d.Partition.StageType,
		StageRange: d.Partition.StageRange,
		Category:   d.Category,
		Choices:    []domain.Choice{{}},
	})
	return id
}

// AddChoice appends a choice to question qi.
func (d *Draft) AddChoice(qi int, c domain.Choice) error {
	q, err := d.question(qi)
	if err != nil {
		return err
	}
	q.Choices = append(q.Choices, c.Clone())
	return nil
}

// UpdateChoice replaces choice ci of question qi.
func (d *Draft) UpdateChoice(qi, ci int, c domain.Choice) error {
	ch, err := d.choice(qi, ci)
	if err != nil {
		return err
	}
	*ch = c.Clone()
	return nil
}

// RemoveChoice deletes choice ci of question qi. The last choice cannot be removed.
func (d *Draft) RemoveChoice(qi, ci int) error {
	if _, err := d.choice(qi, ci); err != nil {
		return err
	}
	q := &d.Nodes[qi]
	if len(q.Choices) == 1 {
		return ErrLastChoice
	}
	q.Choices = slices.Delete(q.Choices, ci, ci+1)
	return nil
}

// SetText changes the question text.
func (d *Draft) SetText(qi int, text string) error {
	q, err := d.question(qi)
	if err != nil {
		return err
	}
	q.Text = text
	return nil
}

// SetRoot toggles the root marker of question qi. Marking several roots is
// allowed while editing; ValidateAll rejects it.
func (d *Draft) SetRoot(qi int, root bool) error {
	q, err := d.question(qi)
	if err != nil {
		return err
	}
	q.IsRoot = root
	return nil
}

// Reorder moves question from to position to and renumbers every Order as
// position+1. Edges are untouched because they use IDs.
func (d *Draft) Reorder(from, to int) error {
	if _, err := d.question(from); err != nil {
		return err
	}
	if _, err := d.question(to); err != nil {
		return err
	}
	moved := d.Nodes[from]
	d.Nodes = slices.Delete(d.Nodes, from, from+1)
	d.Nodes = slices.Insert(d.Nodes, to, moved)
	d.renumber()
	return nil
}

// DeleteQuestion removes question qi. It is refused while any choice leads
// to it; the error lists the referencing addresses.
func (d *Draft) DeleteQuestion(qi int) error {
	q, err := d.question(qi)
	if err != nil {
		return err
	}
	if refs := graph.IncomingEdges(d.Nodes, q.ID); len(refs) > 0 {
		parts := make([]string, len(refs))
		for i, r := range refs {
			parts[i] = string(r)
		}
		return fmt.Errorf("%w: %s is the target of %s", ErrNodeReferenced, q.ID, strings.Join(parts, ", "))
	}
	d.Nodes = slices.Delete(d.Nodes, qi, qi+1)
	d.renumber()
	return nil
}

// IndexOf returns the position of the question with the given ID, or -1.
func (d *Draft) IndexOf(id string) int {
	return slices.IndexFunc(d.Nodes, func(n domain.QuestionNode) bool { return n.ID == id })
}

func (d *Draft) renumber() {
	for i := range d.Nodes {
		d.Nodes[i].Order = i + 1
	}
}

// ValidateAll runs every check a partition must pass before it is saved:
// the structural rules of graph.Validate, a category, reachability of every
// question from the root, absence of cycles, unique orders and every node
// belonging to the draft's partition.
func (d *Draft) ValidateAll() graph.Result {
	res := graph.Validate(d.Nodes)

	if strings.TrimSpace(d.Category) == "" {
		res.Add(graph.GraphAddress, graph.IssueMissingCategory, "category is required")
	}

	for i, n := range d.Nodes {
		if n.StageType != d.Partition.StageType || n.StageRange != d.Partition.StageRange {
			res.Add(graph.NodeAddress(i), graph.IssuePartitionMismatch,
				"question belongs to %s, not %s", n.Partition(), d.Partition)
		}
	}

	for order, idxs := range graph.DuplicateOrders(d.Nodes) {
		for _, i := range idxs {
			res.Add(graph.NodeAddress(i), graph.IssueDuplicateOrder, "order %d is used by %d questions", order, len(idxs))
		}
	}

	if cycle := graph.FindCycle(d.Nodes); cycle != nil {
		res.Add(graph.GraphAddress, graph.IssueCycle, "choices form a loop: %s", strings.Join(cycle, " -> "))
	}

	if root, err := graph.ResolveRoot(d.Nodes); err == nil {
		unreachable := graph.Unreachable(d.Nodes, root.ID)
		for i, n := range d.Nodes {
			if slices.Contains(unreachable, n.ID) {
				res.Add(graph.NodeAddress(i), graph.IssueUnreachable, "no path from the root reaches this question")
			}
		}
	}
	return res
}

// Save validates the draft and replaces the stored partition with it in one
// call, stamping every node with the operator and the save time. Nothing is
// written when validation fails.
func (d *Draft) Save(ctx context.Context, writer ports.NodeWriter, operatorID string) error {
	if strings.TrimSpace(operatorID) == "" {
		return ErrOperatorRequired
	}
	if err := d.ValidateAll().Err(); err != nil {
		return err
	}

	now := d.now()
	nodes := domain.CloneNodes(d.Nodes)
	for i := range nodes {
		nodes[i].Category = d.Category
		nodes[i].AuthoredBy = operatorID
		nodes[i].UpdatedAt = now
		for j := range nodes[i].Choices {
			c := &nodes[i].Choices[j]
			c.Label = strings.TrimSpace(c.Label)
			c.LeadsTo = strings.TrimSpace(c.LeadsTo)
		}
	}

	if err := writer.ReplacePartition(ctx, d.Partition, nodes); err != nil {
		return fmt.Errorf("failed to save %s: %w", d.Partition, err)
	}
	d.Nodes = nodes
	return nil
}
