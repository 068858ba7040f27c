package dsl

import (
	"github.com/Veolinan/triage/pkg/adapters/memory"
	"github.com/Veolinan/triage/pkg/domain"
)

// NodeBuilder provides a fluent API for configuring a question.
type NodeBuilder struct {
	node    domain.QuestionNode
	builder *Builder
}

// Root marks the question as the entry point of the partition.
func (n *NodeBuilder) Root() *NodeBuilder {
	n.node.IsRoot = true
	return n
}

// Text sets the question shown to the respondent.
func (n *NodeBuilder) Text(text string) *NodeBuilder {
	n.node.Text = text
	return n
}

// Category sets the clinical category (e.g. "bleeding").
func (n *NodeBuilder) Category(category string) *NodeBuilder {
	n.node.Category = category
	return n
}

// Condition sets the condition the question is meant to evaluate.
func (n *NodeBuilder) Condition(condition string) *NodeBuilder {
	n.node.EvaluatedCondition = condition
	return n
}

// Choice appends an answer option. Without To it ends the questionnaire.
func (n *NodeBuilder) Choice(label string) *ChoiceBuilder {
	n.node.Choices = append(n.node.Choices, domain.Choice{Label: label})
	return &ChoiceBuilder{parent: n, index: len(n.node.Choices) - 1}
}

// Add starts the next question (shortcut for the parent builder's Add).
func (n *NodeBuilder) Add(id string) *NodeBuilder {
	return n.builder.Add(id)
}

// Build returns the whole graph (shortcut for the parent builder's Build).
func (n *NodeBuilder) Build() []domain.QuestionNode {
	return n.builder.Build()
}

// Store compiles the whole graph (shortcut for the parent builder's Store).
func (n *NodeBuilder) Store() *memory.NodeStore {
	return n.builder.Store()
}

// Node returns a copy of the question built so far.
func (n *NodeBuilder) Node() domain.QuestionNode {
	return n.node.Clone()
}

// ChoiceBuilder configures the most recent choice of a question.
type ChoiceBuilder struct {
	parent *NodeBuilder
	index  int
}

func (c *ChoiceBuilder) choice() *domain.Choice {
	return &c.parent.node.Choices[c.index]
}

// To sets the ID of the next question.
func (c *ChoiceBuilder) To(id string) *ChoiceBuilder {
	c.choice().LeadsTo = id
	return c
}

// Flag adds symptom or condition flags.
func (c *ChoiceBuilder) Flag(flags ...string) *ChoiceBuilder {
	ch := c.choice()
	ch.Flags = append(ch.Flags, flags...)
	return c
}

// Weight sets the numeric severity contribution.
func (c *ChoiceBuilder) Weight(w float64) *ChoiceBuilder {
	c.choice().Weight = &w
	return c
}

// Risk sets the risk level.
func (c *ChoiceBuilder) Risk(level domain.RiskLevel) *ChoiceBuilder {
	c.choice().RiskLevel = level
	return c
}

// Choice appends another option to the same question.
func (c *ChoiceBuilder) Choice(label string) *ChoiceBuilder {
	return c.parent.Choice(label)
}

// Add starts the next question.
func (c *ChoiceBuilder) Add(id string) *NodeBuilder {
	return c.parent.Add(id)
}

// Build returns the whole graph.
func (c *ChoiceBuilder) Build() []domain.QuestionNode {
	return c.parent.Build()
}

// Store compiles the whole graph into an in-memory node store.
func (c *ChoiceBuilder) Store() *memory.NodeStore {
	return c.parent.Store()
}
