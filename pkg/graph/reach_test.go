package graph_test

import (
	"testing"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/graph"
	"github.com/stretchr/testify/assert"
)

func TestUnreachable(t *testing.T) {
	nodes := bleeding()
	assert.Empty(t, graph.Unreachable(nodes, "q1"))

	nodes = append(nodes, domain.QuestionNode{
		ID: "orphan", Order: 3, Text: "Never asked",
		Choices: []domain.Choice{{Label: "Ok"}},
	})
	assert.Equal(t, []string{"orphan"}, graph.Unreachable(nodes, "q1"))
	assert.Nil(t, graph.Unreachable(nodes, "missing-root"))
}

func TestFindCycle(t *testing.T) {
	assert.Nil(t, graph.FindCycle(bleeding()))

	nodes := bleeding()
	nodes[1].Choices[1].LeadsTo = "q1"
	assert.Equal(t, []string{"q1", "q2", "q1"}, graph.FindCycle(nodes))

	self := []domain.QuestionNode{{
		ID: "loop", IsRoot: true, Text: "Again?",
		Choices: []domain.Choice{{Label: "Yes", LeadsTo: "loop"}},
	}}
	assert.Equal(t, []string{"loop", "loop"}, graph.FindCycle(self))
}

func TestFindCycle_DiamondIsNotACycle(t *testing.T) {
	nodes := []domain.QuestionNode{
		{ID: "a", IsRoot: true, Text: "a", Choices: []domain.Choice{{Label: "1", LeadsTo: "b"}, {Label: "2", LeadsTo: "c"}}},
		{ID: "b", Text: "b", Choices: []domain.Choice{{Label: "1", LeadsTo: "d"}}},
		{ID: "c", Text: "c", Choices: []domain.Choice{{Label: "1", LeadsTo: "d"}}},
		{ID: "d", Text: "d", Choices: []domain.Choice{{Label: "end"}}},
	}
	assert.Nil(t, graph.FindCycle(nodes))
}

func TestDuplicateOrders(t *testing.T) {
	nodes := bleeding()
	assert.Empty(t, graph.DuplicateOrders(nodes))

	nodes[1].Order = 1
	assert.Equal(t, map[int][]int{1: {0, 1}}, graph.DuplicateOrders(nodes))
}

func TestPaddedIdentifiers(t *testing.T) {
	nodes := bleeding()
	nodes[0].Choices[0].LeadsTo = " q2 "
	nodes[1].ID = "q2 "

	assert.True(t, graph.Validate(nodes).OK())
	assert.Empty(t, graph.Unreachable(nodes, "q1"))
	assert.Contains(t, graph.Index(nodes), "q2")

	nodes[1].Choices[1].LeadsTo = " q1"
	assert.Equal(t, []string{"q1", "q2", "q1"}, graph.FindCycle(nodes))
}
