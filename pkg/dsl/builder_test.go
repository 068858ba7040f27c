package dsl_test

import (
	"context"
	"testing"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/dsl"
	"github.com/Veolinan/triage/pkg/graph"
	"github.com/Veolinan/triage/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_BleedingScenario(t *testing.T) {
	nodes := dsl.New(tests.SamplePartition).
		Add("q1").Root().Text("Any bleeding?").Category("bleeding").
		Choice("Yes").To("q2").Flag("danger").
		Choice("No").
		Add("q2").Text("Severe pain?").Category("bleeding").
		Choice("Yes").Flag("danger").Weight(10).Risk(domain.RiskDanger).
		Choice("No").Flag("alert", "pain").Risk(domain.RiskAlert).
		Build()

	tests.AssertSameNodes(t, tests.SampleNodes(), nodes)
	assert.True(t, graph.Validate(nodes).OK())
}

func TestBuilder_OrderFollowsAddCalls(t *testing.T) {
	b := dsl.New(tests.SamplePartition)
	b.Add("b").Text("B").Choice("ok")
	b.Add("a").Root().Text("A").Choice("next").To("b")
	b.Add("b").Condition("anaemia") // existing builder is reused

	nodes := b.Build()
	require.Len(t, nodes, 2)
	assert.Equal(t, "b", nodes[0].ID)
	assert.Equal(t, 1, nodes[0].Order)
	assert.Equal(t, "anaemia", nodes[0].EvaluatedCondition)
	assert.Equal(t, 2, nodes[1].Order)
	assert.Equal(t, tests.SamplePartition, nodes[1].Partition())
}

func TestBuilder_BuildReturnsCopies(t *testing.T) {
	b := dsl.New(tests.SamplePartition)
	b.Add("q").Root().Text("Q").Choice("x").Flag("f").Weight(1)

	first := b.Build()
	first[0].Choices[0].Flags[0] = "mutated"
	*first[0].Choices[0].Weight = 99

	second := b.Build()
	assert.Equal(t, domain.Flags{"f"}, second[0].Choices[0].Flags)
	assert.Equal(t, 1.0, second[0].Choices[0].WeightValue())
}

func TestBuilder_Store(t *testing.T) {
	b := dsl.New(tests.SamplePartition)
	b.Add("q").Root().Text("Q").Choice("x")

	got, err := b.Store().FetchNodes(context.Background(), tests.SamplePartition)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "q", got[0].ID)
}

func TestBuilder_StoreFromChain(t *testing.T) {
	store := dsl.New(tests.SamplePartition).
		Add("q1").Root().Text("Any bleeding?").
		Choice("Yes").To("q2").
		Add("q2").Text("Severe pain?").
		Choice("No").
		Store()

	got, err := store.FetchNodes(context.Background(), tests.SamplePartition)
	require.NoError(t, err)
	require.Len(t, got, 2)

	single := dsl.New(tests.SamplePartition).Add("only").Root().Text("Q").Store()
	got, err = single.FetchNodes(context.Background(), tests.SamplePartition)
	require.NoError(t, err)
	assert.Equal(t, "only", got[0].ID)
}
