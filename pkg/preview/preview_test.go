package preview_test

import (
	"strings"
	"testing"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/dsl"
	"github.com/Veolinan/triage/pkg/ports/tests"
	"github.com/Veolinan/triage/pkg/preview"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTree_Bleeding(t *testing.T) {
	tree, err := preview.BuildTree(tests.SampleNodes())
	require.NoError(t, err)

	want := &preview.TreeNode{
		NodeID:   "q1",
		Question: "Any bleeding?",
		Choices: []preview.TreeChoice{
			{
				Label: "Yes",
				Flags: []string{"danger"},
				Next: &preview.TreeNode{
					NodeID:   "q2",
					Question: "Severe pain?",
					Choices: []preview.TreeChoice{
						{Label: "Yes", Flags: []string{"danger"}, RiskLevel: domain.RiskDanger},
						{Label: "No", Flags: []string{"alert", "pain"}, RiskLevel: domain.RiskAlert},
					},
				},
			},
			{Label: "No"},
		},
	}
	if diff := cmp.Diff(want, tree, cmpopts.IgnoreUnexported(preview.TreeChoice{}), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("BuildTree() mismatch (-want +got):\n%s", diff)
	}
}

func TestEnumeratePaths_Bleeding(t *testing.T) {
	paths, err := preview.EnumeratePaths(tests.SampleNodes())
	require.NoError(t, err)
	require.Len(t, paths, 3)

	var labels [][]string
	for _, p := range paths {
		labels = append(labels, p.Labels())
	}
	wantLabels := [][]string{
		{"Any bleeding?", "Yes", "Severe pain?", "Yes"},
		{"Any bleeding?", "Yes", "Severe pain?", "No"},
		{"Any bleeding?", "No"},
	}
	if diff := cmp.Diff(wantLabels, labels); diff != "" {
		t.Errorf("path labels mismatch (-want +got):\n%s", diff)
	}

	wantDanger := domain.Assessment{
		Flags:              []string{"danger"},
		Occurrences:        []string{"danger", "danger"},
		Confidence:         []domain.ConfidenceEntry{{Condition: "danger", Score: 100}},
		SuggestedCondition: "danger",
		TotalWeight:        10,
		RiskLevels:         []domain.RiskLevel{domain.RiskDanger},
		Classification:     domain.ClassDangerZone,
	}
	if diff := cmp.Diff(wantDanger, paths[0].Assessment); diff != "" {
		t.Errorf("Yes/Yes assessment mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, domain.ClassAlertZone, paths[1].Assessment.Classification)
	assert.Equal(t, []domain.ConfidenceEntry{
		{Condition: "danger", Score: 33},
		{Condition: "alert", Score: 33},
		{Condition: "pain", Score: 33},
	}, paths[1].Assessment.Confidence)

	assert.Equal(t, domain.ClassLowRisk, paths[2].Assessment.Classification)
	assert.Equal(t, domain.NoCondition, paths[2].Assessment.SuggestedCondition)

	assert.Equal(t, map[domain.Classification]int{
		domain.ClassDangerZone: 1,
		domain.ClassAlertZone:  1,
		domain.ClassLowRisk:    1,
	}, preview.Outcomes(paths))
}

func TestEnumeratePaths_SharedQuestionAppearsPerPath(t *testing.T) {
	nodes := dsl.New(tests.SamplePartition).
		Add("q1").Root().Text("Headache?").
		Choice("Yes").To("q3").Flag("headache").
		Choice("No").To("q2").
		Add("q2").Text("Swelling?").
		Choice("Yes").To("q3").Flag("swelling").
		Choice("No").
		Add("q3").Text("Blurred vision?").
		Choice("Yes").Flag("preeclampsia").Risk(domain.RiskDanger).
		Choice("No").
		Build()

	paths, err := preview.EnumeratePaths(nodes)
	require.NoError(t, err)

	var got []string
	for _, p := range paths {
		got = append(got, strings.Join(p.Labels(), " / "))
	}
	want := []string{
		"Headache? / Yes / Blurred vision? / Yes",
		"Headache? / Yes / Blurred vision? / No",
		"Headache? / No / Swelling? / Yes / Blurred vision? / Yes",
		"Headache? / No / Swelling? / Yes / Blurred vision? / No",
		"Headache? / No / Swelling? / No",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
	for _, p := range paths {
		assert.LessOrEqual(t, len(p.Steps), len(nodes), "a path never visits more questions than exist")
	}
}

func TestEnumeratePaths_QuestionWithoutChoicesEndsPath(t *testing.T) {
	nodes := []domain.QuestionNode{
		{ID: "a", IsRoot: true, Text: "A", Choices: []domain.Choice{{Label: "go", LeadsTo: "b"}}},
		{ID: "b", Text: "B"},
	}
	paths, err := preview.EnumeratePaths(nodes)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{"A", "go", "B"}, paths[0].Labels())
}

func TestCycleIsReported(t *testing.T) {
	nodes := []domain.QuestionNode{
		{ID: "q1", IsRoot: true, Text: "One", Choices: []domain.Choice{{Label: "next", LeadsTo: "q2"}, {Label: "stop"}}},
		{ID: "q2", Text: "Two", Choices: []domain.Choice{{Label: "back", LeadsTo: "q1"}}},
	}

	_, err := preview.BuildTree(nodes)
	require.ErrorIs(t, err, domain.ErrCyclicGraph)
	assert.Contains(t, err.Error(), "q1 -> q2 -> q1")

	_, err = preview.EnumeratePaths(nodes)
	assert.ErrorIs(t, err, domain.ErrCyclicGraph)

	self := []domain.QuestionNode{
		{ID: "loop", IsRoot: true, Text: "Again?", Choices: []domain.Choice{{Label: "yes", LeadsTo: "loop"}}},
	}
	_, err = preview.BuildTree(self)
	require.ErrorIs(t, err, domain.ErrCyclicGraph)
	assert.Contains(t, err.Error(), "loop -> loop")
}

func TestBuildTree_RequiresSingleRoot(t *testing.T) {
	nodes := tests.SampleNodes()
	nodes[1].IsRoot = true
	_, err := preview.BuildTree(nodes)
	assert.ErrorIs(t, err, domain.ErrMalformedGraph)

	_, err = preview.BuildTree(nil)
	assert.ErrorIs(t, err, domain.ErrMalformedGraph)
}

func TestTable(t *testing.T) {
	nodes := tests.SampleNodes()
	// Display order comes from Order, not slice position.
	nodes[0], nodes[1] = nodes[1], nodes[0]

	got := preview.Table(nodes)
	lines := strings.Split(strings.TrimSpace(got), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "| 1 | ✓ | Any bleeding? | Yes → **2** (Flag: danger)<br>No → **End** |", lines[2])
	assert.Contains(t, lines[3], "Yes → **End** (Flag: danger) [danger]")
}

func TestMermaidWithSessionOverlay(t *testing.T) {
	s := &domain.Session{History: []string{"q1", "q2"}, CurrentNodeID: "q2"}
	got := preview.Mermaid(tests.SampleNodes(), preview.SessionOverlay(s))
	assert.Contains(t, got, "class q1 visited;")
	assert.Contains(t, got, "class q2 current;")
	assert.Nil(t, preview.SessionOverlay(nil))
}

func TestPathsMarkdown(t *testing.T) {
	paths, err := preview.EnumeratePaths(tests.SampleNodes())
	require.NoError(t, err)

	md := preview.PathsMarkdown(paths)
	assert.Contains(t, md, "### Path 1: Danger Zone")
	assert.Contains(t, md, "Suggested condition: **danger**, total weight 10")
	assert.Contains(t, md, "### Path 3: Low Risk")
}
