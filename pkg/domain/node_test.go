package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFlags_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		json string
		want domain.Flags
	}{
		{"single string", `{"label":"Yes","flag":"danger"}`, domain.Flags{"danger"}},
		{"list", `{"label":"Yes","flag":["fatigue","dizziness"]}`, domain.Flags{"fatigue", "dizziness"}},
		{"nested list", `{"label":"Yes","flag":[["fatigue"],"dizziness",[["nausea"]]]}`, domain.Flags{"fatigue", "dizziness", "nausea"}},
		{"blank dropped", `{"label":"Yes","flag":""}`, nil},
		{"absent", `{"label":"Yes"}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c domain.Choice
			require.NoError(t, json.Unmarshal([]byte(tt.json), &c))
			assert.Equal(t, tt.want, c.Flags)
		})
	}
}

func TestFlags_UnmarshalJSON_RejectsNumbers(t *testing.T) {
	var c domain.Choice
	err := json.Unmarshal([]byte(`{"label":"Yes","flag":[1]}`), &c)
	assert.Error(t, err)
}

func TestFlags_UnmarshalYAML(t *testing.T) {
	doc := `
id: q1
order: 1
isRoot: true
text: Any bleeding?
choices:
  - label: "Yes"
    leadsTo: q2
    flag: danger
  - label: "No"
    flag:
      - fatigue
      - [dizziness]
`
	var n domain.QuestionNode
	require.NoError(t, yaml.Unmarshal([]byte(doc), &n))
	require.Len(t, n.Choices, 2)
	assert.Equal(t, domain.Flags{"danger"}, n.Choices[0].Flags)
	assert.Equal(t, domain.Flags{"fatigue", "dizziness"}, n.Choices[1].Flags)
	assert.True(t, n.Choices[1].Terminal())
	assert.False(t, n.Choices[0].Terminal())
}

func TestQuestionNode_CloneIsDeep(t *testing.T) {
	w := 3.0
	n := domain.QuestionNode{
		ID: "q1",
		Choices: []domain.Choice{
			{Label: "Yes", Flags: domain.Flags{"a"}, Weight: &w},
		},
	}

	c := n.Clone()
	c.Choices[0].Label = "changed"
	c.Choices[0].Flags[0] = "b"
	*c.Choices[0].Weight = 9

	assert.Equal(t, "Yes", n.Choices[0].Label)
	assert.Equal(t, "a", n.Choices[0].Flags[0])
	assert.Equal(t, 3.0, n.Choices[0].WeightValue())
}

func TestStageCatalog_Validate(t *testing.T) {
	catalog := domain.DefaultStageCatalog()

	assert.NoError(t, catalog.Validate(domain.Partition{StageType: "pregnant", StageRange: "1–3 months"}))
	assert.NoError(t, catalog.Validate(domain.Partition{StageType: "postpartum", StageRange: "10–12 months"}))
	assert.ErrorIs(t, catalog.Validate(domain.Partition{StageType: "unknown", StageRange: "1–3 months"}), domain.ErrUnknownStage)
	assert.ErrorIs(t, catalog.Validate(domain.Partition{StageType: "pregnant", StageRange: "10–12 months"}), domain.ErrUnknownStage)

	assert.Equal(t, []string{"pregnant", "postpartum"}, catalog.Types())
	assert.Len(t, catalog.Partitions(), 8)
}

func TestCheckDelete(t *testing.T) {
	nodes := []domain.QuestionNode{
		{ID: "q1", Choices: []domain.Choice{{Label: "Yes", LeadsTo: " q2"}, {Label: "No"}}},
		{ID: "q2", Choices: []domain.Choice{{Label: "Ok"}}},
	}

	err := domain.CheckDelete(nodes, "q2")
	require.ErrorIs(t, err, domain.ErrNodeReferenced)
	assert.Contains(t, err.Error(), "q1")

	assert.NoError(t, domain.CheckDelete(nodes, "q1"))
	assert.ErrorIs(t, domain.CheckDelete(nodes, "missing"), domain.ErrNodeNotFound)
}

func TestNormalizeIDs(t *testing.T) {
	nodes := []domain.QuestionNode{
		{ID: " q1 ", Choices: []domain.Choice{{Label: "Yes", LeadsTo: "q2\n"}, {Label: "No", LeadsTo: "  "}}},
	}
	domain.NormalizeIDs(nodes)

	assert.Equal(t, "q1", nodes[0].ID)
	assert.Equal(t, "q2", nodes[0].Choices[0].LeadsTo)
	assert.True(t, nodes[0].Choices[1].Terminal())
	assert.Empty(t, nodes[0].Choices[1].LeadsTo)
}
