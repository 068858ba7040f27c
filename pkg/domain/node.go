package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// QuestionNode represents a single question in a partition's graph.
type QuestionNode struct {
	// ID is the stable address of the node. Choice.LeadsTo refers to it.
	ID string `json:"id" yaml:"id"`

	// Order is the display position inside the partition (1-based, unique).
	// It is a sort key only; edges never point at it.
	Order int `json:"order" yaml:"order"`

	IsRoot  bool     `json:"isRoot" yaml:"isRoot"`
	Text    string   `json:"text" yaml:"text"`
	Choices []Choice `json:"choices" yaml:"choices"`

	StageType  string `json:"stageType" yaml:"stageType"`
	StageRange string `json:"stageRange" yaml:"stageRange"`

	// Optional metadata, never read by traversal.
	Category           string `json:"category,omitempty" yaml:"category,omitempty"`
	EvaluatedCondition string `json:"evaluatedCondition,omitempty" yaml:"evaluatedCondition,omitempty"`

	AuthoredBy string    `json:"authoredBy,omitempty" yaml:"authoredBy,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// Partition returns the partition key the node belongs to.
func (n QuestionNode) Partition() Partition {
	return Partition{StageType: n.StageType, StageRange: n.StageRange}
}

// Clone returns a deep copy of the node.
func (n QuestionNode) Clone() QuestionNode {
	out := n
	if n.Choices != nil {
		out.Choices = make([]Choice, len(n.Choices))
		for i, c := range n.Choices {
			out.Choices[i] = c.Clone()
		}
	}
	return out
}

// NormalizeIDs trims the node ID and every LeadsTo in place, so edges
// resolve the same way graph validation compares them.
func NormalizeIDs(nodes []QuestionNode) {
	for i := range nodes {
		nodes[i].ID = strings.TrimSpace(nodes[i].ID)
		for j := range nodes[i].Choices {
			nodes[i].Choices[j].LeadsTo = strings.TrimSpace(nodes[i].Choices[j].LeadsTo)
		}
	}
}

// CheckDelete reports whether the node id can be removed from nodes.
// It returns ErrNodeNotFound when absent and ErrNodeReferenced while any
// choice leads to it.
func CheckDelete(nodes []QuestionNode, id string) error {
	found := false
	var from []string
	for _, n := range nodes {
		if n.ID == id {
			found = true
		}
		for _, c := range n.Choices {
			if strings.TrimSpace(c.LeadsTo) == id {
				from = append(from, n.ID)
				break
			}
		}
	}
	if !found {
		return ErrNodeNotFound
	}
	if len(from) > 0 {
		return fmt.Errorf("%w: %s is the target of %s", ErrNodeReferenced, id, strings.Join(from, ", "))
	}
	return nil
}

// CloneNodes deep-copies a node set.
func CloneNodes(nodes []QuestionNode) []QuestionNode {
	if nodes == nil {
		return nil
	}
	out := make([]QuestionNode, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// Choice is an answer option of a QuestionNode.
type Choice struct {
	Label string `json:"label" yaml:"label"`

	// LeadsTo holds the ID of the next node. Empty terminates the walk.
	LeadsTo string `json:"leadsTo,omitempty" yaml:"leadsTo,omitempty"`

	// Flags tags the choice with symptom or condition signals.
	// Stored documents may carry a single string or a (nested) list.
	Flags Flags `json:"flag,omitempty" yaml:"flag,omitempty"`

	Weight    *float64  `json:"weight,omitempty" yaml:"weight,omitempty"`
	RiskLevel RiskLevel `json:"riskLevel,omitempty" yaml:"riskLevel,omitempty"`
}

// Terminal reports whether selecting the choice ends the questionnaire.
func (c Choice) Terminal() bool {
	return strings.TrimSpace(c.LeadsTo) == ""
}

// WeightValue returns the weight or zero when unset.
func (c Choice) WeightValue() float64 {
	if c.Weight == nil {
		return 0
	}
	return *c.Weight
}

// Clone returns a deep copy of the choice.
func (c Choice) Clone() Choice {
	out := c
	if c.Flags != nil {
		out.Flags = append(Flags(nil), c.Flags...)
	}
	if c.Weight != nil {
		w := *c.Weight
		out.Weight = &w
	}
	return out
}

// Flags is a flat list of flag values.
// It decodes from a single string, a list, or nested lists.
type Flags []string

// UnmarshalJSON accepts "x", ["x","y"] and [["x"],"y"].
func (f *Flags) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid flag value: %w", err)
	}
	flat, err := flattenFlags(raw)
	if err != nil {
		return err
	}
	*f = flat
	return nil
}

// UnmarshalYAML implements the yaml unmarshaler callback interface.
func (f *Flags) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	flat, err := flattenFlags(raw)
	if err != nil {
		return err
	}
	*f = flat
	return nil
}

// FlattenFlags normalizes a decoded flag value (string, []string, []any or
// nested lists of those) into a flat list. Blank entries are dropped.
func FlattenFlags(raw any) (Flags, error) {
	return flattenFlags(raw)
}

func flattenFlags(raw any) (Flags, error) {
	var out Flags
	var walk func(v any) error
	walk = func(v any) error {
		switch t := v.(type) {
		case nil:
			return nil
		case string:
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, s)
			}
			return nil
		case Flags:
			for _, s := range t {
				_ = walk(s)
			}
			return nil
		case []string:
			for _, s := range t {
				_ = walk(s)
			}
			return nil
		case []any:
			for _, item := range t {
				if err := walk(item); err != nil {
					return err
				}
			}
			return nil
		default:
			return fmt.Errorf("flag must be a string or list of strings, got %T", v)
		}
	}
	if err := walk(raw); err != nil {
		return nil, err
	}
	return out, nil
}
