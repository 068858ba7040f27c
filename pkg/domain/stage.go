package domain

import (
	"fmt"
	"slices"
)

// Well-known stage types.
const (
	StagePregnant   = "pregnant"
	StagePostpartum = "postpartum"
)

// Partition scopes a question graph: one stage type and one of its ranges.
type Partition struct {
	StageType  string `json:"stageType" yaml:"stageType" validate:"required"`
	StageRange string `json:"stageRange" yaml:"stageRange" validate:"required"`
}

// Key returns a printable identifier, e.g. "pregnant/1–3 months".
func (p Partition) Key() string {
	return p.StageType + "/" + p.StageRange
}

// IsZero reports whether neither half of the key is set.
func (p Partition) IsZero() bool {
	return p.StageType == "" && p.StageRange == ""
}

func (p Partition) String() string {
	return p.Key()
}

// Stage lists the ranges available for one stage type.
type Stage struct {
	Type   string   `json:"type" yaml:"type"`
	Ranges []string `json:"ranges" yaml:"ranges"`
}

// StageCatalog is the ordered set of stage types a respondent can pick from.
type StageCatalog []Stage

// DefaultStageCatalog returns the built-in catalog.
func DefaultStageCatalog() StageCatalog {
	return StageCatalog{
		{Type: StagePregnant, Ranges: []string{"1–3 months", "4–6 months", "7–9 months"}},
		{Type: StagePostpartum, Ranges: []string{"1–4 weeks", "4–8 weeks", "8–20 weeks", "6–9 months", "10–12 months"}},
	}
}

// Types returns the stage type names in catalog order.
func (c StageCatalog) Types() []string {
	out := make([]string, 0, len(c))
	for _, s := range c {
		out = append(out, s.Type)
	}
	return out
}

// Ranges returns the ranges of a stage type.
func (c StageCatalog) Ranges(stageType string) ([]string, bool) {
	for _, s := range c {
		if s.Type == stageType {
			return s.Ranges, true
		}
	}
	return nil, false
}

// HasType reports whether the stage type exists.
func (c StageCatalog) HasType(stageType string) bool {
	_, ok := c.Ranges(stageType)
	return ok
}

// Validate checks that the partition is part of the catalog.
func (c StageCatalog) Validate(p Partition) error {
	ranges, ok := c.Ranges(p.StageType)
	if !ok {
		return fmt.Errorf("%w: stage type %q", ErrUnknownStage, p.StageType)
	}
	if !slices.Contains(ranges, p.StageRange) {
		return fmt.Errorf("%w: range %q for %s", ErrUnknownStage, p.StageRange, p.StageType)
	}
	return nil
}

// Partitions enumerates every partition of the catalog.
func (c StageCatalog) Partitions() []Partition {
	var out []Partition
	for _, s := range c {
		for _, r := range s.Ranges {
			out = append(out, Partition{StageType: s.Type, StageRange: r})
		}
	}
	return out
}
