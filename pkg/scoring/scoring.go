// Package scoring turns the evidence collected along a questionnaire path into
// a ranked condition list and a risk classification.
package scoring

import (
	"math"
	"slices"

	"github.com/Veolinan/triage/pkg/domain"
)

// Rank computes the confidence list from every flag occurrence of a walk.
// Each distinct flag scores round(100 * count / total). Entries are sorted by
// score, highest first; equal scores keep first-seen order.
func Rank(occurrences []string) []domain.ConfidenceEntry {
	if len(occurrences) == 0 {
		return []domain.ConfidenceEntry{}
	}

	var order []string
	counts := make(map[string]int)
	for _, f := range occurrences {
		if _, seen := counts[f]; !seen {
			order = append(order, f)
		}
		counts[f]++
	}

	total := float64(len(occurrences))
	out := make([]domain.ConfidenceEntry, 0, len(order))
	for _, f := range order {
		out = append(out, domain.ConfidenceEntry{
			Condition: f,
			Score:     int(math.Round(100 * float64(counts[f]) / total)),
		})
	}

	slices.SortStableFunc(out, func(a, b domain.ConfidenceEntry) int {
		return b.Score - a.Score
	})
	return out
}

// Suggested returns the top-ranked condition, or domain.NoCondition.
func Suggested(ranked []domain.ConfidenceEntry) string {
	if len(ranked) == 0 {
		return domain.NoCondition
	}
	return ranked[0].Condition
}

// Classify derives the zone from the risk levels of a walk. Only presence
// matters: one danger answer outweighs any number of alert or low answers.
func Classify(levels []domain.RiskLevel) domain.Classification {
	switch {
	case slices.Contains(levels, domain.RiskDanger):
		return domain.ClassDangerZone
	case slices.Contains(levels, domain.RiskAlert):
		return domain.ClassAlertZone
	default:
		return domain.ClassLowRisk
	}
}

// Assess builds the full assessment from accumulated evidence.
func Assess(flags domain.FlagSet, totalWeight float64, levels []domain.RiskLevel) domain.Assessment {
	ranked := Rank(flags.Occurrences)
	unique := slices.Clone(flags.Unique)
	if unique == nil {
		unique = []string{}
	}
	return domain.Assessment{
		Flags:              unique,
		Occurrences:        slices.Clone(flags.Occurrences),
		Confidence:         ranked,
		SuggestedCondition: Suggested(ranked),
		TotalWeight:        totalWeight,
		RiskLevels:         slices.Clone(levels),
		Classification:     Classify(levels),
	}
}

// Evaluate scores a sequence of chosen answers, as if a respondent had picked
// them in order. Used by previews to project the outcome of a path.
func Evaluate(choices []domain.Choice) domain.Assessment {
	var (
		flags  domain.FlagSet
		total  float64
		levels []domain.RiskLevel
	)
	for _, c := range choices {
		flags = flags.Add(c.Flags...)
		total += c.WeightValue()
		if c.RiskLevel != "" {
			levels = append(levels, c.RiskLevel)
		}
	}
	return Assess(flags, total, levels)
}
