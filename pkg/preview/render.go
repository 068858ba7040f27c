package preview

import (
	"fmt"
	"slices"
	"strings"

	presentation "github.com/Veolinan/triage/internal/presentation/graph"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/graph"
)

// Overlay marks a session's progress on the flowchart.
type Overlay = presentation.GraphOverlay

// SessionOverlay builds the overlay of a session's walk.
func SessionOverlay(s *domain.Session) *Overlay {
	if s == nil {
		return nil
	}
	return &Overlay{VisitedNodes: slices.Clone(s.History), CurrentNode: s.CurrentNodeID}
}

// Mermaid renders the partition as a Mermaid flowchart. overlay may be nil.
func Mermaid(nodes []domain.QuestionNode, overlay *Overlay) string {
	return presentation.GenerateMermaid(nodes, overlay)
}

// Table renders the partition as a Markdown table in display order:
// order, root marker, question, and each choice with its target (or End)
// and flags.
func Table(nodes []domain.QuestionNode) string {
	sorted := domain.CloneNodes(nodes)
	slices.SortStableFunc(sorted, func(a, b domain.QuestionNode) int { return a.Order - b.Order })
	idx := graph.Index(sorted)

	var sb strings.Builder
	sb.WriteString("| Order | Root | Question | Choices |\n")
	sb.WriteString("|---:|:---:|---|---|\n")
	for _, n := range sorted {
		root := ""
		if n.IsRoot {
			root = "✓"
		}
		parts := make([]string, 0, len(n.Choices))
		for _, c := range n.Choices {
			target := "End"
			if !c.Terminal() {
				id := strings.TrimSpace(c.LeadsTo)
				if t, ok := idx[id]; ok {
					target = fmt.Sprintf("%d", t.Order)
				} else {
					target = id + " (missing)"
				}
			}
			part := fmt.Sprintf("%s → **%s**", c.Label, target)
			if len(c.Flags) > 0 {
				part += fmt.Sprintf(" (Flag: %s)", strings.Join(c.Flags, ", "))
			}
			if c.RiskLevel != "" {
				part += fmt.Sprintf(" [%s]", c.RiskLevel)
			}
			parts = append(parts, part)
		}
		fmt.Fprintf(&sb, "| %d | %s | %s | %s |\n", n.Order, root, cell(n.Text), cell(strings.Join(parts, "<br>")))
	}
	return sb.String()
}

// PathsMarkdown lists paths as numbered sections, the way reviewers audit
// which answers lead to which zone.
func PathsMarkdown(paths []Path) string {
	var sb strings.Builder
	for i, p := range paths {
		fmt.Fprintf(&sb, "### Path %d: %s\n\n", i+1, p.Assessment.Classification)
		for j, label := range p.Labels() {
			fmt.Fprintf(&sb, "%d. %s\n", j+1, label)
		}
		fmt.Fprintf(&sb, "\nSuggested condition: **%s**, total weight %g\n\n", p.Assessment.SuggestedCondition, p.Assessment.TotalWeight)
	}
	return sb.String()
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
