package graph

import (
	"fmt"
	"strings"

	"github.com/Veolinan/triage/pkg/domain"
)

// EndID is the shared sink every terminal choice points at.
const EndID = "END"

// GraphOverlay contains session state to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// GenerateMermaid produces a Mermaid flowchart from a partition's nodes.
// It applies semantic styling:
// - Root question: ((Circle))
// - Other questions: [/Parallelogram/]
// - End of questionnaire: (((Double circle)))
// Edges carry the choice label and its flags; danger choices use a thick
// arrow. Overlay styles (visited/current) are applied if provided.
func GenerateMermaid(nodes []domain.QuestionNode, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}

	hasEnd := false
	for _, node := range nodes {
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[/", "/]"
		if node.IsRoot {
			opener, closer = "((", "))"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, escapeLabel(node.Text), closer))

		for _, c := range node.Choices {
			target := EndID
			if !c.Terminal() {
				target = sanitizeMermaidID(strings.TrimSpace(c.LeadsTo))
			} else {
				hasEnd = true
			}

			label := c.Label
			if len(c.Flags) > 0 {
				label += " · " + strings.Join(c.Flags, ", ")
			}
			arrow := "--"
			tip := "-->"
			if c.RiskLevel == domain.RiskDanger {
				arrow, tip = "==", "==>"
			}
			if !c.Terminal() && !known[strings.TrimSpace(c.LeadsTo)] {
				// Dangling edges are drawn dotted so authors can spot them.
				arrow, tip = "-.", ".->"
			}
			sb.WriteString(fmt.Sprintf("    %s %s \"%s\" %s %s\n", safeID, arrow, escapeLabel(label), tip, target))
		}
	}

	if hasEnd {
		sb.WriteString(fmt.Sprintf("    %s(((\"End\")))\n", EndID))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}

		if overlay.CurrentNode != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode)))
		}
	}

	return sb.String()
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.ReplaceAll(s, "\n", " ")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	if s == EndID || s == "end" {
		// "end" is a Mermaid keyword and END is the sink.
		s = "n_" + s
	}
	return s
}
