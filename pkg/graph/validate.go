package graph

import (
	"fmt"
	"strings"

	"github.com/Veolinan/triage/pkg/domain"
)

// Validate checks the structural rules of a node set:
// non-empty text, at least one choice, non-empty labels, unique IDs, every
// LeadsTo resolving inside the set and exactly one root.
// A node set that passes can be walked without meeting a dead reference.
func Validate(nodes []domain.QuestionNode) Result {
	res := Result{}

	ids := make(map[string]int, len(nodes))
	for i, n := range nodes {
		addr := NodeAddress(i)
		id := strings.TrimSpace(n.ID)
		if id == "" {
			res.Add(addr, IssueMissingID, "question has no id")
			continue
		}
		if first, dup := ids[id]; dup {
			res.Add(addr, IssueDuplicateID, "id %q already used by %s", id, NodeAddress(first))
			continue
		}
		ids[id] = i
	}

	roots := 0
	for i, n := range nodes {
		addr := NodeAddress(i)
		if strings.TrimSpace(n.Text) == "" {
			res.Add(addr, IssueEmptyText, "question text is required")
		}
		if len(n.Choices) == 0 {
			res.Add(addr, IssueNoChoices, "question needs at least one choice")
		}
		if n.IsRoot {
			roots++
			if roots > 1 {
				res.Add(addr, IssueMultipleRoots, "only one question may be the root")
			}
		}

		for j, c := range n.Choices {
			caddr := ChoiceAddress(i, j)
			if strings.TrimSpace(c.Label) == "" {
				res.Add(caddr, IssueEmptyLabel, "choice label is required")
			}
			if !c.RiskLevel.Valid() {
				res.Add(caddr, IssueInvalidRiskLevel, "risk level %q is not one of low, alert, danger", c.RiskLevel)
			}
			if c.Terminal() {
				continue
			}
			if _, ok := ids[strings.TrimSpace(c.LeadsTo)]; !ok {
				res.Add(caddr, IssueDanglingEdge, "leadsTo %q does not match any question", c.LeadsTo)
			}
		}
	}

	if len(nodes) > 0 && roots == 0 {
		res.Add(GraphAddress, IssueNoRoot, "no question is marked as root")
	}
	if len(nodes) == 0 {
		res.Add(GraphAddress, IssueNoRoot, "the questionnaire has no questions")
	}

	return res
}

// ResolveRoot returns the first node flagged as root.
// With zero roots it returns (nil, error). With several roots it returns the
// first one together with an error so the caller can surface the ambiguity.
func ResolveRoot(nodes []domain.QuestionNode) (*domain.QuestionNode, error) {
	var root *domain.QuestionNode
	count := 0
	for i := range nodes {
		if !nodes[i].IsRoot {
			continue
		}
		count++
		if root == nil {
			n := nodes[i].Clone()
			root = &n
		}
	}

	switch {
	case count == 0:
		return nil, fmt.Errorf("%w: no root question", domain.ErrMalformedGraph)
	case count > 1:
		return root, fmt.Errorf("%w: %d root questions", domain.ErrMalformedGraph, count)
	}
	return root, nil
}

// Index maps node IDs to nodes. On duplicate IDs the first node wins.
func Index(nodes []domain.QuestionNode) map[string]domain.QuestionNode {
	idx := make(map[string]domain.QuestionNode, len(nodes))
	for _, n := range nodes {
		id := strings.TrimSpace(n.ID)
		if _, ok := idx[id]; !ok {
			idx[id] = n
		}
	}
	return idx
}

// IncomingEdges lists the addresses of every choice pointing at targetID.
func IncomingEdges(nodes []domain.QuestionNode, targetID string) []Address {
	var out []Address
	for i, n := range nodes {
		for j, c := range n.Choices {
			if !c.Terminal() && strings.TrimSpace(c.LeadsTo) == targetID {
				out = append(out, ChoiceAddress(i, j))
			}
		}
	}
	return out
}
