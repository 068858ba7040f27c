// Package preview renders a partition's question graph for human review:
// a question/choice tree, the list of every root-to-end path with its
// projected assessment, a Mermaid flowchart and a Markdown table.
//
// Every walk uses an explicit stack. A choice that leads back to a question
// already on the current path stops the walk with domain.ErrCyclicGraph.
package preview

import (
	"fmt"
	"strings"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/graph"
)

// TreeNode is a question in the expanded tree. A question reachable by
// several paths appears once per path.
type TreeNode struct {
	NodeID   string       `json:"nodeId"`
	Question string       `json:"question"`
	Choices  []TreeChoice `json:"choices"`
}

// TreeChoice is an answer edge. Next is nil when the choice ends the
// questionnaire or its target is missing.
type TreeChoice struct {
	Label     string           `json:"label"`
	Flags     []string         `json:"flags,omitempty"`
	RiskLevel domain.RiskLevel `json:"riskLevel,omitempty"`
	Next      *TreeNode        `json:"next,omitempty"`

	choice domain.Choice
}

type frame struct {
	tn   *TreeNode
	node domain.QuestionNode
	next int
}

// BuildTree expands the graph from its root.
func BuildTree(nodes []domain.QuestionNode) (*TreeNode, error) {
	root, err := graph.ResolveRoot(nodes)
	if err != nil {
		return nil, err
	}
	idx := graph.Index(nodes)

	top := newTreeNode(*root)
	stack := []frame{{tn: top, node: *root}}
	onPath := map[string]bool{root.ID: true}

	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		if f.next >= len(f.node.Choices) {
			delete(onPath, f.node.ID)
			stack = stack[:len(stack)-1]
			continue
		}
		i := f.next
		f.next++

		c := f.node.Choices[i]
		if c.Terminal() {
			continue
		}
		target, ok := idx[strings.TrimSpace(c.LeadsTo)]
		if !ok {
			continue
		}
		if onPath[target.ID] {
			path := make([]string, len(stack))
			for i, fr := range stack {
				path[i] = fr.node.ID
			}
			return nil, cycleError(path, target.ID)
		}
		child := newTreeNode(target)
		f.tn.Choices[i].Next = child
		onPath[target.ID] = true
		stack = append(stack, frame{tn: child, node: target})
	}
	return top, nil
}

func newTreeNode(n domain.QuestionNode) *TreeNode {
	tn := &TreeNode{NodeID: n.ID, Question: n.Text, Choices: make([]TreeChoice, len(n.Choices))}
	for i, c := range n.Choices {
		tn.Choices[i] = TreeChoice{
			Label:     c.Label,
			Flags:     append([]string(nil), c.Flags...),
			RiskLevel: c.RiskLevel,
			choice:    c.Clone(),
		}
	}
	return tn
}

// cycleError reports the path from the first occurrence of target down to
// the end of path, closed on target.
func cycleError(path []string, target string) error {
	ids := path
	for i, id := range path {
		if id == target {
			ids = path[i:]
			break
		}
	}
	ids = append(append([]string(nil), ids...), target)
	return fmt.Errorf("%w: %s", domain.ErrCyclicGraph, strings.Join(ids, " -> "))
}
