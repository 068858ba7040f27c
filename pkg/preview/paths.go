package preview

import (
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/scoring"
)

// Step is one question answered along a path. Label is empty when the
// question has no choices.
type Step struct {
	NodeID   string        `json:"nodeId"`
	Question string        `json:"question"`
	Label    string        `json:"label,omitempty"`
	Choice   domain.Choice `json:"-"`
}

// Path is one complete walk from the root to the end of the questionnaire,
// with the assessment a respondent taking it would receive.
type Path struct {
	Steps      []Step            `json:"steps"`
	Assessment domain.Assessment `json:"assessment"`
}

// Labels returns the alternating question/answer trail of the path.
func (p Path) Labels() []string {
	out := make([]string, 0, 2*len(p.Steps))
	for _, s := range p.Steps {
		out = append(out, s.Question)
		if s.Label != "" {
			out = append(out, s.Label)
		}
	}
	return out
}

// EnumeratePaths lists every root-to-end path in depth-first order, choices
// taken in their authored order. A path ends on a choice without a target
// (or with one that does not resolve) or on a question without choices.
func EnumeratePaths(nodes []domain.QuestionNode) ([]Path, error) {
	root, err := BuildTree(nodes)
	if err != nil {
		return nil, err
	}

	type walk struct {
		tn    *TreeNode
		trail []Step
		next  int
	}

	var paths []Path
	emit := func(trail []Step) {
		steps := append([]Step(nil), trail...)
		choices := make([]domain.Choice, 0, len(steps))
		for _, s := range steps {
			if s.Label != "" {
				choices = append(choices, s.Choice)
			}
		}
		paths = append(paths, Path{Steps: steps, Assessment: scoring.Evaluate(choices)})
	}

	if len(root.Choices) == 0 {
		emit([]Step{{NodeID: root.NodeID, Question: root.Question}})
		return paths, nil
	}

	stack := []walk{{tn: root}}
	for len(stack) > 0 {
		w := &stack[len(stack)-1]
		if w.next >= len(w.tn.Choices) {
			stack = stack[:len(stack)-1]
			continue
		}
		c := w.tn.Choices[w.next]
		w.next++

		trail := append(append([]Step(nil), w.trail...), Step{
			NodeID:   w.tn.NodeID,
			Question: w.tn.Question,
			Label:    c.Label,
			Choice:   c.choice,
		})
		switch {
		case c.Next == nil:
			emit(trail)
		case len(c.Next.Choices) == 0:
			emit(append(trail, Step{NodeID: c.Next.NodeID, Question: c.Next.Question}))
		default:
			stack = append(stack, walk{tn: c.Next, trail: trail})
		}
	}
	return paths, nil
}

// Outcomes counts paths per classification.
func Outcomes(paths []Path) map[domain.Classification]int {
	out := make(map[domain.Classification]int)
	for _, p := range paths {
		out[p.Assessment.Classification]++
	}
	return out
}
