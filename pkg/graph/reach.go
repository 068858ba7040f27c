package graph

import (
	"sort"
	"strings"

	"github.com/Veolinan/triage/pkg/domain"
)

// Unreachable returns the IDs of nodes that no choice path from rootID can
// reach, in the order they appear in nodes. Dangling edges are ignored here;
// Validate reports them.
func Unreachable(nodes []domain.QuestionNode, rootID string) []string {
	idx := Index(nodes)
	if _, ok := idx[rootID]; !ok {
		return nil
	}

	visited := make(map[string]bool, len(nodes))
	queue := []string{rootID}

	for len(queue) > 0 {
		currentID := queue[0]
		queue = queue[1:]

		if visited[currentID] {
			continue
		}
		visited[currentID] = true

		node, ok := idx[currentID]
		if !ok {
			continue
		}
		for _, c := range node.Choices {
			target := strings.TrimSpace(c.LeadsTo)
			if target == "" {
				continue
			}
			if !visited[target] {
				queue = append(queue, target)
			}
		}
	}

	var out []string
	for _, n := range nodes {
		if !visited[strings.TrimSpace(n.ID)] {
			out = append(out, n.ID)
		}
	}
	return out
}

// FindCycle returns a closed walk [a, ..., a] if any choice path revisits a
// node, or nil when the graph is acyclic. The search is iterative and visits
// nodes and choices in their given order, so the reported cycle is stable.
func FindCycle(nodes []domain.QuestionNode) []string {
	const (
		white = iota
		grey
		black
	)
	idx := Index(nodes)
	color := make(map[string]int, len(nodes))

	type frame struct {
		id   string
		next int
	}

	for _, n := range nodes {
		start := strings.TrimSpace(n.ID)
		if color[start] != white {
			continue
		}
		stack := []frame{{id: start}}
		color[start] = grey

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			node := idx[top.id]
			if top.next >= len(node.Choices) {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			c := node.Choices[top.next]
			top.next++

			target := strings.TrimSpace(c.LeadsTo)
			if target == "" {
				continue
			}
			if _, ok := idx[target]; !ok {
				continue
			}
			switch color[target] {
			case grey:
				cycle := []string{target}
				on := false
				for _, f := range stack {
					if f.id == target {
						on = true
						continue
					}
					if on {
						cycle = append(cycle, f.id)
					}
				}
				return append(cycle, target)
			case white:
				color[target] = grey
				stack = append(stack, frame{id: target})
			}
		}
	}
	return nil
}

// DuplicateOrders returns, for every order value used more than once, the
// indices of the nodes sharing it.
func DuplicateOrders(nodes []domain.QuestionNode) map[int][]int {
	seen := make(map[int][]int)
	for i, n := range nodes {
		seen[n.Order] = append(seen[n.Order], i)
	}
	out := make(map[int][]int)
	for order, idxs := range seen {
		if len(idxs) > 1 {
			sort.Ints(idxs)
			out[order] = idxs
		}
	}
	return out
}
