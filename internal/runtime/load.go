package runtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/graph"
)

// Load fetches the selected partition and positions the session on its
// root. It is valid from loading and, to retry a failed fetch, from error.
//
// Concurrent loads of the same partition share one fetch. On fetch failure
// the returned session is in the error phase with the partition selection
// kept, and the error wraps domain.ErrLoadFailure. A graph that fails
// validation yields the error phase and an error wrapping
// domain.ErrMalformedGraph.
func (e *Engine) Load(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	if s.Phase != domain.PhaseLoading && s.Phase != domain.PhaseError {
		return s, &TransitionError{Op: "load", From: s.Phase}
	}
	if s.Partition.StageType == "" || s.Partition.StageRange == "" {
		return s, &TransitionError{Op: "load", From: s.Phase}
	}

	start := time.Now()
	nodes, err := e.fetch(ctx, s.Partition)
	elapsed := time.Since(start)

	if e.hooks.OnPartitionLoad != nil {
		e.hooks.OnPartitionLoad(ctx, &domain.LoadEvent{
			EventBase: e.event(domain.EventPartitionLoad, s.ID),
			Partition: s.Partition,
			Nodes:     len(nodes),
			Duration:  elapsed,
			Err:       err,
		})
	}

	if err != nil {
		err = fmt.Errorf("%w: %s: %v", domain.ErrLoadFailure, s.Partition, err)
		e.logger.WarnContext(ctx, "partition load failed", "session_id", s.ID, "partition", s.Partition.Key(), "err", err)
		return e.fail(s, err), err
	}

	if res := graph.Validate(nodes); !res.OK() {
		err := res.Err()
		e.logger.ErrorContext(ctx, "partition graph is malformed",
			"session_id", s.ID, "partition", s.Partition.Key(), "issues", res.Count())
		return e.fail(s, err), err
	}
	root, err := graph.ResolveRoot(nodes)
	if err != nil {
		return e.fail(s, err), err
	}

	next := s.Snapshot()
	next.Nodes = nodes
	next.Phase = domain.PhaseAnswering
	next.CurrentNodeID = root.ID
	next.History = []string{root.ID}
	next.LastError = ""
	next.UpdatedAt = e.now()

	e.logger.DebugContext(ctx, "partition loaded",
		"session_id", s.ID, "partition", s.Partition.Key(), "nodes", len(nodes), "duration", elapsed)
	e.enter(ctx, next)
	return next, nil
}

// fetch de-duplicates concurrent reads of the same partition. Each caller
// receives its own copy of the nodes, sorted by Order with IDs trimmed.
// The shared read is detached from the caller that started it; a caller
// whose ctx ends stops waiting without failing the others.
func (e *Engine) fetch(ctx context.Context, p domain.Partition) ([]domain.QuestionNode, error) {
	flight := context.WithoutCancel(ctx)
	ch := e.loads.DoChan(p.Key(), func() (any, error) {
		nodes, err := e.nodes.FetchNodes(flight, p)
		if err != nil {
			return nil, err
		}
		domain.NormalizeIDs(nodes)
		slices.SortStableFunc(nodes, func(a, b domain.QuestionNode) int { return a.Order - b.Order })
		return nodes, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return domain.CloneNodes(res.Val.([]domain.QuestionNode)), nil
	}
}

// ResolveChoice maps free-text input to a choice index. It accepts a
// 1-based number or a label (case-insensitive, surrounding space ignored).
func ResolveChoice(node domain.QuestionNode, input string) (int, error) {
	in := strings.TrimSpace(input)
	if in == "" {
		return -1, fmt.Errorf("%w: empty input", domain.ErrInvalidChoice)
	}
	if n, err := strconv.Atoi(in); err == nil {
		if n >= 1 && n <= len(node.Choices) {
			return n - 1, nil
		}
	}
	for i, c := range node.Choices {
		if strings.EqualFold(strings.TrimSpace(c.Label), in) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", domain.ErrInvalidChoice, input)
}

// IsRetryable reports whether the session can be reloaded after err.
func IsRetryable(err error) bool {
	return errors.Is(err, domain.ErrLoadFailure)
}
