// Package loam reads a question bank from a directory of Markdown, JSON or
// YAML documents through the Loam library. One document holds one question.
package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/aretw0/loam"
	"github.com/mitchellh/mapstructure"
)

// Loader adapts a Loam repository to ports.NodeReader. It is read-only.
type Loader struct {
	Repo *loam.TypedRepository[NodeMetadata]
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[NodeMetadata]) *Loader {
	return &Loader{
		Repo: repo,
	}
}

// Open initializes a strict, read-only Loam repository at path.
func Open(path string) (*Loader, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[NodeMetadata](repo)), nil
}

// FetchNodes lists the repository and keeps the documents of partition.
func (l *Loader) FetchNodes(ctx context.Context, partition domain.Partition) ([]domain.QuestionNode, error) {
	all, err := l.allNodes(ctx)
	if err != nil {
		return nil, err
	}
	nodes := []domain.QuestionNode{}
	for _, n := range all {
		if n.Partition() == partition {
			nodes = append(nodes, n)
		}
	}
	slices.SortStableFunc(nodes, func(a, b domain.QuestionNode) int { return a.Order - b.Order })
	return nodes, nil
}

// ListPartitions returns the distinct partitions found in the repository.
func (l *Loader) ListPartitions(ctx context.Context) ([]domain.Partition, error) {
	all, err := l.allNodes(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[domain.Partition]bool)
	var out []domain.Partition
	for _, n := range all {
		p := n.Partition()
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}

func (l *Loader) allNodes(ctx context.Context) ([]domain.QuestionNode, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	nodes := make([]domain.QuestionNode, 0, len(docs))
	for _, listed := range docs {
		// List serves metadata from the cache; the body needs a Get.
		doc, err := l.Repo.Get(ctx, listed.ID)
		if err != nil {
			return nil, fmt.Errorf("loam get failed for %s: %w", listed.ID, err)
		}
		n, err := toNode(listed.ID, doc.Data, doc.Content)
		if err != nil {
			return nil, err
		}
		// IDs are unique per partition; the same ID may live in several.
		key := n.Partition().Key() + "#" + n.ID
		if existingPath, ok := seen[key]; ok {
			return nil, fmt.Errorf("collision detected: ID '%s' is defined in both '%s' and '%s'", n.ID, existingPath, doc.ID)
		}
		seen[key] = doc.ID
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func toNode(docID string, meta NodeMetadata, content string) (domain.QuestionNode, error) {
	rawID := meta.ID
	if rawID == "" {
		rawID = docID
	}
	n := domain.QuestionNode{
		ID:                 trimExtension(rawID),
		IsRoot:             meta.Root,
		Text:               strings.TrimSpace(meta.Text),
		StageType:          meta.StageType,
		StageRange:         meta.StageRange,
		Category:           meta.Category,
		EvaluatedCondition: meta.EvaluatedCondition,
	}
	if n.Text == "" {
		n.Text = strings.TrimSpace(content)
	}
	if meta.Order != nil {
		if err := mapstructure.WeakDecode(meta.Order, &n.Order); err != nil {
			return n, fmt.Errorf("%s: invalid order: %w", docID, err)
		}
	}

	for i, raw := range meta.Choices {
		c, err := decodeChoice(raw)
		if err != nil {
			return n, fmt.Errorf("%s: choice %d: %w", docID, i, err)
		}
		n.Choices = append(n.Choices, c)
	}
	return n, nil
}

func decodeChoice(raw any) (domain.Choice, error) {
	if label, ok := raw.(string); ok {
		return domain.Choice{Label: label}, nil
	}

	var cm ChoiceMetadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &cm,
	})
	if err != nil {
		return domain.Choice{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return domain.Choice{}, err
	}

	c := domain.Choice{
		Label:     firstNonEmpty(cm.Label, cm.Text),
		LeadsTo:   trimExtension(firstNonEmpty(cm.LeadsTo, cm.To)),
		Weight:    cm.Weight,
		RiskLevel: domain.RiskLevel(strings.ToLower(strings.TrimSpace(cm.RiskLevel))),
	}
	for _, src := range []any{cm.Flag, cm.Flags} {
		flags, err := domain.FlattenFlags(src)
		if err != nil {
			return domain.Choice{}, err
		}
		c.Flags = append(c.Flags, flags...)
	}
	return c, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func trimExtension(id string) string {
	if id == "" {
		return ""
	}
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

// Watch implements ports.Watchable.
func (l *Loader) Watch(ctx context.Context) (<-chan string, error) {
	events, err := l.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				select {
				case ch <- evt.ID:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
