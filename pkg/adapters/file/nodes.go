package file

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"github.com/Veolinan/triage/pkg/domain"
	"gopkg.in/yaml.v3"
)

// partitionDoc is the on-disk shape of one partition.
type partitionDoc struct {
	StageType  string                `yaml:"stageType"`
	StageRange string                `yaml:"stageRange"`
	Nodes      []domain.QuestionNode `yaml:"nodes"`
}

func (s *Store) partitionsDir() string {
	return filepath.Join(s.BasePath, "partitions")
}

// partitionFile derives a filesystem-safe, collision-free name.
func partitionFile(p domain.Partition) string {
	slug := func(v string) string {
		return strings.Map(func(r rune) rune {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-') {
				return r
			}
			return '_'
		}, v)
	}
	sum := sha1.Sum([]byte(p.Key()))
	return fmt.Sprintf("%s__%s-%s.yaml", slug(p.StageType), slug(p.StageRange), hex.EncodeToString(sum[:4]))
}

func (s *Store) readPartition(p domain.Partition) (*partitionDoc, error) {
	data, err := os.ReadFile(filepath.Join(s.partitionsDir(), partitionFile(p)))
	if err != nil {
		if os.IsNotExist(err) {
			return &partitionDoc{StageType: p.StageType, StageRange: p.StageRange}, nil
		}
		return nil, fmt.Errorf("failed to read partition file: %w", err)
	}

	var doc partitionDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse partition %s: %w", p, err)
	}
	return &doc, nil
}

func (s *Store) writePartition(p domain.Partition, nodes []domain.QuestionNode) error {
	name := partitionFile(p)
	if len(nodes) == 0 {
		err := os.Remove(filepath.Join(s.partitionsDir(), name))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete partition file: %w", err)
		}
		return nil
	}

	data, err := yaml.Marshal(partitionDoc{StageType: p.StageType, StageRange: p.StageRange, Nodes: nodes})
	if err != nil {
		return fmt.Errorf("failed to marshal partition: %w", err)
	}
	return writeAtomic(s.partitionsDir(), name, data)
}

// FetchNodes reads the partition document.
func (s *Store) FetchNodes(ctx context.Context, partition domain.Partition) ([]domain.QuestionNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.readPartition(partition)
	if err != nil {
		return nil, err
	}
	if doc.Nodes == nil {
		return []domain.QuestionNode{}, nil
	}
	return doc.Nodes, nil
}

// ReplacePartition rewrites the partition document in one atomic rename.
func (s *Store) ReplacePartition(ctx context.Context, partition domain.Partition, nodes []domain.QuestionNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writePartition(partition, nodes)
}

// DeleteNode removes one unreferenced node and rewrites the partition.
func (s *Store) DeleteNode(ctx context.Context, partition domain.Partition, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readPartition(partition)
	if err != nil {
		return err
	}
	if err := domain.CheckDelete(doc.Nodes, id); err != nil {
		return err
	}
	rest := slices.DeleteFunc(doc.Nodes, func(n domain.QuestionNode) bool { return n.ID == id })
	return s.writePartition(partition, rest)
}

// ListPartitions scans the partitions directory.
func (s *Store) ListPartitions(ctx context.Context) ([]domain.Partition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.partitionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.Partition{}, nil
		}
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}

	var out []domain.Partition
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" || strings.HasPrefix(entry.Name(), "tmp-") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.partitionsDir(), entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		var doc partitionDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}
		out = append(out, domain.Partition{StageType: doc.StageType, StageRange: doc.StageRange})
	}
	return out, nil
}
