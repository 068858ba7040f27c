package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/Veolinan/triage/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Each partition is a hash of node ID -> node JSON. A set indexes the
// partitions that hold nodes.

func (s *Store) partitionKey(p domain.Partition) string {
	return s.prefix + "partition:" + p.Key()
}

func (s *Store) partitionIndexKey() string {
	return s.prefix + "partition:index"
}

func partitionMember(p domain.Partition) string {
	data, _ := json.Marshal(p)
	return string(data)
}

// FetchNodes returns the partition's nodes sorted by Order.
func (s *Store) FetchNodes(ctx context.Context, partition domain.Partition) ([]domain.QuestionNode, error) {
	raw, err := s.client.HGetAll(ctx, s.partitionKey(partition)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read partition %s: %w", partition, err)
	}

	nodes := make([]domain.QuestionNode, 0, len(raw))
	for id, val := range raw {
		var n domain.QuestionNode
		if err := json.Unmarshal([]byte(val), &n); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node %s: %w", id, err)
		}
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b domain.QuestionNode) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return nodes, nil
}

// ReplacePartition swaps the partition hash inside MULTI/EXEC.
func (s *Store) ReplacePartition(ctx context.Context, partition domain.Partition, nodes []domain.QuestionNode) error {
	fields := make([]any, 0, len(nodes)*2)
	for _, n := range nodes {
		data, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("failed to marshal node %s: %w", n.ID, err)
		}
		fields = append(fields, n.ID, data)
	}

	key := s.partitionKey(partition)
	_, err := s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(fields) == 0 {
			pipe.SRem(ctx, s.partitionIndexKey(), partitionMember(partition))
			return nil
		}
		pipe.HSet(ctx, key, fields...)
		pipe.SAdd(ctx, s.partitionIndexKey(), partitionMember(partition))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace partition %s: %w", partition, err)
	}
	return nil
}

// DeleteNode removes one field of the partition hash unless another choice
// leads to it. The hash is watched so a concurrent save aborts the delete.
func (s *Store) DeleteNode(ctx context.Context, partition domain.Partition, id string) error {
	key := s.partitionKey(partition)
	err := s.client.Watch(ctx, func(tx *backend.Tx) error {
		raw, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		nodes := make([]domain.QuestionNode, 0, len(raw))
		for field, val := range raw {
			var n domain.QuestionNode
			if err := json.Unmarshal([]byte(val), &n); err != nil {
				return fmt.Errorf("failed to unmarshal node %s: %w", field, err)
			}
			nodes = append(nodes, n)
		}
		if err := domain.CheckDelete(nodes, id); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.HDel(ctx, key, id)
			if len(nodes) == 1 {
				pipe.SRem(ctx, s.partitionIndexKey(), partitionMember(partition))
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, domain.ErrNodeNotFound) || errors.Is(err, domain.ErrNodeReferenced) {
			return err
		}
		return fmt.Errorf("failed to delete node %s: %w", id, err)
	}
	return nil
}

// ListPartitions reads the partition index.
func (s *Store) ListPartitions(ctx context.Context) ([]domain.Partition, error) {
	members, err := s.client.SMembers(ctx, s.partitionIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	out := make([]domain.Partition, 0, len(members))
	for _, m := range members {
		var p domain.Partition
		if err := json.Unmarshal([]byte(m), &p); err != nil {
			return nil, fmt.Errorf("corrupt partition index entry %q: %w", m, err)
		}
		out = append(out, p)
	}
	return out, nil
}
