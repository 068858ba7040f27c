package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

func (s *Store) responseKey(id string) string {
	return s.prefix + "response:" + id
}

func (s *Store) responseIndexKey() string {
	return s.prefix + "response:index"
}

func (s *Store) patientIndexKey(patientID string) string {
	return s.prefix + "response:patient:" + patientID
}

// InsertResponse stores the record and indexes it by submission time and patient.
func (s *Store) InsertResponse(ctx context.Context, record domain.ResponseRecord) (string, error) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal response: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Set(ctx, s.responseKey(record.ID), data, 0)
		pipe.ZAdd(ctx, s.responseIndexKey(), backend.Z{
			Score:  float64(record.SubmittedAt.UnixMilli()),
			Member: record.ID,
		})
		if record.PatientID != "" {
			pipe.SAdd(ctx, s.patientIndexKey(record.PatientID), record.ID)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to insert response: %w", err)
	}
	return record.ID, nil
}

// GetResponse reads one record.
func (s *Store) GetResponse(ctx context.Context, id string) (domain.ResponseRecord, error) {
	val, err := s.client.Get(ctx, s.responseKey(id)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.ResponseRecord{}, domain.ErrResponseNotFound
		}
		return domain.ResponseRecord{}, fmt.Errorf("failed to get response: %w", err)
	}

	var rec domain.ResponseRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return domain.ResponseRecord{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return rec, nil
}

// ListResponses narrows by patient through the patient index when possible,
// then filters the decoded records.
func (s *Store) ListResponses(ctx context.Context, filter domain.ResponseFilter) ([]domain.ResponseRecord, error) {
	var (
		ids []string
		err error
	)
	if filter.PatientID != "" {
		ids, err = s.client.SMembers(ctx, s.patientIndexKey(filter.PatientID)).Result()
	} else {
		ids, err = s.client.ZRevRange(ctx, s.responseIndexKey(), 0, -1).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read response index: %w", err)
	}
	if len(ids) == 0 {
		return []domain.ResponseRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.responseKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read responses: %w", err)
	}

	all := make([]domain.ResponseRecord, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue // index entry without a record
		}
		var rec domain.ResponseRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response %s: %w", ids[i], err)
		}
		all = append(all, rec)
	}
	return domain.ApplyFilter(all, filter), nil
}

// UpdateResponse overwrites an existing record (SET XX).
func (s *Store) UpdateResponse(ctx context.Context, record domain.ResponseRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	ok, err := s.client.SetXX(ctx, s.responseKey(record.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to update response: %w", err)
	}
	if !ok {
		return domain.ErrResponseNotFound
	}
	return nil
}
