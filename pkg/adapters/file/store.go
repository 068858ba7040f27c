package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/google/uuid"
)

// Store keeps the question bank, responses and sessions on the local filesystem:
//
//	<base>/partitions/*.yaml   one YAML document per partition
//	<base>/responses/<id>.json
//	<base>/sessions/<id>.json
//
// Every write goes through a temp file and an atomic rename.
type Store struct {
	BasePath string
	mu       sync.RWMutex
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".triage".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = ".triage"
	}
	return &Store{BasePath: basePath}
}

func (s *Store) sessionsDir() string  { return filepath.Join(s.BasePath, "sessions") }
func (s *Store) responsesDir() string { return filepath.Join(s.BasePath, "responses") }

func validID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid id %q", id)
	}
	return nil
}

// Save persists the session as JSON.
func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	if err := validID(session.ID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return writeAtomic(s.sessionsDir(), session.ID+".json", data)
}

// Load retrieves a session from its JSON file.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	if err := validID(sessionID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.sessionsDir(), sessionID+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Delete removes the session file.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := validID(sessionID); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.sessionsDir(), sessionID+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// List returns all stored session IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return listJSON(s.sessionsDir())
}

func listJSON(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// InsertResponse writes a new response file.
func (s *Store) InsertResponse(ctx context.Context, record domain.ResponseRecord) (string, error) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if err := validID(record.ID); err != nil {
		return "", err
	}
	if err := s.writeResponse(record); err != nil {
		return "", err
	}
	return record.ID, nil
}

func (s *Store) writeResponse(record domain.ResponseRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	return writeAtomic(s.responsesDir(), record.ID+".json", data)
}

// GetResponse reads a response file.
func (s *Store) GetResponse(ctx context.Context, id string) (domain.ResponseRecord, error) {
	if err := validID(id); err != nil {
		return domain.ResponseRecord{}, err
	}

	data, err := os.ReadFile(filepath.Join(s.responsesDir(), id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ResponseRecord{}, domain.ErrResponseNotFound
		}
		return domain.ResponseRecord{}, fmt.Errorf("failed to read response file: %w", err)
	}

	var rec domain.ResponseRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.ResponseRecord{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return rec, nil
}

// ListResponses reads every response file and filters in memory.
func (s *Store) ListResponses(ctx context.Context, filter domain.ResponseFilter) ([]domain.ResponseRecord, error) {
	ids, err := listJSON(s.responsesDir())
	if err != nil {
		return nil, err
	}

	all := make([]domain.ResponseRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetResponse(ctx, id)
		if err != nil {
			return nil, err
		}
		all = append(all, rec)
	}
	return domain.ApplyFilter(all, filter), nil
}

// UpdateResponse overwrites an existing response file.
func (s *Store) UpdateResponse(ctx context.Context, record domain.ResponseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.GetResponse(ctx, record.ID); err != nil {
		return err
	}
	return s.writeResponse(record)
}
