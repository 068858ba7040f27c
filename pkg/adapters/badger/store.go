// Package badger is an embedded, single-process store for the question bank,
// sessions and responses backed by BadgerDB.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Config holds configuration for the store.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory is true.
	Path string

	// InMemory disables disk persistence. Useful for tests.
	InMemory bool

	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration
}

// DefaultConfig returns production defaults for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
		GCInterval: 5 * time.Minute,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Store implements the node, session and response ports.
type Store struct {
	db     *badger.DB
	cancel context.CancelFunc
	done   chan struct{}
}

// Open opens (or creates) the database.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{db: db, cancel: cancel, done: make(chan struct{})}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		go s.runGC(ctx, cfg.GCInterval)
	} else {
		close(s.done)
	}
	return s, nil
}

func (s *Store) runGC(ctx context.Context, interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for s.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}

// Close stops GC and closes the database.
func (s *Store) Close() error {
	s.cancel()
	<-s.done
	return s.db.Close()
}

const sep = "\x00"

func nodePrefix(p domain.Partition) []byte {
	return []byte("node" + sep + p.StageType + sep + p.StageRange + sep)
}

func nodeKey(p domain.Partition, id string) []byte {
	return append(nodePrefix(p), id...)
}

func sessionKey(id string) []byte  { return []byte("session" + sep + id) }
func responseKey(id string) []byte { return []byte("response" + sep + id) }

func (s *Store) getJSON(key []byte, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

// scan calls fn with every value under prefix.
func (s *Store) scan(prefix []byte, fn func(key, val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 64})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			if err := item.Value(func(val []byte) error { return fn(key, val) }); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Question bank ---

// FetchNodes returns the partition's nodes sorted by order.
func (s *Store) FetchNodes(_ context.Context, partition domain.Partition) ([]domain.QuestionNode, error) {
	nodes := []domain.QuestionNode{}
	err := s.scan(nodePrefix(partition), func(_, val []byte) error {
		var n domain.QuestionNode
		if err := json.Unmarshal(val, &n); err != nil {
			return err
		}
		nodes = append(nodes, n)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read partition %s: %w", partition, err)
	}
	slices.SortStableFunc(nodes, func(a, b domain.QuestionNode) int { return a.Order - b.Order })
	return nodes, nil
}

// ReplacePartition rewrites the partition inside one read-write transaction.
func (s *Store) ReplacePartition(_ context.Context, partition domain.Partition, nodes []domain.QuestionNode) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: nodePrefix(partition)})
		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for _, n := range nodes {
			data, err := json.Marshal(n)
			if err != nil {
				return fmt.Errorf("marshal node %s: %w", n.ID, err)
			}
			if err := txn.Set(nodeKey(partition, n.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace partition %s: %w", partition, err)
	}
	return nil
}

// DeleteNode removes one node unless another choice leads to it. The check
// and the delete share one transaction.
func (s *Store) DeleteNode(_ context.Context, partition domain.Partition, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var nodes []domain.QuestionNode
		it := txn.NewIterator(badger.IteratorOptions{Prefix: nodePrefix(partition), PrefetchValues: true})
		for it.Rewind(); it.Valid(); it.Next() {
			var n domain.QuestionNode
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &n) }); err != nil {
				it.Close()
				return err
			}
			nodes = append(nodes, n)
		}
		it.Close()

		if err := domain.CheckDelete(nodes, id); err != nil {
			return err
		}
		return txn.Delete(nodeKey(partition, id))
	})
}

// ListPartitions walks the node keys and collects distinct partitions.
func (s *Store) ListPartitions(_ context.Context) ([]domain.Partition, error) {
	seen := make(map[domain.Partition]bool)
	var out []domain.Partition
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte("node" + sep)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			parts := strings.SplitN(string(it.Item().Key()), sep, 4)
			if len(parts) != 4 {
				continue
			}
			p := domain.Partition{StageType: parts[1], StageRange: parts[2]}
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

// --- Sessions ---

// Save writes the session.
func (s *Store) Save(_ context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(session.ID), data)
	})
}

// Load reads a session.
func (s *Store) Load(_ context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	if err := s.getJSON(sessionKey(sessionID), &session); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &session, nil
}

// Delete removes a session.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(sessionID))
	})
}

// List returns every session ID.
func (s *Store) List(_ context.Context) ([]string, error) {
	prefix := sessionKey("")
	ids := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return ids, err
}

// --- Responses ---

// InsertResponse stores a new record.
func (s *Store) InsertResponse(_ context.Context, record domain.ResponseRecord) (string, error) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal response: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(responseKey(record.ID), data)
	})
	if err != nil {
		return "", fmt.Errorf("failed to insert response: %w", err)
	}
	return record.ID, nil
}

// GetResponse reads one record.
func (s *Store) GetResponse(_ context.Context, id string) (domain.ResponseRecord, error) {
	var rec domain.ResponseRecord
	if err := s.getJSON(responseKey(id), &rec); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ResponseRecord{}, domain.ErrResponseNotFound
		}
		return domain.ResponseRecord{}, fmt.Errorf("failed to get response: %w", err)
	}
	return rec, nil
}

// ListResponses scans every record and filters in memory.
func (s *Store) ListResponses(_ context.Context, filter domain.ResponseFilter) ([]domain.ResponseRecord, error) {
	var all []domain.ResponseRecord
	err := s.scan(responseKey(""), func(_, val []byte) error {
		var rec domain.ResponseRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		if filter.Match(rec) {
			all = append(all, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	return domain.ApplyFilter(all, filter), nil
}

// UpdateResponse overwrites an existing record.
func (s *Store) UpdateResponse(_ context.Context, record domain.ResponseRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(responseKey(record.ID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrResponseNotFound
			}
			return err
		}
		return txn.Set(responseKey(record.ID), data)
	})
}
