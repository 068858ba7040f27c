// Package postgres stores the question bank, sessions and submitted
// responses in PostgreSQL. Rows carry the full document as JSONB next to the
// columns used for lookups.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements the node, session and response ports on a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

type Option func(*Store)

// WithLogger sets the logger used for migration output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return New(pool, opts...), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Question bank ---

// FetchNodes returns the partition's nodes sorted by order.
func (s *Store) FetchNodes(ctx context.Context, partition domain.Partition) ([]domain.QuestionNode, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT body FROM question_nodes
		WHERE stage_type = $1 AND stage_range = $2
		ORDER BY sort_order, id`,
		partition.StageType, partition.StageRange)
	if err != nil {
		return nil, fmt.Errorf("failed to query partition %s: %w", partition, err)
	}
	defer rows.Close()

	nodes := []domain.QuestionNode{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		var n domain.QuestionNode
		if err := json.Unmarshal(body, &n); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// ReplacePartition deletes and re-inserts the partition in one transaction.
func (s *Store) ReplacePartition(ctx context.Context, partition domain.Partition, nodes []domain.QuestionNode) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM question_nodes WHERE stage_type = $1 AND stage_range = $2`,
		partition.StageType, partition.StageRange); err != nil {
		return fmt.Errorf("failed to clear partition %s: %w", partition, err)
	}

	batch := &pgx.Batch{}
	for _, n := range nodes {
		body, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("failed to marshal node %s: %w", n.ID, err)
		}
		batch.Queue(`
			INSERT INTO question_nodes (stage_type, stage_range, id, sort_order, body, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW())`,
			partition.StageType, partition.StageRange, n.ID, n.Order, body)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert nodes of %s: %w", partition, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit partition %s: %w", partition, err)
	}
	return nil
}

// DeleteNode removes one row unless another choice of the partition leads to
// it. The partition rows stay locked until commit.
func (s *Store) DeleteNode(ctx context.Context, partition domain.Partition, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT body FROM question_nodes
		WHERE stage_type = $1 AND stage_range = $2
		FOR UPDATE`,
		partition.StageType, partition.StageRange)
	if err != nil {
		return fmt.Errorf("failed to lock partition %s: %w", partition, err)
	}
	var nodes []domain.QuestionNode
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan node: %w", err)
		}
		var n domain.QuestionNode
		if err := json.Unmarshal(body, &n); err != nil {
			rows.Close()
			return fmt.Errorf("failed to unmarshal node: %w", err)
		}
		nodes = append(nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read partition %s: %w", partition, err)
	}

	if err := domain.CheckDelete(nodes, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM question_nodes WHERE stage_type = $1 AND stage_range = $2 AND id = $3`,
		partition.StageType, partition.StageRange, id); err != nil {
		return fmt.Errorf("failed to delete node %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit delete of %s: %w", id, err)
	}
	return nil
}

// ListPartitions returns the distinct partitions holding nodes.
func (s *Store) ListPartitions(ctx context.Context) ([]domain.Partition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT stage_type, stage_range FROM question_nodes ORDER BY stage_type, stage_range`)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	defer rows.Close()

	var out []domain.Partition
	for rows.Next() {
		var p domain.Partition
		if err := rows.Scan(&p.StageType, &p.StageRange); err != nil {
			return nil, fmt.Errorf("failed to scan partition: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Sessions ---

// Save upserts the session.
func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	body, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, body, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`,
		session.ID, body)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Load reads a session.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM sessions WHERE id = $1`, sessionID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// List returns session IDs, most recently updated first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Responses ---

// InsertResponse stores a new record.
func (s *Store) InsertResponse(ctx context.Context, record domain.ResponseRecord) (string, error) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	body, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal response: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO responses (id, patient_id, classification, status, submitted_at, body)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID, record.PatientID, string(record.Classification), string(record.Status), record.SubmittedAt, body)
	if err != nil {
		return "", fmt.Errorf("failed to insert response: %w", err)
	}
	return record.ID, nil
}

// GetResponse reads one record.
func (s *Store) GetResponse(ctx context.Context, id string) (domain.ResponseRecord, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM responses WHERE id = $1`, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ResponseRecord{}, domain.ErrResponseNotFound
	}
	if err != nil {
		return domain.ResponseRecord{}, fmt.Errorf("failed to get response: %w", err)
	}
	var rec domain.ResponseRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return domain.ResponseRecord{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return rec, nil
}

// ListResponses pushes the indexed filter fields into SQL and applies the
// rest in memory.
func (s *Store) ListResponses(ctx context.Context, filter domain.ResponseFilter) ([]domain.ResponseRecord, error) {
	var (
		where []string
		args  []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.PatientID != "" {
		add("patient_id", filter.PatientID)
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	if filter.Classification != "" {
		add("classification", string(filter.Classification))
	}

	query := `SELECT body FROM responses`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY submitted_at DESC, id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	defer rows.Close()

	var all []domain.ResponseRecord
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		var rec domain.ResponseRecord
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		all = append(all, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domain.ApplyFilter(all, filter), nil
}

// UpdateResponse overwrites an existing record.
func (s *Store) UpdateResponse(ctx context.Context, record domain.ResponseRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE responses SET patient_id = $2, classification = $3, status = $4, body = $5
		WHERE id = $1`,
		record.ID, record.PatientID, string(record.Classification), string(record.Status), body)
	if err != nil {
		return fmt.Errorf("failed to update response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrResponseNotFound
	}
	return nil
}
