package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Veolinan/triage/internal/logging"
	"github.com/Veolinan/triage/internal/metrics"
	"github.com/Veolinan/triage/internal/runtime"
	"github.com/Veolinan/triage/pkg/adapters/loam"
	"github.com/Veolinan/triage/pkg/adapters/memory"
	"github.com/Veolinan/triage/pkg/authoring"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/observability"
	"github.com/Veolinan/triage/pkg/ports"
	"github.com/Veolinan/triage/pkg/preview"
	"github.com/Veolinan/triage/pkg/session"
)

// ErrReadOnlyBank is returned when saving a draft to a bank that cannot be written.
var ErrReadOnlyBank = errors.New("question bank is read-only")

// Engine is the high-level entry point for the triage library.
// It wraps the traversal runtime with session persistence, the response
// store and the authoring tools.
type Engine struct {
	runtime   *runtime.Engine
	nodes     ports.NodeReader
	responses ports.ResponseStore
	sessions  *session.Manager
	identity  ports.IdentityProvider
	metrics   *metrics.Metrics
	catalog   domain.StageCatalog
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	now       func() time.Time

	sessionStore ports.SessionStore
	sessionOpts  []session.Option

	// Name labels the question bank (the directory name for file-backed banks).
	Name string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithNodeStore injects the question bank, bypassing the default Loam
// initialization. A store that also implements ports.NodeWriter enables
// SaveDraft.
func WithNodeStore(nodes ports.NodeReader) Option {
	return func(e *Engine) {
		e.nodes = nodes
	}
}

// WithResponseStore sets where submitted responses are persisted.
// The default is an in-memory store.
func WithResponseStore(responses ports.ResponseStore) Option {
	return func(e *Engine) {
		e.responses = responses
	}
}

// WithSessionStore sets where sessions are kept between calls.
// The default is an in-memory store.
func WithSessionStore(store ports.SessionStore) Option {
	return func(e *Engine) {
		e.sessionStore = store
	}
}

// WithLocker serializes session access across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithLocker(locker))
	}
}

// WithIdentity sets how the acting operator is resolved for saves and reviews.
func WithIdentity(identity ports.IdentityProvider) Option {
	return func(e *Engine) {
		e.identity = identity
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = observability.Compose(e.hooks, hooks)
	}
}

// WithMetrics records engine activity into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithCatalog replaces the default stage catalog.
func WithCatalog(catalog domain.StageCatalog) Option {
	return func(e *Engine) {
		e.catalog = catalog
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New initializes a triage Engine.
// By default it reads the question bank from a read-only Loam repository at
// bankPath. If WithNodeStore is provided, bankPath is only used as a label.
func New(bankPath string, opts ...Option) (*Engine, error) {
	eng := &Engine{
		catalog: domain.DefaultStageCatalog(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.nodes == nil {
		if bankPath == "" {
			return nil, fmt.Errorf("bankPath is required when no node store is provided")
		}
		loader, err := loam.Open(bankPath)
		if err != nil {
			return nil, err
		}
		eng.nodes = loader
	}
	if bankPath != "" {
		eng.Name = filepath.Base(bankPath)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("bank", eng.Name)
	}
	if eng.responses == nil {
		eng.responses = memory.NewResponseStore()
	}
	if eng.sessionStore == nil {
		eng.sessionStore = memory.NewStore()
	}
	if eng.identity == nil {
		eng.identity = anonymous{}
	}

	hooks := eng.hooks
	if eng.metrics != nil {
		hooks = observability.Compose(hooks, eng.metrics.Hooks())
	}

	eng.sessions = session.NewManager(eng.sessionStore,
		append([]session.Option{session.WithLogger(eng.logger)}, eng.sessionOpts...)...)
	eng.runtime = runtime.NewEngine(eng.nodes, eng.responses,
		runtime.WithLogger(eng.logger),
		runtime.WithLifecycleHooks(hooks),
		runtime.WithCatalog(eng.catalog),
		runtime.WithClock(eng.now),
	)
	return eng, nil
}

type anonymous struct{}

func (anonymous) CurrentOperatorID(context.Context) (string, error) { return "", nil }

// Catalog returns the stage types and ranges respondents can pick from.
func (e *Engine) Catalog() domain.StageCatalog {
	return e.catalog
}

// Nodes returns the question bank.
func (e *Engine) Nodes() ports.NodeReader {
	return e.nodes
}

// Responses returns the response store.
func (e *Engine) Responses() ports.ResponseStore {
	return e.responses
}

// Sessions returns the session manager.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Start opens and persists a new session. An empty sessionID gets a UUID.
func (e *Engine) Start(ctx context.Context, sessionID, patientID, patientName string) (*domain.Session, error) {
	s := e.runtime.Start(ctx, sessionID, patientID, patientName)
	if err := e.sessions.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Session returns the stored session.
func (e *Engine) Session(ctx context.Context, sessionID string) (*domain.Session, error) {
	return e.sessions.Load(ctx, sessionID)
}

// SelectStage picks the stage type of a session.
func (e *Engine) SelectStage(ctx context.Context, sessionID, stageType string) (*domain.Session, error) {
	return e.sessions.Update(ctx, sessionID, func(s *domain.Session) (*domain.Session, error) {
		return e.runtime.SelectStage(ctx, s, stageType)
	})
}

// SelectRange picks the stage range and leaves the session ready to load.
func (e *Engine) SelectRange(ctx context.Context, sessionID, stageRange string) (*domain.Session, error) {
	return e.sessions.Update(ctx, sessionID, func(s *domain.Session) (*domain.Session, error) {
		return e.runtime.SelectRange(ctx, s, stageRange)
	})
}

// Load fetches the selected partition without holding the session lock.
// If the respondent re-selected the stage while the fetch was running, the
// result is discarded and domain.ErrStaleLoad is returned with the current
// session.
func (e *Engine) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	return e.sessions.Fetch(ctx, sessionID, e.runtime.Load)
}

// Current returns the question awaiting an answer.
func (e *Engine) Current(ctx context.Context, sessionID string) (domain.QuestionNode, error) {
	s, err := e.sessions.Load(ctx, sessionID)
	if err != nil {
		return domain.QuestionNode{}, err
	}
	return e.runtime.Current(s)
}

// Answer records a choice for the current question. input is a 1-based
// choice number or a choice label.
func (e *Engine) Answer(ctx context.Context, sessionID, input string) (*domain.Session, error) {
	return e.sessions.Update(ctx, sessionID, func(s *domain.Session) (*domain.Session, error) {
		node, err := e.runtime.Current(s)
		if err != nil {
			// Choose moves a session whose current question vanished to the error phase.
			return e.runtime.Choose(ctx, s, -1)
		}
		idx, err := runtime.ResolveChoice(node, input)
		if err != nil {
			return s, err
		}
		return e.runtime.Choose(ctx, s, idx)
	})
}

// Submit persists the response of a finished session.
func (e *Engine) Submit(ctx context.Context, sessionID string) (*domain.Session, error) {
	return e.sessions.Update(ctx, sessionID, func(s *domain.Session) (*domain.Session, error) {
		return e.runtime.Submit(ctx, s)
	})
}

// Response returns one submitted response.
func (e *Engine) Response(ctx context.Context, id string) (domain.ResponseRecord, error) {
	return e.responses.GetResponse(ctx, id)
}

// ListResponses returns matching responses, newest first.
func (e *Engine) ListResponses(ctx context.Context, filter domain.ResponseFilter) ([]domain.ResponseRecord, error) {
	return e.responses.ListResponses(ctx, filter)
}

// Review moves a response through the follow-up workflow, stamping the
// acting operator.
func (e *Engine) Review(ctx context.Context, responseID string, to domain.ReviewStatus) (domain.ResponseRecord, error) {
	operator, err := e.identity.CurrentOperatorID(ctx)
	if err != nil {
		return domain.ResponseRecord{}, fmt.Errorf("failed to resolve operator: %w", err)
	}
	if operator == "" {
		return domain.ResponseRecord{}, authoring.ErrOperatorRequired
	}

	rec, err := e.responses.GetResponse(ctx, responseID)
	if err != nil {
		return domain.ResponseRecord{}, err
	}
	next, err := rec.Review(to, operator, e.now())
	if err != nil {
		return rec, err
	}
	if err := e.responses.UpdateResponse(ctx, next); err != nil {
		return rec, fmt.Errorf("failed to update response: %w", err)
	}

	e.logger.InfoContext(ctx, "response reviewed",
		"response_id", responseID, "from", rec.Status, "to", to, "operator", operator)
	if e.metrics != nil {
		e.metrics.RecordReview(to)
	}
	return next, nil
}

// OpenDraft loads a partition for editing.
func (e *Engine) OpenDraft(ctx context.Context, partition domain.Partition) (*authoring.Draft, error) {
	if err := e.catalog.Validate(partition); err != nil {
		return nil, err
	}
	return authoring.Open(ctx, e.nodes, partition)
}

// SaveDraft validates and publishes a draft as the operator resolved from ctx.
func (e *Engine) SaveDraft(ctx context.Context, d *authoring.Draft) error {
	writer, ok := e.nodes.(ports.NodeWriter)
	if !ok {
		return ErrReadOnlyBank
	}
	if err := e.catalog.Validate(d.Partition); err != nil {
		return err
	}
	operator, err := e.identity.CurrentOperatorID(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve operator: %w", err)
	}

	err = d.Save(ctx, writer, operator)
	if e.metrics != nil {
		e.metrics.RecordGraphSave(err)
	}
	if err != nil {
		e.logger.WarnContext(ctx, "draft rejected", "partition", d.Partition.Key(), "err", err)
		return err
	}
	e.logger.InfoContext(ctx, "partition saved",
		"partition", d.Partition.Key(), "nodes", len(d.Nodes), "operator", operator)
	return nil
}

// Paths enumerates every root-to-end path of a stored partition with its
// projected assessment.
func (e *Engine) Paths(ctx context.Context, partition domain.Partition) ([]preview.Path, error) {
	nodes, err := e.nodes.FetchNodes(ctx, partition)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrLoadFailure, partition, err)
	}
	return preview.EnumeratePaths(nodes)
}

// Watch returns a channel that signals when the question bank changes.
// Returns error if the store does not support watching.
func (e *Engine) Watch(ctx context.Context) (<-chan string, error) {
	if w, ok := e.nodes.(ports.Watchable); ok {
		return w.Watch(ctx)
	}
	return nil, fmt.Errorf("current node store does not support watching")
}
