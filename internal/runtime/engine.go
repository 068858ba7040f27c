package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Veolinan/triage/internal/logging"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/ports"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Engine is the traversal state machine. It holds no session state: every
// operation takes a Session snapshot and returns a new one.
type Engine struct {
	nodes     ports.NodeReader
	responses ports.ResponseStore
	catalog   domain.StageCatalog
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	validate  *validator.Validate
	loads     singleflight.Group
	now       func() time.Time
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithCatalog replaces the default stage catalog.
func WithCatalog(catalog domain.StageCatalog) EngineOption {
	return func(e *Engine) {
		e.catalog = catalog
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine reading partitions from nodes and persisting
// submissions to responses. responses may be nil for preview-only use, in
// which case Submit fails.
func NewEngine(nodes ports.NodeReader, responses ports.ResponseStore, opts ...EngineOption) *Engine {
	e := &Engine{
		nodes:     nodes,
		responses: responses,
		catalog:   domain.DefaultStageCatalog(),
		logger:    logging.NewNop(),
		validate:  NewValidator(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the stage catalog in use.
func (e *Engine) Catalog() domain.StageCatalog {
	return e.catalog
}

// Start opens a session waiting for a stage type. An empty id is replaced
// by a random UUID.
func (e *Engine) Start(ctx context.Context, id, patientID, patientName string) *domain.Session {
	if id == "" {
		id = uuid.New().String()
	}
	s := domain.NewSession(id, patientID)
	s.PatientName = patientName
	s.CreatedAt = e.now()
	s.UpdatedAt = s.CreatedAt

	e.logger.DebugContext(ctx, "session started", "session_id", id)
	if e.hooks.OnSessionStart != nil {
		e.hooks.OnSessionStart(ctx, &domain.EventBase{Timestamp: s.CreatedAt, Type: domain.EventSessionStart, SessionID: id})
	}
	return s
}

// SelectStage picks the stage type. Re-selecting is allowed until the
// session is submitted and discards any loaded partition and answers.
func (e *Engine) SelectStage(ctx context.Context, s *domain.Session, stageType string) (*domain.Session, error) {
	if s.Phase == domain.PhaseSubmitted {
		return s, &TransitionError{Op: "select stage", From: s.Phase}
	}
	if !e.catalog.HasType(stageType) {
		return s, fmt.Errorf("%w: stage type %q", domain.ErrUnknownStage, stageType)
	}

	next := e.retarget(s)
	next.Partition = domain.Partition{StageType: stageType}
	next.Phase = domain.PhaseSelectingRange
	e.logger.DebugContext(ctx, "stage selected", "session_id", s.ID, "stage_type", stageType, "generation", next.Generation)
	return next, nil
}

// SelectRange picks the range of the already selected stage type and moves
// the session to loading.
func (e *Engine) SelectRange(ctx context.Context, s *domain.Session, stageRange string) (*domain.Session, error) {
	if s.Phase == domain.PhaseSubmitted || s.Phase == domain.PhaseSelectingStage || s.Partition.StageType == "" {
		return s, &TransitionError{Op: "select range", From: s.Phase}
	}
	p := domain.Partition{StageType: s.Partition.StageType, StageRange: stageRange}
	if err := e.catalog.Validate(p); err != nil {
		return s, err
	}

	next := e.retarget(s)
	next.Partition = p
	next.Phase = domain.PhaseLoading
	e.logger.DebugContext(ctx, "range selected", "session_id", s.ID, "partition", p.Key(), "generation", next.Generation)
	return next, nil
}

// retarget clears everything derived from the previous partition and bumps
// the generation so in-flight loads become stale.
func (e *Engine) retarget(s *domain.Session) *domain.Session {
	next := s.Snapshot()
	next.Generation++
	next.Nodes = nil
	next.CurrentNodeID = ""
	next.Answers = make(map[string]string)
	next.History = nil
	next.Flags = domain.FlagSet{}
	next.TotalWeight = 0
	next.RiskLevels = nil
	next.Assessment = nil
	next.LastError = ""
	next.UpdatedAt = e.now()
	return next
}

// Current returns the question awaiting an answer.
func (e *Engine) Current(s *domain.Session) (domain.QuestionNode, error) {
	if s.Phase != domain.PhaseAnswering {
		return domain.QuestionNode{}, &TransitionError{Op: "current", From: s.Phase}
	}
	node, ok := s.FindNode(s.CurrentNodeID)
	if !ok {
		return domain.QuestionNode{}, fmt.Errorf("%w: %q", domain.ErrDanglingReference, s.CurrentNodeID)
	}
	return node, nil
}

// Choose records the choice at index (0-based) for the current question and
// advances the walk. A choice whose LeadsTo is empty or does not address a
// loaded node finishes the walk.
func (e *Engine) Choose(ctx context.Context, s *domain.Session, index int) (*domain.Session, error) {
	node, err := e.Current(s)
	if err != nil {
		if s.Phase == domain.PhaseAnswering {
			e.logger.ErrorContext(ctx, "current question missing from loaded partition",
				"session_id", s.ID, "node_id", s.CurrentNodeID, "partition", s.Partition.Key())
			return e.fail(s, err), err
		}
		return s, err
	}
	if index < 0 || index >= len(node.Choices) {
		return s, fmt.Errorf("%w: %d not in [1, %d] for %s", domain.ErrInvalidChoice, index+1, len(node.Choices), node.ID)
	}
	choice := node.Choices[index]

	next := s.Snapshot()
	next.Answers[node.ID] = choice.Label
	next.Flags = next.Flags.Add(choice.Flags...)
	next.TotalWeight += choice.WeightValue()
	if choice.RiskLevel != "" {
		next.RiskLevels = append(next.RiskLevels, choice.RiskLevel)
	}
	next.UpdatedAt = e.now()

	if e.hooks.OnAnswer != nil {
		e.hooks.OnAnswer(ctx, &domain.AnswerEvent{
			EventBase: e.event(domain.EventAnswer, s.ID),
			NodeID:    node.ID,
			Label:     choice.Label,
			Flags:     slices.Clone([]string(choice.Flags)),
		})
	}

	if choice.LeadsTo != "" {
		if _, ok := next.FindNode(choice.LeadsTo); ok {
			next.CurrentNodeID = choice.LeadsTo
			next.History = append(next.History, choice.LeadsTo)
			e.enter(ctx, next)
			return next, nil
		}
		e.logger.WarnContext(ctx, "choice leads to an unknown question, finishing walk",
			"session_id", s.ID, "node_id", node.ID, "label", choice.Label, "leads_to", choice.LeadsTo)
	}
	return e.finish(ctx, next), nil
}

func (e *Engine) finish(ctx context.Context, s *domain.Session) *domain.Session {
	assessment := Assess(s)
	s.Assessment = &assessment
	s.Phase = domain.PhaseFinished
	s.CurrentNodeID = ""

	e.logger.InfoContext(ctx, "walk finished",
		"session_id", s.ID,
		"partition", s.Partition.Key(),
		"answers", len(s.Answers),
		"classification", assessment.Classification,
		"suggested", assessment.SuggestedCondition)
	if e.hooks.OnFinish != nil {
		e.hooks.OnFinish(ctx, &domain.OutcomeEvent{
			EventBase:      e.event(domain.EventFinish, s.ID),
			Partition:      s.Partition,
			Classification: assessment.Classification,
		})
	}
	return s
}

func (e *Engine) enter(ctx context.Context, s *domain.Session) {
	if e.hooks.OnQuestionEnter != nil {
		e.hooks.OnQuestionEnter(ctx, &domain.QuestionEvent{
			EventBase: e.event(domain.EventQuestionEnter, s.ID),
			NodeID:    s.CurrentNodeID,
		})
	}
}

func (e *Engine) fail(s *domain.Session, err error) *domain.Session {
	next := s.Snapshot()
	next.Phase = domain.PhaseError
	next.LastError = err.Error()
	next.UpdatedAt = e.now()
	return next
}

func (e *Engine) event(t domain.EventType, sessionID string) domain.EventBase {
	return domain.EventBase{Timestamp: e.now(), Type: t, SessionID: sessionID}
}
