package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Veolinan/triage"
	"github.com/Veolinan/triage/internal/logging"
	"github.com/Veolinan/triage/pkg/domain"
)

// Session identifies the respondent of a run. An empty ID starts an
// ephemeral session; a known ID resumes it.
type Session struct {
	ID          string
	PatientID   string
	PatientName string
}

// Runner handles the questionnaire loop of the triage engine using an IOHandler.
type Runner struct {
	Handler IOHandler
	Logger  *slog.Logger
}

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// New creates a Runner reading and writing through handler.
func New(handler IOHandler, opts ...Option) *Runner {
	r := &Runner{
		Handler: handler,
		Logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var errQuit = errors.New("quit")

// Run walks the session until its response is submitted, the respondent
// types exit, input ends or the process is interrupted. Every step is
// persisted by the engine, so the returned session can be resumed.
func (r *Runner) Run(ctx context.Context, eng *triage.Engine, who Session) (*domain.Session, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := r.resume(ctx, eng, who)
	if err != nil {
		return nil, err
	}

	for {
		if s.Phase == domain.PhaseSubmitted {
			return s, r.showOutcome(ctx, eng, s)
		}
		next, err := r.step(ctx, eng, s)
		if next != nil {
			s = next
		}
		switch {
		case err == nil:
		case errors.Is(err, errQuit), errors.Is(err, io.EOF):
			return s, nil
		case ctx.Err() != nil:
			_ = r.Handler.SystemOutput(context.Background(), fmt.Sprintf("Interrupted. Resume with session %s.", s.ID))
			return s, nil
		case recoverable(err):
			r.Logger.Debug("step rejected", "session_id", s.ID, "phase", s.Phase, "err", err)
			if oerr := r.Handler.SystemOutput(ctx, err.Error()); oerr != nil {
				return s, oerr
			}
		default:
			return s, err
		}
	}
}

// recoverable errors re-prompt instead of ending the run.
func recoverable(err error) bool {
	return errors.Is(err, domain.ErrInvalidChoice) ||
		errors.Is(err, domain.ErrUnknownStage) ||
		errors.Is(err, domain.ErrStaleLoad) ||
		errors.Is(err, domain.ErrLoadFailure) ||
		errors.Is(err, domain.ErrMalformedGraph) ||
		errors.Is(err, domain.ErrDanglingReference)
}

func (r *Runner) resume(ctx context.Context, eng *triage.Engine, who Session) (*domain.Session, error) {
	if who.ID != "" {
		s, err := eng.Session(ctx, who.ID)
		if err == nil {
			r.Logger.Info("resuming session", "session_id", s.ID, "phase", s.Phase)
			return s, nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return nil, fmt.Errorf("failed to load session %s: %w", who.ID, err)
		}
	}
	return eng.Start(ctx, who.ID, who.PatientID, who.PatientName)
}

// step performs one prompt/transition for the current phase.
func (r *Runner) step(ctx context.Context, eng *triage.Engine, s *domain.Session) (*domain.Session, error) {
	catalog := eng.Catalog()

	switch s.Phase {
	case domain.PhaseSelectingStage:
		stage, err := r.choose(ctx, Prompt{Kind: PromptStage, Text: "Select the stage", Options: catalog.Types()})
		if err != nil {
			return nil, err
		}
		return eng.SelectStage(ctx, s.ID, stage)

	case domain.PhaseSelectingRange:
		ranges, _ := catalog.Ranges(s.Partition.StageType)
		rng, err := r.choose(ctx, Prompt{Kind: PromptRange, Text: "Select the range for " + s.Partition.StageType, Options: ranges})
		if err != nil {
			return nil, err
		}
		return eng.SelectRange(ctx, s.ID, rng)

	case domain.PhaseLoading:
		return eng.Load(ctx, s.ID)

	case domain.PhaseAnswering:
		node, err := eng.Current(ctx, s.ID)
		if err != nil {
			// Answer moves the session to the error phase.
			return eng.Answer(ctx, s.ID, "")
		}
		labels := make([]string, len(node.Choices))
		for i, c := range node.Choices {
			labels[i] = c.Label
		}
		if err := r.Handler.Ask(ctx, Prompt{Kind: PromptQuestion, NodeID: node.ID, Text: node.Text, Options: labels}); err != nil {
			return nil, err
		}
		answer, err := r.input(ctx)
		if err != nil {
			return nil, err
		}
		return eng.Answer(ctx, s.ID, answer)

	case domain.PhaseFinished:
		return eng.Submit(ctx, s.ID)

	case domain.PhaseError:
		if err := r.Handler.SystemOutput(ctx, s.LastError); err != nil {
			return nil, err
		}
		action, err := r.choose(ctx, Prompt{Kind: PromptRetry, Text: "The questionnaire could not be loaded", Options: []string{"Retry", "Choose another stage"}})
		if err != nil {
			return nil, err
		}
		if action == "Retry" {
			return eng.Load(ctx, s.ID)
		}
		stage, err := r.choose(ctx, Prompt{Kind: PromptStage, Text: "Select the stage", Options: catalog.Types()})
		if err != nil {
			return nil, err
		}
		return eng.SelectStage(ctx, s.ID, stage)
	}
	return nil, fmt.Errorf("session %s is in unexpected phase %q", s.ID, s.Phase)
}

func (r *Runner) input(ctx context.Context) (string, error) {
	in, err := r.Handler.Input(ctx)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(strings.TrimSpace(in)) {
	case "exit", "quit":
		return "", errQuit
	}
	return in, nil
}

// choose asks until the answer matches an option by number or name.
func (r *Runner) choose(ctx context.Context, p Prompt) (string, error) {
	for {
		if err := r.Handler.Ask(ctx, p); err != nil {
			return "", err
		}
		in, err := r.input(ctx)
		if err != nil {
			return "", err
		}
		if opt, ok := pick(in, p.Options); ok {
			return opt, nil
		}
		if err := r.Handler.SystemOutput(ctx, fmt.Sprintf("%q is not one of the options", in)); err != nil {
			return "", err
		}
	}
}

func pick(in string, options []string) (string, bool) {
	in = strings.TrimSpace(in)
	if n, err := strconv.Atoi(in); err == nil && n >= 1 && n <= len(options) {
		return options[n-1], true
	}
	for _, opt := range options {
		if strings.EqualFold(opt, in) {
			return opt, true
		}
	}
	return "", false
}

func (r *Runner) showOutcome(ctx context.Context, eng *triage.Engine, s *domain.Session) error {
	rec, err := eng.Response(ctx, s.ResponseID)
	if err != nil {
		return fmt.Errorf("failed to read submitted response: %w", err)
	}
	return r.Handler.Outcome(ctx, rec)
}
