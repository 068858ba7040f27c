package runtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/scoring"
	"github.com/go-playground/validator/v10"
)

// Assess scores the evidence accumulated by the session so far.
func Assess(s *domain.Session) domain.Assessment {
	return scoring.Assess(s.Flags, s.TotalWeight, s.RiskLevels)
}

// Record builds the response for a finished session without persisting it.
func (e *Engine) Record(s *domain.Session) (domain.ResponseRecord, error) {
	if s.Phase != domain.PhaseFinished || s.Assessment == nil {
		return domain.ResponseRecord{}, &TransitionError{Op: "submit", From: s.Phase}
	}
	a := s.Assessment
	answers := make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = v
	}
	return domain.ResponseRecord{
		SessionID:          s.ID,
		PatientID:          s.PatientID,
		PatientName:        s.PatientName,
		Partition:          s.Partition,
		Answers:            answers,
		Flags:              slices.Clone(a.Flags),
		Confidence:         slices.Clone(a.Confidence),
		SuggestedCondition: a.SuggestedCondition,
		TotalWeight:        a.TotalWeight,
		Classification:     a.Classification,
		SubmittedAt:        e.now(),
		Status:             domain.StatusSubmitted,
	}, nil
}

// CheckRecord validates the shape of a response before it is persisted.
// The error wraps domain.ErrSubmissionInvalid and lists every failed field.
func (e *Engine) CheckRecord(rec domain.ResponseRecord) error {
	err := e.validate.Struct(rec)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", domain.ErrSubmissionInvalid, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", domain.ErrSubmissionInvalid, err)
}

// Submit validates and persists the response of a finished session.
// A validation failure writes nothing; a store failure leaves the session
// finished so the submission can be retried.
func (e *Engine) Submit(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	rec, err := e.Record(s)
	if err != nil {
		return s, err
	}
	if err := e.CheckRecord(rec); err != nil {
		e.logger.WarnContext(ctx, "submission rejected", "session_id", s.ID, "err", err)
		return s, err
	}
	if e.responses == nil {
		return s, errors.New("no response store configured")
	}

	id, err := e.responses.InsertResponse(ctx, rec)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to persist response", "session_id", s.ID, "err", err)
		return s, fmt.Errorf("failed to persist response: %w", err)
	}

	next := s.Snapshot()
	next.Phase = domain.PhaseSubmitted
	next.ResponseID = id
	next.UpdatedAt = e.now()

	e.logger.InfoContext(ctx, "response submitted",
		"session_id", s.ID, "response_id", id, "classification", rec.Classification)
	if e.hooks.OnSubmit != nil {
		e.hooks.OnSubmit(ctx, &domain.OutcomeEvent{
			EventBase:      e.event(domain.EventSubmit, s.ID),
			Partition:      s.Partition,
			Classification: rec.Classification,
			ResponseID:     id,
		})
	}
	return next, nil
}
