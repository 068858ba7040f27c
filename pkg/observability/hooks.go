package observability

import (
	"context"
	"log/slog"

	"github.com/Veolinan/triage/pkg/domain"
)

// Compose fans every event out to each set of hooks, in order.
// Nil callbacks are skipped.
func Compose(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionStart: func(ctx context.Context, e *domain.EventBase) {
			for _, h := range sets {
				if h.OnSessionStart != nil {
					h.OnSessionStart(ctx, e)
				}
			}
		},
		OnPartitionLoad: func(ctx context.Context, e *domain.LoadEvent) {
			for _, h := range sets {
				if h.OnPartitionLoad != nil {
					h.OnPartitionLoad(ctx, e)
				}
			}
		},
		OnQuestionEnter: func(ctx context.Context, e *domain.QuestionEvent) {
			for _, h := range sets {
				if h.OnQuestionEnter != nil {
					h.OnQuestionEnter(ctx, e)
				}
			}
		},
		OnAnswer: func(ctx context.Context, e *domain.AnswerEvent) {
			for _, h := range sets {
				if h.OnAnswer != nil {
					h.OnAnswer(ctx, e)
				}
			}
		},
		OnFinish: func(ctx context.Context, e *domain.OutcomeEvent) {
			for _, h := range sets {
				if h.OnFinish != nil {
					h.OnFinish(ctx, e)
				}
			}
		},
		OnSubmit: func(ctx context.Context, e *domain.OutcomeEvent) {
			for _, h := range sets {
				if h.OnSubmit != nil {
					h.OnSubmit(ctx, e)
				}
			}
		},
	}
}

// LoggingHooks writes an audit line per event. Answers are logged by node
// and label only; patient identifiers never reach the log.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionStart: func(ctx context.Context, e *domain.EventBase) {
			logger.InfoContext(ctx, "session_start", "session_id", e.SessionID)
		},
		OnPartitionLoad: func(ctx context.Context, e *domain.LoadEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "partition_load", "session_id", e.SessionID, "partition", e.Partition.Key(), "err", e.Err)
				return
			}
			logger.InfoContext(ctx, "partition_load",
				"session_id", e.SessionID, "partition", e.Partition.Key(), "nodes", e.Nodes, "duration", e.Duration)
		},
		OnQuestionEnter: func(ctx context.Context, e *domain.QuestionEvent) {
			logger.DebugContext(ctx, "question_enter", "session_id", e.SessionID, "node_id", e.NodeID)
		},
		OnAnswer: func(ctx context.Context, e *domain.AnswerEvent) {
			logger.InfoContext(ctx, "answer", "session_id", e.SessionID, "node_id", e.NodeID, "label", e.Label, "flags", e.Flags)
		},
		OnFinish: func(ctx context.Context, e *domain.OutcomeEvent) {
			logger.InfoContext(ctx, "finish", "session_id", e.SessionID, "classification", e.Classification)
		},
		OnSubmit: func(ctx context.Context, e *domain.OutcomeEvent) {
			logger.InfoContext(ctx, "submit", "session_id", e.SessionID, "response_id", e.ResponseID, "classification", e.Classification)
		},
	}
}
