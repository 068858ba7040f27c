package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventSessionStart  EventType = "session_start"
	EventPartitionLoad EventType = "partition_load"
	EventQuestionEnter EventType = "question_enter"
	EventAnswer        EventType = "answer"
	EventFinish        EventType = "finish"
	EventSubmit        EventType = "submit"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// LoadEvent is emitted after a partition load attempt.
type LoadEvent struct {
	EventBase
	Partition Partition     `json:"partition"`
	Nodes     int           `json:"nodes"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// QuestionEvent is emitted when a question becomes current.
type QuestionEvent struct {
	EventBase
	NodeID string `json:"node_id"`
}

// AnswerEvent is emitted for every recorded choice.
type AnswerEvent struct {
	EventBase
	NodeID string   `json:"node_id"`
	Label  string   `json:"label"`
	Flags  []string `json:"flags,omitempty"`
}

// OutcomeEvent is emitted on finish and on submit.
type OutcomeEvent struct {
	EventBase
	Partition      Partition      `json:"partition"`
	Classification Classification `json:"classification"`
	ResponseID     string         `json:"response_id,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnSessionStart  func(context.Context, *EventBase)
	OnPartitionLoad func(context.Context, *LoadEvent)
	OnQuestionEnter func(context.Context, *QuestionEvent)
	OnAnswer        func(context.Context, *AnswerEvent)
	OnFinish        func(context.Context, *OutcomeEvent)
	OnSubmit        func(context.Context, *OutcomeEvent)
}
