package runner

import (
	"context"

	"github.com/Veolinan/triage/pkg/domain"
)

// PromptKind tells the handler what is being asked.
type PromptKind string

const (
	PromptStage    PromptKind = "stage"
	PromptRange    PromptKind = "range"
	PromptQuestion PromptKind = "question"
	PromptRetry    PromptKind = "retry"
)

// Prompt is one request for input.
type Prompt struct {
	Kind    PromptKind `json:"kind"`
	NodeID  string     `json:"nodeId,omitempty"`
	Text    string     `json:"text"`
	Options []string   `json:"options"`
}

// IOHandler defines the strategy for interacting with the respondent.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Ask presents a prompt. The runner calls Input next.
	Ask(ctx context.Context, p Prompt) error

	// Input reads a response. io.EOF ends the run.
	Input(ctx context.Context) (string, error)

	// Outcome presents the submitted response.
	Outcome(ctx context.Context, rec domain.ResponseRecord) error

	// SystemOutput presents a meta-message (errors, status updates).
	SystemOutput(ctx context.Context, msg string) error
}
