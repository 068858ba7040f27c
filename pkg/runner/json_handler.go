package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/Veolinan/triage/pkg/domain"
)

// Message is one JSON Lines event written by JSONHandler.
type Message struct {
	Type     string                 `json:"type"`
	Prompt   *Prompt                `json:"prompt,omitempty"`
	Response *domain.ResponseRecord `json:"response,omitempty"`
	Message  string                 `json:"message,omitempty"`
}

// JSONHandler implements IOHandler for structured JSON-Lines communication.
// Answers are read one per line, either as a JSON string or as raw text.
type JSONHandler struct {
	Reader  *bufio.Reader
	Encoder *json.Encoder
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) Ask(ctx context.Context, p Prompt) error {
	return h.Encoder.Encode(Message{Type: "prompt", Prompt: &p})
}

func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	text, err := h.Reader.ReadString('\n')
	if err != nil && (err != io.EOF || text == "") {
		return "", err
	}
	text = strings.TrimSpace(text)

	var val string
	if err := json.Unmarshal([]byte(text), &val); err == nil {
		text = val
	}
	return SanitizeInput(text)
}

func (h *JSONHandler) Outcome(ctx context.Context, rec domain.ResponseRecord) error {
	return h.Encoder.Encode(Message{Type: "outcome", Response: &rec})
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.Encoder.Encode(Message{Type: "system", Message: msg})
}
