package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Veolinan/triage/pkg/domain"
)

// ContentRenderer transforms Markdown before it is printed (glamour in the CLI).
type ContentRenderer func(string) (string, error)

// TextHandler implements the standard text-based interface: numbered options
// and a "> " prompt.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer
	// Zone styles a classification for display (colors in the CLI).
	Zone func(domain.Classification) string

	lines chan inputResult
}

type inputResult struct {
	text string
	err  error
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &TextHandler{
		Reader: bufio.NewReader(r),
		Writer: w,
	}
}

func (h *TextHandler) render(md string) string {
	if h.Renderer != nil {
		if out, err := h.Renderer(md); err == nil {
			return strings.TrimSpace(out)
		}
	}
	return md
}

func (h *TextHandler) Ask(ctx context.Context, p Prompt) error {
	title := p.Text
	if p.Kind == PromptQuestion {
		title = "**" + p.Text + "**"
	}
	fmt.Fprintln(h.Writer, h.render(title))
	for i, opt := range p.Options {
		fmt.Fprintf(h.Writer, "  %d) %s\n", i+1, opt)
	}
	return nil
}

// Input reads one line. Reading happens on a separate goroutine so a
// canceled ctx (Ctrl+C) returns immediately.
func (h *TextHandler) Input(ctx context.Context) (string, error) {
	if h.lines == nil {
		h.lines = make(chan inputResult)
		go h.pump()
	}
	for {
		fmt.Fprint(h.Writer, "> ")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res, ok := <-h.lines:
			if !ok {
				return "", io.EOF
			}
			if res.err != nil {
				return "", res.err
			}
			clean, err := SanitizeInput(strings.TrimSpace(res.text))
			if err != nil {
				fmt.Fprintf(h.Writer, "Error: %v. Please try again.\n", err)
				continue
			}
			return clean, nil
		}
	}
}

func (h *TextHandler) pump() {
	defer close(h.lines)
	for {
		text, err := h.Reader.ReadString('\n')
		if text != "" {
			h.lines <- inputResult{text: text}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			h.lines <- inputResult{err: err}
			return
		}
	}
}

func (h *TextHandler) Outcome(ctx context.Context, rec domain.ResponseRecord) error {
	zone := string(rec.Classification)
	if h.Zone != nil {
		zone = h.Zone(rec.Classification)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Result\n\n")
	fmt.Fprintf(&sb, "- **Suggested condition:** %s\n", rec.SuggestedCondition)
	if len(rec.Flags) > 0 {
		fmt.Fprintf(&sb, "- **Flags:** %s\n", strings.Join(rec.Flags, ", "))
	}
	if rec.TotalWeight != 0 {
		fmt.Fprintf(&sb, "- **Severity weight:** %g\n", rec.TotalWeight)
	}
	for _, c := range rec.Confidence {
		fmt.Fprintf(&sb, "  - %s: %d%%\n", c.Condition, c.Score)
	}
	fmt.Fprintln(h.Writer)
	fmt.Fprintln(h.Writer, h.render(sb.String()))
	fmt.Fprintf(h.Writer, "Classification: %s\n", zone)
	fmt.Fprintf(h.Writer, "Response ID: %s\n", rec.ID)
	return nil
}

func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	fmt.Fprintf(h.Writer, "\n[System] %s\n", msg)
	return nil
}
