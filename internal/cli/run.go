package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Veolinan/triage"
	"github.com/Veolinan/triage/internal/presentation/tui"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/runner"
)

// RunOptions contains the configuration of the run command.
type RunOptions struct {
	SessionID   string
	PatientID   string
	PatientName string
	JSON        bool
	Quiet       bool
}

// Run walks one questionnaire on in/out. Text mode renders Markdown with
// glamour when out is a terminal; JSON mode speaks JSONL.
func Run(ctx context.Context, eng *triage.Engine, opts RunOptions, in io.Reader, out io.Writer, logger *slog.Logger) error {
	var handler runner.IOHandler
	if opts.JSON {
		handler = runner.NewJSONHandler(in, out)
	} else {
		text := runner.NewTextHandler(in, out)
		if f, ok := out.(*os.File); ok {
			text.Renderer = tui.NewRenderer(f)
		}
		text.Zone = tui.Zone
		handler = text
		if !opts.Quiet {
			tui.PrintBanner(out, triage.Version)
		}
	}

	r := runner.New(handler, runner.WithLogger(logger))
	s, err := r.Run(ctx, eng, runner.Session{
		ID:          opts.SessionID,
		PatientID:   opts.PatientID,
		PatientName: opts.PatientName,
	})
	if err != nil {
		return err
	}
	if !opts.JSON && !opts.Quiet {
		printSummary(out, s)
	}
	return nil
}

func printSummary(w io.Writer, s *domain.Session) {
	if s.Phase == domain.PhaseSubmitted {
		printSystemMessage(w, "Session '%s' submitted as response '%s'.", s.ID, s.ResponseID)
		return
	}
	printSystemMessage(w, "Session '%s' saved while %s. Resume with --session %s.", s.ID, s.Phase, s.ID)
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}
