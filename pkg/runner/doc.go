/*
Package runner drives a triage questionnaire interactively.

It is the bridge between the Engine and a respondent at a terminal or a
host process: the Runner asks for the stage, then the range, loads the
partition and presents one question at a time until a terminal choice is
reached, then submits and shows the outcome. Every step is persisted by the
Engine, so an interrupted run resumes where it stopped when the same
session ID is used again.

# Key Components

  - Runner: the orchestration loop.
  - IOHandler: decouples how prompts are shown and answers read.
  - TextHandler: numbered options for interactive CLI usage.
  - JSONHandler: JSON Lines for hosts driving the runner over pipes.

# Usage

	r := runner.New(runner.NewTextHandler(os.Stdin, os.Stdout))
	if err := r.Run(ctx, eng, runner.Session{PatientID: "patient-42"}); err != nil {
		log.Fatal(err)
	}
*/
package runner
