/*
Package triage is a questionnaire engine for maternal-health triage.

A question bank is split into partitions, one per pregnancy or postpartum
stage range. Each partition is a directed acyclic graph of multiple-choice
questions: a choice either leads to another question or ends the walk, and
may carry symptom flags, a severity weight and a risk level. Walking the
graph accumulates that evidence, which is scored into a suggested
condition, a confidence ranking and a risk classification (Low Risk, Alert
Zone, Danger Zone) when the response is submitted.

# Concept

The Engine holds no per-respondent state. Sessions live in a
ports.SessionStore and every operation is a locked read-modify-write of one
session, so the same engine can serve a CLI, an HTTP API or several
replicas sharing Redis. Storage, identity and locking are ports with
memory, file, Badger, Redis and Postgres adapters.

# Usage

	eng, err := triage.New("", triage.WithNodeStore(bank))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	s, _ := eng.Start(ctx, "", "patient-42", "")
	eng.SelectStage(ctx, s.ID, "pregnant")
	eng.SelectRange(ctx, s.ID, "1–3 months")
	eng.Load(ctx, s.ID)

	for {
		s, err = eng.Answer(ctx, s.ID, "Yes")
		if err != nil || s.Phase != domain.PhaseAnswering {
			break
		}
	}
	s, err = eng.Submit(ctx, s.ID)

Authors edit a partition through an authoring.Draft opened with OpenDraft
and published with SaveDraft, which refuses graphs that fail validation.
*/
package triage
