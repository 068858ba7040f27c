// Package tests holds reusable contract suites that every storage adapter runs.
package tests

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SamplePartition is the partition used by the contract suites.
var SamplePartition = domain.Partition{StageType: domain.StagePregnant, StageRange: "1–3 months"}

// SampleNodes returns a small valid graph for SamplePartition.
func SampleNodes() []domain.QuestionNode {
	ten := 10.0
	return []domain.QuestionNode{
		{
			ID: "q1", Order: 1, IsRoot: true, Text: "Any bleeding?",
			StageType: SamplePartition.StageType, StageRange: SamplePartition.StageRange,
			Category: "bleeding",
			Choices: []domain.Choice{
				{Label: "Yes", LeadsTo: "q2", Flags: domain.Flags{"danger"}},
				{Label: "No"},
			},
		},
		{
			ID: "q2", Order: 2, Text: "Severe pain?",
			StageType: SamplePartition.StageType, StageRange: SamplePartition.StageRange,
			Category: "bleeding",
			Choices: []domain.Choice{
				{Label: "Yes", Flags: domain.Flags{"danger"}, Weight: &ten, RiskLevel: domain.RiskDanger},
				{Label: "No", Flags: domain.Flags{"alert", "pain"}, RiskLevel: domain.RiskAlert},
			},
		},
	}
}

// RunNodeStoreContract verifies that a NodeStore implementation adheres to
// the interface contract.
func RunNodeStoreContract(t *testing.T, store ports.NodeStore) {
	t.Helper()
	ctx := context.Background()
	other := domain.Partition{StageType: domain.StagePostpartum, StageRange: "1–4 weeks"}

	t.Run("Fetch Empty Partition", func(t *testing.T) {
		nodes, err := store.FetchNodes(ctx, domain.Partition{StageType: "nobody", StageRange: "never"})
		require.NoError(t, err)
		assert.Empty(t, nodes)
	})

	t.Run("Replace and Fetch", func(t *testing.T) {
		require.NoError(t, store.ReplacePartition(ctx, SamplePartition, SampleNodes()))

		nodes, err := store.FetchNodes(ctx, SamplePartition)
		require.NoError(t, err)
		AssertSameNodes(t, SampleNodes(), nodes)
	})

	t.Run("Replace Removes Absent Nodes", func(t *testing.T) {
		require.NoError(t, store.ReplacePartition(ctx, SamplePartition, SampleNodes()))

		only := SampleNodes()[:1]
		only[0].Choices = []domain.Choice{{Label: "Yes"}, {Label: "No"}}
		require.NoError(t, store.ReplacePartition(ctx, SamplePartition, only))

		nodes, err := store.FetchNodes(ctx, SamplePartition)
		require.NoError(t, err)
		AssertSameNodes(t, only, nodes)
	})

	t.Run("Partitions Are Isolated", func(t *testing.T) {
		require.NoError(t, store.ReplacePartition(ctx, SamplePartition, SampleNodes()))

		otherNodes := []domain.QuestionNode{{
			ID: "p1", Order: 1, IsRoot: true, Text: "Sleeping well?",
			StageType: other.StageType, StageRange: other.StageRange,
			Choices: []domain.Choice{{Label: "Yes"}},
		}}
		require.NoError(t, store.ReplacePartition(ctx, other, otherNodes))

		nodes, err := store.FetchNodes(ctx, SamplePartition)
		require.NoError(t, err)
		AssertSameNodes(t, SampleNodes(), nodes)

		nodes, err = store.FetchNodes(ctx, other)
		require.NoError(t, err)
		AssertSameNodes(t, otherNodes, nodes)
	})

	t.Run("Delete Node", func(t *testing.T) {
		require.NoError(t, store.ReplacePartition(ctx, SamplePartition, SampleNodes()))

		err := store.DeleteNode(ctx, SamplePartition, "q2")
		require.ErrorIs(t, err, domain.ErrNodeReferenced, "q1 still leads to q2")
		nodes, err := store.FetchNodes(ctx, SamplePartition)
		require.NoError(t, err)
		require.Len(t, nodes, 2)

		require.NoError(t, store.DeleteNode(ctx, SamplePartition, "q1"))
		nodes, err = store.FetchNodes(ctx, SamplePartition)
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		assert.Equal(t, "q2", nodes[0].ID)

		err = store.DeleteNode(ctx, SamplePartition, "q1")
		assert.ErrorIs(t, err, domain.ErrNodeNotFound)
	})
}

// AssertSameNodes compares node sets by content, ignoring order and timestamps.
func AssertSameNodes(t *testing.T, want, got []domain.QuestionNode) {
	t.Helper()
	require.Len(t, got, len(want))

	sortByID := func(nodes []domain.QuestionNode) []domain.QuestionNode {
		out := domain.CloneNodes(nodes)
		slices.SortFunc(out, func(a, b domain.QuestionNode) int {
			if a.ID < b.ID {
				return -1
			}
			if a.ID > b.ID {
				return 1
			}
			return 0
		})
		return out
	}
	w, g := sortByID(want), sortByID(got)

	for i := range w {
		assert.Equal(t, w[i].ID, g[i].ID)
		assert.Equal(t, w[i].Order, g[i].Order, "order of %s", w[i].ID)
		assert.Equal(t, w[i].IsRoot, g[i].IsRoot, "isRoot of %s", w[i].ID)
		assert.Equal(t, w[i].Text, g[i].Text)
		assert.Equal(t, w[i].StageType, g[i].StageType)
		assert.Equal(t, w[i].StageRange, g[i].StageRange)
		assert.Equal(t, w[i].Category, g[i].Category)
		require.Len(t, g[i].Choices, len(w[i].Choices), "choices of %s", w[i].ID)
		for j := range w[i].Choices {
			wc, gc := w[i].Choices[j], g[i].Choices[j]
			assert.Equal(t, wc.Label, gc.Label)
			assert.Equal(t, wc.LeadsTo, gc.LeadsTo)
			assert.Equal(t, []string(wc.Flags), []string(gc.Flags), "flags of %s choice %d", w[i].ID, j)
			assert.Equal(t, wc.WeightValue(), gc.WeightValue())
			assert.Equal(t, wc.RiskLevel, gc.RiskLevel)
		}
	}
}

// SampleResponse returns a valid response for the given patient.
func SampleResponse(patientID string, class domain.Classification, at time.Time) domain.ResponseRecord {
	return domain.ResponseRecord{
		PatientID:          patientID,
		PatientName:        "Jane " + patientID,
		Partition:          SamplePartition,
		Answers:            map[string]string{"q1": "Yes", "q2": "Yes"},
		Flags:              []string{"danger"},
		Confidence:         []domain.ConfidenceEntry{{Condition: "danger", Score: 100}},
		SuggestedCondition: "danger",
		TotalWeight:        10,
		Classification:     class,
		SubmittedAt:        at,
		Status:             domain.StatusSubmitted,
	}
}

// RunResponseStoreContract verifies that a ResponseStore implementation
// adheres to the interface contract.
func RunResponseStoreContract(t *testing.T, store ports.ResponseStore) {
	t.Helper()
	ctx := context.Background()
	suffix := time.Now().Format("150405.000000")
	patient := "patient-" + suffix
	base := time.Now().UTC().Truncate(time.Second)

	t.Run("Insert and Get", func(t *testing.T) {
		rec := SampleResponse(patient, domain.ClassDangerZone, base)
		id, err := store.InsertResponse(ctx, rec)
		require.NoError(t, err)
		require.NotEmpty(t, id, "store must assign an ID")

		got, err := store.GetResponse(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, rec.PatientID, got.PatientID)
		assert.Equal(t, rec.Answers, got.Answers)
		assert.Equal(t, rec.Flags, got.Flags)
		assert.Equal(t, rec.Confidence, got.Confidence)
		assert.Equal(t, rec.Classification, got.Classification)
		assert.Equal(t, domain.StatusSubmitted, got.Status)
		assert.WithinDuration(t, base, got.SubmittedAt, time.Second)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.GetResponse(ctx, "missing-"+suffix)
		assert.ErrorIs(t, err, domain.ErrResponseNotFound)
	})

	t.Run("List With Filter", func(t *testing.T) {
		other := "other-" + suffix
		_, err := store.InsertResponse(ctx, SampleResponse(other, domain.ClassLowRisk, base.Add(time.Minute)))
		require.NoError(t, err)
		_, err = store.InsertResponse(ctx, SampleResponse(other, domain.ClassAlertZone, base.Add(2*time.Minute)))
		require.NoError(t, err)

		list, err := store.ListResponses(ctx, domain.ResponseFilter{PatientID: other})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, domain.ClassAlertZone, list[0].Classification, "newest first")

		list, err = store.ListResponses(ctx, domain.ResponseFilter{PatientID: other, Classification: domain.ClassLowRisk})
		require.NoError(t, err)
		require.Len(t, list, 1)

		list, err = store.ListResponses(ctx, domain.ResponseFilter{PatientID: other, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("Update Review Status", func(t *testing.T) {
		id, err := store.InsertResponse(ctx, SampleResponse(patient, domain.ClassDangerZone, base))
		require.NoError(t, err)

		rec, err := store.GetResponse(ctx, id)
		require.NoError(t, err)
		flagged, err := rec.Review(domain.StatusFlagged, "dr-contract", base)
		require.NoError(t, err)
		require.NoError(t, store.UpdateResponse(ctx, flagged))

		got, err := store.GetResponse(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFlagged, got.Status)
		assert.Equal(t, "dr-contract", got.ReviewedBy)

		list, err := store.ListResponses(ctx, domain.ResponseFilter{PatientID: patient, Status: domain.StatusFlagged})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, id, list[0].ID)
	})

	t.Run("Update Non-Existent", func(t *testing.T) {
		rec := SampleResponse(patient, domain.ClassLowRisk, base)
		rec.ID = "missing-" + suffix
		assert.ErrorIs(t, store.UpdateResponse(ctx, rec), domain.ErrResponseNotFound)
	})
}

// RunSessionStoreContract verifies that a SessionStore implementation adheres
// to the interface contract.
func RunSessionStoreContract(t *testing.T, store ports.SessionStore) {
	t.Helper()
	ctx := context.Background()
	sessionID := fmt.Sprintf("contract-test-session-%d", time.Now().UnixNano())

	t.Run("Save and Load", func(t *testing.T) {
		s := domain.NewSession(sessionID, "patient-1")
		s.Phase = domain.PhaseAnswering
		s.Partition = SamplePartition
		s.Nodes = SampleNodes()
		s.CurrentNodeID = "q2"
		s.Answers["q1"] = "Yes"
		s.Flags = s.Flags.Add("danger")
		s.Generation = 2

		require.NoError(t, store.Save(ctx, s))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, domain.PhaseAnswering, loaded.Phase)
		assert.Equal(t, "q2", loaded.CurrentNodeID)
		assert.Equal(t, "Yes", loaded.Answers["q1"])
		assert.Equal(t, []string{"danger"}, loaded.Flags.Unique)
		assert.Equal(t, 2, loaded.Generation)
		AssertSameNodes(t, s.Nodes, loaded.Nodes)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.NewSession(sessionID, "")))
		require.NoError(t, store.Delete(ctx, sessionID))

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.Save(ctx, domain.NewSession(id1, "")))
		require.NoError(t, store.Save(ctx, domain.NewSession(id2, "")))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
