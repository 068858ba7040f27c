package domain

import (
	"maps"
	"slices"
	"time"
)

// Phase is the traversal state of a Session.
type Phase string

const (
	PhaseSelectingStage Phase = "selecting_stage" // No stage type chosen yet
	PhaseSelectingRange Phase = "selecting_range" // Stage type chosen, range pending
	PhaseLoading        Phase = "loading"         // Partition fetch outstanding
	PhaseAnswering      Phase = "answering"       // Waiting for a choice on CurrentNodeID
	PhaseFinished       Phase = "finished"        // Terminal choice reached, assessment computed
	PhaseSubmitted      Phase = "submitted"       // Response persisted
	PhaseError          Phase = "error"           // Load failure, malformed graph or dangling reference
)

// Session is the snapshot of one respondent walking one partition.
// Engine operations never mutate a Session in place; they return a new one.
type Session struct {
	ID          string `json:"id"`
	PatientID   string `json:"patientId,omitempty"`
	PatientName string `json:"patientName,omitempty"`

	Phase     Phase     `json:"phase"`
	Partition Partition `json:"partition"`

	// Generation increases on every stage or range selection. A load started
	// under an older generation is stale and its result must be discarded.
	Generation int `json:"generation"`

	// Nodes is the immutable snapshot of the partition loaded for this walk.
	Nodes []QuestionNode `json:"nodes,omitempty"`

	CurrentNodeID string            `json:"currentNodeId,omitempty"`
	Answers       map[string]string `json:"answers"`
	History       []string          `json:"history,omitempty"`
	Flags         FlagSet           `json:"flags"`
	TotalWeight   float64           `json:"totalWeight"`
	RiskLevels    []RiskLevel       `json:"riskLevels,omitempty"`

	// Set on Finished.
	Assessment *Assessment `json:"assessment,omitempty"`
	// Set on Submitted.
	ResponseID string `json:"responseId,omitempty"`

	// LastError describes why the session is in PhaseError.
	LastError string `json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSession creates a session waiting for a stage type.
func NewSession(id, patientID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		PatientID: patientID,
		Phase:     PhaseSelectingStage,
		Answers:   make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Snapshot returns a deep copy of the session.
func (s *Session) Snapshot() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Nodes = CloneNodes(s.Nodes)
	out.Answers = maps.Clone(s.Answers)
	if out.Answers == nil {
		out.Answers = make(map[string]string)
	}
	out.History = slices.Clone(s.History)
	out.Flags = s.Flags.Clone()
	out.RiskLevels = slices.Clone(s.RiskLevels)
	if s.Assessment != nil {
		a := *s.Assessment
		a.Flags = slices.Clone(s.Assessment.Flags)
		a.Occurrences = slices.Clone(s.Assessment.Occurrences)
		a.Confidence = slices.Clone(s.Assessment.Confidence)
		a.RiskLevels = slices.Clone(s.Assessment.RiskLevels)
		out.Assessment = &a
	}
	return &out
}

// FindNode looks a node up in the loaded snapshot.
func (s *Session) FindNode(id string) (QuestionNode, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return QuestionNode{}, false
}
