package domain

import (
	"fmt"
	"slices"
	"time"
)

// ReviewStatus tracks a response through the clinical follow-up workflow.
type ReviewStatus string

const (
	StatusSubmitted ReviewStatus = "submitted"
	StatusFlagged   ReviewStatus = "flagged"
	StatusBooked    ReviewStatus = "booked"
	StatusResolved  ReviewStatus = "resolved"
)

var reviewTransitions = map[ReviewStatus][]ReviewStatus{
	StatusSubmitted: {StatusFlagged, StatusResolved},
	StatusFlagged:   {StatusBooked, StatusResolved},
	StatusBooked:    {StatusResolved},
}

// ParseReviewStatus validates a status name.
func ParseReviewStatus(s string) (ReviewStatus, error) {
	switch st := ReviewStatus(s); st {
	case StatusSubmitted, StatusFlagged, StatusBooked, StatusResolved:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// CanTransition reports whether the review workflow allows from -> to.
func (from ReviewStatus) CanTransition(to ReviewStatus) bool {
	return slices.Contains(reviewTransitions[from], to)
}

// ResponseRecord is the persisted outcome of a submitted session.
type ResponseRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId,omitempty"`
	PatientID   string    `json:"patientId"`
	PatientName string    `json:"patientName,omitempty"`
	Partition   Partition `json:"partition" validate:"required"`

	// Answers maps node ID to the chosen label.
	Answers map[string]string `json:"answers" validate:"required,min=1,dive,keys,required,endkeys,required"`

	Flags              []string          `json:"flags" validate:"dive,required"`
	Confidence         []ConfidenceEntry `json:"confidence" validate:"dive"`
	SuggestedCondition string            `json:"suggestedCondition" validate:"required"`
	TotalWeight        float64           `json:"totalWeight"`
	Classification     Classification    `json:"classification" validate:"required,classification"`

	SubmittedAt time.Time    `json:"submittedAt"`
	Status      ReviewStatus `json:"status"`
	ReviewedBy  string       `json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time   `json:"reviewedAt,omitempty"`
}

// NeedsFollowUp reports whether the response should appear on the flagged list.
func (r ResponseRecord) NeedsFollowUp() bool {
	return r.Classification == ClassDangerZone || r.Classification == ClassAlertZone
}

// Clone returns a deep copy of the record.
func (r ResponseRecord) Clone() ResponseRecord {
	out := r
	if r.Answers != nil {
		out.Answers = make(map[string]string, len(r.Answers))
		for k, v := range r.Answers {
			out.Answers[k] = v
		}
	}
	out.Flags = slices.Clone(r.Flags)
	out.Confidence = slices.Clone(r.Confidence)
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		out.ReviewedAt = &t
	}
	return out
}

// Review applies a status change, stamping the reviewer.
func (r ResponseRecord) Review(to ReviewStatus, reviewer string, at time.Time) (ResponseRecord, error) {
	if !r.Status.CanTransition(to) {
		return r, fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, r.Status, to)
	}
	out := r.Clone()
	out.Status = to
	out.ReviewedBy = reviewer
	out.ReviewedAt = &at
	return out, nil
}

// ResponseFilter narrows ListResponses. Zero fields match everything.
type ResponseFilter struct {
	PatientID      string
	Status         ReviewStatus
	Classification Classification
	Partition      Partition
	Limit          int
}

// Match reports whether the record satisfies the filter (Limit is ignored).
func (f ResponseFilter) Match(r ResponseRecord) bool {
	if f.PatientID != "" && r.PatientID != f.PatientID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Classification != "" && r.Classification != f.Classification {
		return false
	}
	if f.Partition.StageType != "" && r.Partition.StageType != f.Partition.StageType {
		return false
	}
	if f.Partition.StageRange != "" && r.Partition.StageRange != f.Partition.StageRange {
		return false
	}
	return true
}

// SortResponses orders records newest first, then by ID.
func SortResponses(records []ResponseRecord) {
	slices.SortStableFunc(records, func(a, b ResponseRecord) int {
		if c := b.SubmittedAt.Compare(a.SubmittedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}

// ApplyFilter filters, sorts and truncates a record list.
func ApplyFilter(records []ResponseRecord, f ResponseFilter) []ResponseRecord {
	out := make([]ResponseRecord, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	SortResponses(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
