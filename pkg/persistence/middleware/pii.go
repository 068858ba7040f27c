package middleware

import (
	"context"
	"regexp"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/ports"
)

// Mask replaces masked values.
const Mask = "***"

type piiMiddleware struct {
	next     ports.ResponseStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks values before they are
// written. Patterns are matched against the field name "patientName" and
// against each answer key (the question ID), so a bank can mark identifying
// questions by naming convention.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.ResponseStore) ports.ResponseStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

// mask works on a copy; the caller's record is left untouched.
func (m *piiMiddleware) mask(record domain.ResponseRecord) domain.ResponseRecord {
	cloned := record.Clone()
	if cloned.PatientName != "" && m.matches("patientName") {
		cloned.PatientName = Mask
	}
	for k := range cloned.Answers {
		if m.matches(k) {
			cloned.Answers[k] = Mask
		}
	}
	return cloned
}

func (m *piiMiddleware) InsertResponse(ctx context.Context, record domain.ResponseRecord) (string, error) {
	return m.next.InsertResponse(ctx, m.mask(record))
}

func (m *piiMiddleware) GetResponse(ctx context.Context, id string) (domain.ResponseRecord, error) {
	return m.next.GetResponse(ctx, id)
}

func (m *piiMiddleware) ListResponses(ctx context.Context, filter domain.ResponseFilter) ([]domain.ResponseRecord, error) {
	return m.next.ListResponses(ctx, filter)
}

func (m *piiMiddleware) UpdateResponse(ctx context.Context, record domain.ResponseRecord) error {
	return m.next.UpdateResponse(ctx, m.mask(record))
}
