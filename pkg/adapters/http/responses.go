package http

import (
	"net/http"
	"strconv"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// ListResponses handles the GET /responses request. Supported query
// parameters: patient, status, classification, stageType, stageRange, limit.
func (s *Server) ListResponses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ResponseFilter{
		PatientID:      q.Get("patient"),
		Classification: domain.Classification(q.Get("classification")),
		Partition: domain.Partition{
			StageType:  q.Get("stageType"),
			StageRange: q.Get("stageRange"),
		},
	}
	if v := q.Get("status"); v != "" {
		st, err := domain.ParseReviewStatus(v)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		filter.Status = st
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, badRequest("limit must be a non-negative integer", err))
			return
		}
		filter.Limit = n
	}

	records, err := s.Engine.ListResponses(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.ResponseRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

// GetResponse handles the GET /responses/{id} request.
func (s *Server) GetResponse(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Engine.Response(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// ReviewResponse handles the POST /responses/{id}/status request.
func (s *Server) ReviewResponse(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	to, err := domain.ParseReviewStatus(body.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.Engine.Review(r.Context(), chi.URLParam(r, "id"), to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}
