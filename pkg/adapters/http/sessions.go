package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/runner"
	"github.com/go-chi/chi/v5"
)

// SessionView is the client-facing state of a session. The loaded partition
// is left out; the current question is inlined instead.
type SessionView struct {
	*domain.Session
	Question *domain.QuestionNode `json:"question,omitempty"`
	Options  []string             `json:"options,omitempty"`
}

func (s *Server) view(r *http.Request, sess *domain.Session) SessionView {
	out := *sess
	out.Nodes = nil
	v := SessionView{Session: &out}

	switch sess.Phase {
	case domain.PhaseSelectingStage:
		v.Options = s.Engine.Catalog().Types()
	case domain.PhaseSelectingRange:
		v.Options, _ = s.Engine.Catalog().Ranges(sess.Partition.StageType)
	case domain.PhaseAnswering:
		if q, err := s.Engine.Current(r.Context(), sess.ID); err == nil {
			v.Question = &q
			for _, c := range q.Choices {
				v.Options = append(v.Options, c.Label)
			}
		}
	}
	return v
}

type createSessionRequest struct {
	ID          string `json:"id"`
	PatientID   string `json:"patientId"`
	PatientName string `json:"patientName"`
}

// CreateSession handles the POST /sessions request.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if !s.decode(w, r, &body) {
		return
	}
	sess, err := s.Engine.Start(r.Context(), body.ID, body.PatientID, body.PatientName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, s.view(r, sess))
}

// GetSession handles the GET /sessions/{id} request.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Engine.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(r, sess))
}

// SelectStage handles the POST /sessions/{id}/stage request.
func (s *Server) SelectStage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StageType string `json:"stageType"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	sess, err := s.Engine.SelectStage(r.Context(), chi.URLParam(r, "id"), body.StageType)
	s.respondSession(w, r, sess, err)
}

// SelectRange handles the POST /sessions/{id}/range request.
func (s *Server) SelectRange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StageRange string `json:"stageRange"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	sess, err := s.Engine.SelectRange(r.Context(), chi.URLParam(r, "id"), body.StageRange)
	s.respondSession(w, r, sess, err)
}

// LoadPartition handles the POST /sessions/{id}/load request.
func (s *Server) LoadPartition(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Engine.Load(r.Context(), chi.URLParam(r, "id"))
	s.respondSession(w, r, sess, err)
}

// Answer handles the POST /sessions/{id}/answer request. The answer is a
// choice label or its 1-based number.
func (s *Server) Answer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Answer json.RawMessage `json:"answer"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	input, err := answerInput(body.Answer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if input, err = runner.SanitizeInput(input); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.Engine.Answer(r.Context(), chi.URLParam(r, "id"), input)
	s.respondSession(w, r, sess, err)
}

// answerInput accepts "Yes" as well as 2.
func answerInput(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", badRequest("answer must be a choice label or number", nil)
}

// Submit handles the POST /sessions/{id}/submit request.
func (s *Server) Submit(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Engine.Submit(r.Context(), chi.URLParam(r, "id"))
	s.respondSession(w, r, sess, err)
}

// respondSession writes the outcome of a transition and notifies session
// subscribers when the state changed. A load failure still returns the
// session, now in the error phase.
func (s *Server) respondSession(w http.ResponseWriter, r *http.Request, sess *domain.Session, err error) {
	if sess != nil && (err == nil || errors.Is(err, domain.ErrLoadFailure) || errors.Is(err, domain.ErrMalformedGraph)) {
		s.publish(r, sess)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(r, sess))
}

func (s *Server) publish(r *http.Request, sess *domain.Session) {
	data, err := json.Marshal(s.view(r, sess))
	if err != nil {
		s.logger.Error("session event encode failed", "session_id", sess.ID, "err", err)
		return
	}
	s.Streams.Broadcast(sess.ID, string(data))
}
