package http

import (
	"bytes"
	"io"
	"net/http"
	"net/url"

	"github.com/Veolinan/triage/pkg/authoring"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/graph"
	"github.com/Veolinan/triage/pkg/preview"
	"github.com/go-chi/chi/v5"
)

// PartitionNodes is the body of GET and PUT /partitions/{stageType}/{stageRange}/nodes.
type PartitionNodes struct {
	Partition domain.Partition      `json:"partition"`
	Category  string                `json:"category"`
	Nodes     []domain.QuestionNode `json:"nodes"`
}

// ValidationReport is the body returned by POST /validate.
type ValidationReport struct {
	Valid  bool         `json:"valid"`
	Count  int          `json:"count"`
	Issues graph.Result `json:"issues"`
}

func partitionParam(r *http.Request) domain.Partition {
	unescape := func(s string) string {
		if v, err := url.PathUnescape(s); err == nil {
			return v
		}
		return s
	}
	return domain.Partition{
		StageType:  unescape(chi.URLParam(r, "stageType")),
		StageRange: unescape(chi.URLParam(r, "stageRange")),
	}
}

// draftFrom builds a draft from submitted nodes. Nodes without a partition
// inherit p.
func draftFrom(p domain.Partition, category string, nodes []domain.QuestionNode) *authoring.Draft {
	d := authoring.NewDraft(p, category)
	for _, n := range nodes {
		if n.StageType == "" && n.StageRange == "" {
			n.StageType, n.StageRange = p.StageType, p.StageRange
		}
		d.Nodes = append(d.Nodes, n)
	}
	return d
}

// GetNodes handles the GET /partitions/{stageType}/{stageRange}/nodes request.
func (s *Server) GetNodes(w http.ResponseWriter, r *http.Request) {
	d, err := s.Engine.OpenDraft(r.Context(), partitionParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, PartitionNodes{Partition: d.Partition, Category: d.Category, Nodes: d.Nodes})
}

// PutNodes handles the PUT /partitions/{stageType}/{stageRange}/nodes request.
// The submitted set replaces the partition when it validates.
func (s *Server) PutNodes(w http.ResponseWriter, r *http.Request) {
	var body PartitionNodes
	if !s.decode(w, r, &body) {
		return
	}
	d := draftFrom(partitionParam(r), body.Category, body.Nodes)
	if err := s.Engine.SaveDraft(r.Context(), d); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, PartitionNodes{Partition: d.Partition, Category: d.Category, Nodes: d.Nodes})
}

// ValidateNodes handles the POST /validate request. Nothing is saved.
func (s *Server) ValidateNodes(w http.ResponseWriter, r *http.Request) {
	var body PartitionNodes
	if !s.decode(w, r, &body) {
		return
	}
	p := body.Partition
	if p.IsZero() && len(body.Nodes) > 0 {
		p = body.Nodes[0].Partition()
	}
	res := draftFrom(p, body.Category, body.Nodes).ValidateAll()
	s.writeJSON(w, http.StatusOK, ValidationReport{Valid: res.OK(), Count: res.Count(), Issues: res})
}

// GetPreview handles the GET /partitions/{stageType}/{stageRange}/preview/{kind}
// request for kind paths, tree, mermaid or table.
func (s *Server) GetPreview(w http.ResponseWriter, r *http.Request) {
	p := partitionParam(r)
	kind := chi.URLParam(r, "kind")

	if kind == "paths" {
		paths, err := s.Engine.Paths(r.Context(), p)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"paths":    paths,
			"outcomes": preview.Outcomes(paths),
		})
		return
	}

	d, err := s.Engine.OpenDraft(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	switch kind {
	case "tree":
		tree, err := preview.BuildTree(d.Nodes)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, tree)
	case "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(preview.Mermaid(d.Nodes, nil)))
	case "table":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(preview.Table(d.Nodes)))
	default:
		s.writeError(w, r, &APIError{Code: "NOT_FOUND", Message: "unknown preview " + kind, HTTPStatus: http.StatusNotFound})
	}
}

// GetTemplate handles the GET /template request: a zip with the two CSV
// sheets of the import workbook.
func (s *Server) GetTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="triage-template.zip"`)
	if err := authoring.Template().WriteZip(w); err != nil {
		s.logger.ErrorContext(r.Context(), "template write failed", "err", err)
	}
}

// ImportWorkbook handles the POST /partitions/{stageType}/{stageRange}/import
// request. The body is a workbook zip as served by /template; the imported
// draft replaces the partition when it validates.
func (s *Server) ImportWorkbook(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err != nil {
		s.writeError(w, r, badRequest("failed to read workbook", err))
		return
	}
	qs, cs, err := authoring.ReadZip(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		s.writeError(w, r, badRequest(err.Error(), err))
		return
	}
	d, err := authoring.ImportTable(partitionParam(r), r.URL.Query().Get("category"), qs, cs)
	if err != nil {
		s.writeError(w, r, badRequest(err.Error(), err))
		return
	}
	if err := s.Engine.SaveDraft(r.Context(), d); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, PartitionNodes{Partition: d.Partition, Category: d.Category, Nodes: d.Nodes})
}

const maxUploadSize = 10 << 20
