package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Veolinan/triage"
	"github.com/Veolinan/triage/internal/auth"
	"github.com/Veolinan/triage/internal/metrics"
	"github.com/Veolinan/triage/pkg/adapters/memory"
	"github.com/Veolinan/triage/pkg/authoring"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/ports/tests"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	triagehttp "github.com/Veolinan/triage/pkg/adapters/http"
)

const secret = "test-secret"

var _ triagehttp.Engine = (*triage.Engine)(nil)

type fixture struct {
	handler http.Handler
	token   string
}

func newFixture(t *testing.T, opts ...triagehttp.Option) *fixture {
	t.Helper()
	eng, err := triage.New("",
		triage.WithNodeStore(memory.NewNodeStoreFrom(tests.SampleNodes()...)),
		triage.WithIdentity(auth.ContextIdentity{}),
	)
	require.NoError(t, err)

	authn := auth.NewAuthenticator(secret)
	token, err := authn.Issue("nurse-7", "Nurse Seven", time.Hour)
	require.NoError(t, err)

	opts = append([]triagehttp.Option{triagehttp.WithAuthenticator(authn)}, opts...)
	return &fixture{handler: triagehttp.NewHandler(eng, opts...), token: token}
}

func (f *fixture) do(t *testing.T, method, path string, body any, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if authorized {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type sessionBody struct {
	ID         string               `json:"id"`
	Phase      domain.Phase         `json:"phase"`
	Question   *domain.QuestionNode `json:"question"`
	Options    []string             `json:"options"`
	Nodes      []domain.QuestionNode
	ResponseID string             `json:"responseId"`
	Assessment *domain.Assessment `json:"assessment"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details"`
}

var partitionPath = "/partitions/" + tests.SamplePartition.StageType + "/" + url.PathEscape(tests.SamplePartition.StageRange)

// walk drives a session up to its first question.
func (f *fixture) walk(t *testing.T, id string) sessionBody {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/sessions", map[string]string{"id": id, "patientId": "patient-1"}, false)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	s := decodeBody[sessionBody](t, rec)
	assert.Equal(t, domain.PhaseSelectingStage, s.Phase)
	assert.Equal(t, []string{domain.StagePregnant, domain.StagePostpartum}, s.Options)

	rec = f.do(t, http.MethodPost, "/sessions/"+id+"/stage", map[string]string{"stageType": domain.StagePregnant}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, decodeBody[sessionBody](t, rec).Options, tests.SamplePartition.StageRange)

	rec = f.do(t, http.MethodPost, "/sessions/"+id+"/range", map[string]string{"stageRange": tests.SamplePartition.StageRange}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.PhaseLoading, decodeBody[sessionBody](t, rec).Phase)

	rec = f.do(t, http.MethodPost, "/sessions/"+id+"/load", nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[sessionBody](t, rec)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)

	s := f.walk(t, "s1")
	require.Equal(t, domain.PhaseAnswering, s.Phase)
	require.NotNil(t, s.Question)
	assert.Equal(t, "Any bleeding?", s.Question.Text)
	assert.Equal(t, []string{"Yes", "No"}, s.Options)
	assert.Empty(t, s.Nodes, "the loaded partition is not sent to clients")

	rec := f.do(t, http.MethodPost, "/sessions/s1/answer", map[string]string{"answer": "yes"}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Severe pain?", decodeBody[sessionBody](t, rec).Question.Text)

	rec = f.do(t, http.MethodPost, "/sessions/s1/answer", map[string]any{"answer": 2}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s = decodeBody[sessionBody](t, rec)
	assert.Equal(t, domain.PhaseFinished, s.Phase)
	require.NotNil(t, s.Assessment)
	assert.Equal(t, domain.ClassAlertZone, s.Assessment.Classification)

	rec = f.do(t, http.MethodPost, "/sessions/s1/submit", nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s = decodeBody[sessionBody](t, rec)
	assert.Equal(t, domain.PhaseSubmitted, s.Phase)
	require.NotEmpty(t, s.ResponseID)

	rec = f.do(t, http.MethodGet, "/responses?patient=patient-1", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]domain.ResponseRecord](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, s.ResponseID, list[0].ID)
	assert.Equal(t, domain.ClassAlertZone, list[0].Classification)

	rec = f.do(t, http.MethodGet, "/responses?classification="+url.QueryEscape(string(domain.ClassDangerZone)), nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]domain.ResponseRecord](t, rec))

	rec = f.do(t, http.MethodGet, "/sessions/s1", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PhaseSubmitted, decodeBody[sessionBody](t, rec).Phase)
}

func TestSessionErrors(t *testing.T) {
	f := newFixture(t)
	f.walk(t, "s1")

	cases := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"Unknown Session", http.MethodGet, "/sessions/nope", nil, http.StatusNotFound, "NOT_FOUND"},
		{"Invalid Choice", http.MethodPost, "/sessions/s1/answer", map[string]string{"answer": "Maybe"}, http.StatusBadRequest, "INVALID_CHOICE"},
		{"Choice Out Of Range", http.MethodPost, "/sessions/s1/answer", map[string]int{"answer": 3}, http.StatusBadRequest, "INVALID_CHOICE"},
		{"Answer Not A String", http.MethodPost, "/sessions/s1/answer", map[string]bool{"answer": true}, http.StatusBadRequest, "BAD_REQUEST"},
		{"Submit Unfinished", http.MethodPost, "/sessions/s1/submit", nil, http.StatusConflict, "INVALID_TRANSITION"},
		{"Duplicate Session", http.MethodPost, "/sessions", map[string]string{"id": "s1"}, http.StatusConflict, "CONFLICT"},
		{"Unknown Status Filter", http.MethodGet, "/responses?status=lost", nil, http.StatusBadRequest, "INVALID_STATUS"},
		{"Unknown Response", http.MethodGet, "/responses/nope", nil, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, tc.method, tc.path, tc.body, false)
			assert.Equal(t, tc.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tc.wantErr, decodeBody[errorBody](t, rec).Code)
		})
	}

	t.Run("Unknown Stage", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/sessions", map[string]string{"id": "s2"}, false)
		require.Equal(t, http.StatusCreated, rec.Code)
		rec = f.do(t, http.MethodPost, "/sessions/s2/stage", map[string]string{"stageType": "menopause"}, false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "UNKNOWN_STAGE", decodeBody[errorBody](t, rec).Code)
	})

	t.Run("Malformed Body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPartitionNodes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, partitionPath+"/nodes", nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[triagehttp.PartitionNodes](t, rec)
	assert.Equal(t, "bleeding", got.Category)
	tests.AssertSameNodes(t, tests.SampleNodes(), got.Nodes)

	edited := triagehttp.PartitionNodes{Category: "bleeding", Nodes: tests.SampleNodes()}
	edited.Nodes[1].Text = "Severe abdominal pain?"

	t.Run("Anonymous Save Rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, partitionPath+"/nodes", edited, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Invalid Token Rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/stages", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Operator Saves", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, partitionPath+"/nodes", edited, true)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = f.do(t, http.MethodGet, partitionPath+"/nodes", nil, false)
		got := decodeBody[triagehttp.PartitionNodes](t, rec)
		require.Len(t, got.Nodes, 2)
		assert.Equal(t, "Severe abdominal pain?", got.Nodes[1].Text)
		assert.Equal(t, "nurse-7", got.Nodes[1].AuthoredBy)
	})

	t.Run("Invalid Graph Rejected", func(t *testing.T) {
		broken := triagehttp.PartitionNodes{Category: "bleeding", Nodes: tests.SampleNodes()}
		broken.Nodes[1].Text = ""
		rec := f.do(t, http.MethodPut, partitionPath+"/nodes", broken, true)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
		body := decodeBody[errorBody](t, rec)
		assert.Equal(t, "VALIDATION_ERROR", body.Code)
		assert.Contains(t, body.Details, "q-1")
	})

	t.Run("Unknown Partition", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/partitions/pregnant/"+url.PathEscape("10–12 months")+"/nodes", nil, false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "UNKNOWN_STAGE", decodeBody[errorBody](t, rec).Code)
	})
}

func TestValidateNodes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/validate", triagehttp.PartitionNodes{Category: "bleeding", Nodes: tests.SampleNodes()}, false)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[triagehttp.ValidationReport](t, rec)
	assert.True(t, report.Valid)
	assert.Zero(t, report.Count)

	nodes := tests.SampleNodes()
	nodes[0].Choices[0].LeadsTo = "missing"
	rec = f.do(t, http.MethodPost, "/validate", triagehttp.PartitionNodes{Nodes: nodes}, false)
	require.Equal(t, http.StatusOK, rec.Code)
	report = decodeBody[triagehttp.ValidationReport](t, rec)
	assert.False(t, report.Valid)
	assert.True(t, report.Issues.Has("q-0-c-0", "dangling_edge"))
	assert.True(t, report.Issues.Has("graph", "missing_category"))
}

func TestPreview(t *testing.T) {
	f := newFixture(t)

	t.Run("Paths", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, partitionPath+"/preview/paths", nil, false)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody[struct {
			Paths    []json.RawMessage             `json:"paths"`
			Outcomes map[domain.Classification]int `json:"outcomes"`
		}](t, rec)
		assert.Len(t, body.Paths, 3)
		assert.Equal(t, map[domain.Classification]int{
			domain.ClassDangerZone: 1,
			domain.ClassAlertZone:  1,
			domain.ClassLowRisk:    1,
		}, body.Outcomes)
	})

	t.Run("Mermaid", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, partitionPath+"/preview/mermaid", nil, false)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Body.String(), "graph TD\n"))
	})

	t.Run("Table", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, partitionPath+"/preview/table", nil, false)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Any bleeding?")
	})

	t.Run("Tree", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, partitionPath+"/preview/tree", nil, false)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "q1", decodeBody[map[string]any](t, rec)["nodeId"])
	})

	t.Run("Unknown Kind", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, partitionPath+"/preview/pdf", nil, false)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestTemplateAndImport(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/template", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	qs, cs, err := authoring.ReadZip(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	assert.Len(t, qs, 1)
	assert.Len(t, cs, 2)

	var zip bytes.Buffer
	require.NoError(t, authoring.ExportTable(tests.SampleNodes()).WriteZip(&zip))

	upload := func(authorized bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, partitionPath+"/import?category=bleeding", bytes.NewReader(zip.Bytes()))
		req.Header.Set("Content-Type", "application/zip")
		if authorized {
			req.Header.Set("Authorization", "Bearer "+f.token)
		}
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, upload(false).Code)

	rec = upload(true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[triagehttp.PartitionNodes](t, rec)
	require.Len(t, got.Nodes, 2)
	assert.Equal(t, "Any bleeding?", got.Nodes[0].Text)
	assert.NotEqual(t, "q1", got.Nodes[0].ID, "imported questions get fresh IDs")
}

func TestReviewResponse(t *testing.T) {
	f := newFixture(t)
	f.walk(t, "s1")
	f.do(t, http.MethodPost, "/sessions/s1/answer", map[string]string{"answer": "No"}, false)
	rec := f.do(t, http.MethodPost, "/sessions/s1/submit", nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := decodeBody[sessionBody](t, rec).ResponseID

	rec = f.do(t, http.MethodPost, "/responses/"+id+"/status", map[string]string{"status": "flagged"}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/responses/"+id+"/status", map[string]string{"status": "flagged"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[domain.ResponseRecord](t, rec)
	assert.Equal(t, domain.StatusFlagged, got.Status)
	assert.Equal(t, "nurse-7", got.ReviewedBy)

	rec = f.do(t, http.MethodPost, "/responses/"+id+"/status", map[string]string{"status": "submitted"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_STATUS", decodeBody[errorBody](t, rec).Code)

	rec = f.do(t, http.MethodGet, "/responses?status=flagged", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.ResponseRecord](t, rec), 1)
}

func TestMiddleware(t *testing.T) {
	t.Run("CORS Preflight", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodOptions, "/sessions", nil, false)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("Rate Limit", func(t *testing.T) {
		f := newFixture(t, triagehttp.WithRateLimit(1, 2))
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil, false).Code)
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil, false).Code)
		rec := f.do(t, http.MethodGet, "/healthz", nil, false)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		assert.Equal(t, "RATE_LIMITED", decodeBody[errorBody](t, rec).Code)
	})

	t.Run("Metrics", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		f := newFixture(t, triagehttp.WithMetrics(m))
		f.do(t, http.MethodGet, "/stages", nil, false)

		rec := f.do(t, http.MethodGet, "/metrics", nil, false)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `route="/stages"`)
	})

	t.Run("Info", func(t *testing.T) {
		f := newFixture(t, triagehttp.WithVersion("1.2.3"))
		rec := f.do(t, http.MethodGet, "/info", nil, false)
		assert.Equal(t, "1.2.3", decodeBody[map[string]string](t, rec)["version"])
	})
}

func TestEvents(t *testing.T) {
	t.Run("Bank Watch Unsupported", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodGet, "/events", nil, false)
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})

	t.Run("Session Updates", func(t *testing.T) {
		f := newFixture(t)
		srv := httptest.NewServer(f.handler)
		defer srv.Close()

		rec := f.do(t, http.MethodPost, "/sessions", map[string]string{"id": "s1"}, false)
		require.Equal(t, http.StatusCreated, rec.Code)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/s1/events", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		reader := bufio.NewReader(resp.Body)
		readEvent := func() (event, data string) {
			for {
				line, err := reader.ReadString('\n')
				require.NoError(t, err)
				line = strings.TrimRight(line, "\n")
				switch {
				case strings.HasPrefix(line, "event: "):
					event = strings.TrimPrefix(line, "event: ")
				case strings.HasPrefix(line, "data: "):
					data = strings.TrimPrefix(line, "data: ")
				case line == "":
					return event, data
				}
			}
		}

		event, data := readEvent()
		assert.Equal(t, "ping", event)
		assert.Equal(t, "connected", data)

		rec = f.do(t, http.MethodPost, "/sessions/s1/stage", map[string]string{"stageType": domain.StagePregnant}, false)
		require.Equal(t, http.StatusOK, rec.Code)

		event, data = readEvent()
		assert.Equal(t, "session", event)
		assert.Contains(t, data, `"phase":"selecting_range"`)
	})
}

func TestStreamManager(t *testing.T) {
	sm := triagehttp.NewStreamManager()
	ch, cancel := sm.Subscribe("s1")

	sm.Broadcast("s1", "hello")
	sm.Broadcast("s2", "ignored")
	assert.Equal(t, "hello", <-ch)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	sm.Broadcast("s1", "after cancel")
}
