package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Veolinan/triage"
	"github.com/Veolinan/triage/internal/logging"
	"github.com/Veolinan/triage/pkg/authoring"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/graph"
	"github.com/Veolinan/triage/pkg/preview"
	"github.com/Veolinan/triage/pkg/runner"
	"github.com/Veolinan/triage/pkg/scoring"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Engine is the part of the triage engine exposed as MCP tools.
type Engine interface {
	Catalog() domain.StageCatalog
	Start(ctx context.Context, sessionID, patientID, patientName string) (*domain.Session, error)
	Session(ctx context.Context, sessionID string) (*domain.Session, error)
	SelectStage(ctx context.Context, sessionID, stageType string) (*domain.Session, error)
	SelectRange(ctx context.Context, sessionID, stageRange string) (*domain.Session, error)
	Load(ctx context.Context, sessionID string) (*domain.Session, error)
	Current(ctx context.Context, sessionID string) (domain.QuestionNode, error)
	Answer(ctx context.Context, sessionID, input string) (*domain.Session, error)
	Submit(ctx context.Context, sessionID string) (*domain.Session, error)
	OpenDraft(ctx context.Context, partition domain.Partition) (*authoring.Draft, error)
	Paths(ctx context.Context, partition domain.Partition) ([]preview.Path, error)
}

// SessionResponse is the state returned by the session tools.
type SessionResponse struct {
	SessionID  string             `json:"sessionId" jsonschema_description:"ID to pass to answer_question"`
	Phase      domain.Phase       `json:"phase" jsonschema_description:"Current phase of the session"`
	Question   string             `json:"question,omitempty" jsonschema_description:"Question awaiting an answer"`
	Options    []string           `json:"options,omitempty" jsonschema_description:"Allowed answers"`
	Assessment *domain.Assessment `json:"assessment,omitempty" jsonschema_description:"Scored outcome once the questionnaire is finished"`
	ResponseID string             `json:"responseId,omitempty" jsonschema_description:"Stored response once submitted"`
	Error      string             `json:"error,omitempty" jsonschema_description:"Reason the session is in the error phase"`
	Partition  domain.Partition   `json:"partition"`
}

// ValidationResponse is the result of validate_graph.
type ValidationResponse struct {
	Valid  bool         `json:"valid"`
	Count  int          `json:"count"`
	Issues graph.Result `json:"issues" jsonschema_description:"Problems keyed by address (graph, q-0, q-0-c-1)"`
}

// PathsResponse is the result of enumerate_paths.
type PathsResponse struct {
	Paths    []preview.Path                `json:"paths"`
	Outcomes map[domain.Classification]int `json:"outcomes" jsonschema_description:"Number of paths per classification"`
}

// Server wraps the triage Engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("triage-mcp", strings.TrimSpace(triage.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP protocol over SSE until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func partitionArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("stage_type", mcp.Required(), mcp.Description("Stage type, e.g. pregnant or postpartum")),
		mcp.WithString("stage_range", mcp.Required(), mcp.Description("Stage range, e.g. 1–3 months")),
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_stages",
		mcp.WithDescription("List the stage types and ranges a questionnaire can be scoped to."),
	), s.handleListStages)

	s.mcpServer.AddTool(mcp.NewTool("validate_graph",
		append([]mcp.ToolOption{
			mcp.WithDescription("Validate a question graph without saving it."),
			mcp.WithString("nodes", mcp.Required(), mcp.Description("JSON array of question nodes")),
			mcp.WithString("category", mcp.Description("Category the questions are filed under")),
			mcp.WithOutputSchema[ValidationResponse](),
		}, partitionArgs()...)...,
	), mcp.NewStructuredToolHandler(s.handleValidate))

	s.mcpServer.AddTool(mcp.NewTool("enumerate_paths",
		append([]mcp.ToolOption{
			mcp.WithDescription("List every path through a stored questionnaire with its projected classification."),
			mcp.WithOutputSchema[PathsResponse](),
		}, partitionArgs()...)...,
	), mcp.NewStructuredToolHandler(s.handlePaths))

	s.mcpServer.AddTool(mcp.NewTool("render_mermaid",
		append([]mcp.ToolOption{
			mcp.WithDescription("Render a stored questionnaire as a Mermaid flowchart."),
		}, partitionArgs()...)...,
	), s.handleMermaid)

	s.mcpServer.AddTool(mcp.NewTool("classify",
		mcp.WithDescription("Score a set of flags and risk levels the way a finished questionnaire is scored."),
		mcp.WithArray("flags", mcp.Required(), mcp.Description("Flags in the order they were raised; repeats count"), mcp.WithStringItems()),
		mcp.WithArray("risk_levels", mcp.Description("Risk levels of the chosen answers (low, alert, danger)"), mcp.WithStringItems()),
		mcp.WithNumber("total_weight", mcp.Description("Sum of the weights of the chosen answers")),
		mcp.WithOutputSchema[domain.Assessment](),
	), mcp.NewStructuredToolHandler(s.handleClassify))

	s.mcpServer.AddTool(mcp.NewTool("start_session",
		append([]mcp.ToolOption{
			mcp.WithDescription("Start a triage session for a patient and load the questionnaire of the given stage."),
			mcp.WithString("patient_id", mcp.Description("Patient the answers belong to")),
			mcp.WithString("session_id", mcp.Description("Session ID (generated when omitted)")),
			mcp.WithOutputSchema[SessionResponse](),
		}, partitionArgs()...)...,
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("answer_question",
		mcp.WithDescription("Answer the current question of a session. The response is submitted once the questionnaire ends."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("answer", mcp.Required(), mcp.Description("Choice label or its 1-based number")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleAnswer))

	s.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Read the state of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetSession))
}

type partitionRequest struct {
	StageType  string `json:"stage_type"`
	StageRange string `json:"stage_range"`
}

func (p partitionRequest) partition() domain.Partition {
	return domain.Partition{StageType: p.StageType, StageRange: p.StageRange}
}

type validateRequest struct {
	partitionRequest
	Nodes    string `json:"nodes"`
	Category string `json:"category"`
}

type classifyRequest struct {
	Flags       []string `json:"flags"`
	RiskLevels  []string `json:"risk_levels"`
	TotalWeight float64  `json:"total_weight"`
}

type startRequest struct {
	partitionRequest
	PatientID string `json:"patient_id"`
	SessionID string `json:"session_id"`
}

type answerRequest struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

func (s *Server) handleListStages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(s.engine.Catalog())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest, args validateRequest) (ValidationResponse, error) {
	var nodes []domain.QuestionNode
	if err := json.Unmarshal([]byte(args.Nodes), &nodes); err != nil {
		return ValidationResponse{}, fmt.Errorf("nodes must be a JSON array of questions: %w", err)
	}
	d := authoring.NewDraft(args.partition(), args.Category)
	d.Nodes = nodes
	res := d.ValidateAll()
	return ValidationResponse{Valid: res.OK(), Count: res.Count(), Issues: res}, nil
}

func (s *Server) handlePaths(ctx context.Context, request mcp.CallToolRequest, args partitionRequest) (PathsResponse, error) {
	paths, err := s.engine.Paths(ctx, args.partition())
	if err != nil {
		return PathsResponse{}, err
	}
	return PathsResponse{Paths: paths, Outcomes: preview.Outcomes(paths)}, nil
}

func (s *Server) handleMermaid(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := partitionRequest{
		StageType:  request.GetString("stage_type", ""),
		StageRange: request.GetString("stage_range", ""),
	}
	d, err := s.engine.OpenDraft(ctx, args.partition())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(preview.Mermaid(d.Nodes, nil)), nil
}

func (s *Server) handleClassify(ctx context.Context, request mcp.CallToolRequest, args classifyRequest) (domain.Assessment, error) {
	levels := make([]domain.RiskLevel, 0, len(args.RiskLevels))
	for _, l := range args.RiskLevels {
		level := domain.RiskLevel(strings.ToLower(strings.TrimSpace(l)))
		if !level.Valid() {
			return domain.Assessment{}, fmt.Errorf("unknown risk level %q", l)
		}
		levels = append(levels, level)
	}
	return scoring.Assess(domain.FlagSet{}.Add(args.Flags...), args.TotalWeight, levels), nil
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest, args startRequest) (SessionResponse, error) {
	sess, err := s.engine.Start(ctx, args.SessionID, args.PatientID, "")
	if err != nil {
		return SessionResponse{}, err
	}
	if sess, err = s.engine.SelectStage(ctx, sess.ID, args.StageType); err != nil {
		return SessionResponse{}, err
	}
	if sess, err = s.engine.SelectRange(ctx, sess.ID, args.StageRange); err != nil {
		return SessionResponse{}, err
	}
	sess, err = s.engine.Load(ctx, sess.ID)
	if err != nil && sess == nil {
		return SessionResponse{}, err
	}
	if err != nil {
		s.logger.WarnContext(ctx, "MCP start_session: load failed", "session_id", sess.ID, "err", err)
	}
	return s.respond(ctx, sess), nil
}

func (s *Server) handleAnswer(ctx context.Context, request mcp.CallToolRequest, args answerRequest) (SessionResponse, error) {
	clean, err := runner.SanitizeInput(args.Answer)
	if err != nil {
		s.logger.WarnContext(ctx, "MCP answer_question: input rejected", "err", err, "size", len(args.Answer))
		return SessionResponse{}, fmt.Errorf("input rejected: %w", err)
	}
	sess, err := s.engine.Answer(ctx, args.SessionID, clean)
	if err != nil {
		return SessionResponse{}, err
	}
	if sess.Phase == domain.PhaseFinished {
		if sess, err = s.engine.Submit(ctx, sess.ID); err != nil {
			return SessionResponse{}, fmt.Errorf("submit failed: %w", err)
		}
	}
	return s.respond(ctx, sess), nil
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest, args answerRequest) (SessionResponse, error) {
	sess, err := s.engine.Session(ctx, args.SessionID)
	if err != nil {
		return SessionResponse{}, err
	}
	return s.respond(ctx, sess), nil
}

func (s *Server) respond(ctx context.Context, sess *domain.Session) SessionResponse {
	out := SessionResponse{
		SessionID:  sess.ID,
		Phase:      sess.Phase,
		Assessment: sess.Assessment,
		ResponseID: sess.ResponseID,
		Error:      sess.LastError,
		Partition:  sess.Partition,
	}
	if sess.Phase == domain.PhaseAnswering {
		if q, err := s.engine.Current(ctx, sess.ID); err == nil {
			out.Question = q.Text
			for _, c := range q.Choices {
				out.Options = append(out.Options, c.Label)
			}
		}
	}
	return out
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("triage://stages", "Stage catalog",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(s.engine.Catalog())
		if err != nil {
			return nil, fmt.Errorf("failed to encode catalog: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "triage://stages",
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})

	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(
		"triage://partitions/{stage_type}/{stage_range}",
		"Question graph of a partition",
		mcp.WithTemplateMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		p, err := parsePartitionURI(request.Params.URI)
		if err != nil {
			return nil, err
		}
		d, err := s.engine.OpenDraft(ctx, p)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(d.Nodes)
		if err != nil {
			return nil, fmt.Errorf("failed to encode nodes: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func parsePartitionURI(uri string) (domain.Partition, error) {
	rest, ok := strings.CutPrefix(uri, "triage://partitions/")
	if !ok {
		return domain.Partition{}, fmt.Errorf("unexpected resource %q", uri)
	}
	stageType, stageRange, ok := strings.Cut(rest, "/")
	if !ok || stageType == "" || stageRange == "" {
		return domain.Partition{}, fmt.Errorf("unexpected resource %q", uri)
	}
	if v, err := url.PathUnescape(stageRange); err == nil {
		stageRange = v
	}
	return domain.Partition{StageType: stageType, StageRange: stageRange}, nil
}
