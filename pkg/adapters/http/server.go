package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Veolinan/triage/internal/auth"
	"github.com/Veolinan/triage/internal/logging"
	"github.com/Veolinan/triage/internal/metrics"
	"github.com/Veolinan/triage/pkg/authoring"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/preview"
	"github.com/go-chi/chi/v5"
)

//go:embed openapi.yaml
var openAPISpec []byte

// OpenAPISpec returns the embedded OpenAPI document served at /openapi.yaml.
func OpenAPISpec() []byte {
	return openAPISpec
}

// Engine is the part of the triage engine the HTTP API drives.
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

	Response(ctx context.Context, id string) (domain.ResponseRecord, error)
	ListResponses(ctx context.Context, filter domain.ResponseFilter) ([]domain.ResponseRecord, error)
	Review(ctx context.Context, responseID string, to domain.ReviewStatus) (domain.ResponseRecord, error)

	OpenDraft(ctx context.Context, partition domain.Partition) (*authoring.Draft, error)
	SaveDraft(ctx context.Context, d *authoring.Draft) error
	Paths(ctx context.Context, partition domain.Partition) ([]preview.Path, error)
	Watch(ctx context.Context) (<-chan string, error)
}

// Server holds the handlers of the triage HTTP API.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	auth    *auth.Authenticator
	metrics *metrics.Metrics
	limiter *IPRateLimiter
	logger  *slog.Logger
	version string
}

// Option configures the handler built by NewHandler.
type Option func(*Server)

// WithAuthenticator verifies bearer tokens. Without one every request is
// anonymous and authoring writes and reviews are rejected.
func WithAuthenticator(a *auth.Authenticator) Option {
	return func(s *Server) {
		s.auth = a
	}
}

// WithMetrics instruments requests and exposes /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithRateLimit limits each client IP to rps requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps > 0 {
			s.limiter = NewIPRateLimiter(rps, burst)
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion is reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	server := &Server{
		Engine:  engine,
		Streams: NewStreamManager(),
		logger:  logging.NewNop(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(server)
	}
	server.Streams.logger = server.logger

	r := chi.NewRouter()
	r.Use(enableCORS)
	if server.limiter != nil {
		r.Use(server.limiter.Middleware)
	}
	if server.metrics != nil {
		r.Use(server.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", server.metrics.Handler())
	}
	if server.auth != nil {
		r.Use(server.auth.Middleware)
	}

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openAPISpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerHTML))
	})
	r.Get("/healthz", server.GetHealth)
	r.Get("/info", server.GetInfo)
	r.Get("/events", server.SubscribeEvents)

	r.Get("/stages", server.ListStages)
	r.Post("/validate", server.ValidateNodes)
	r.Get("/template", server.GetTemplate)

	r.Route("/partitions/{stageType}/{stageRange}", func(r chi.Router) {
		r.Get("/nodes", server.GetNodes)
		r.With(auth.RequireOperator).Put("/nodes", server.PutNodes)
		r.With(auth.RequireOperator).Post("/import", server.ImportWorkbook)
		r.Get("/preview/{kind}", server.GetPreview)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", server.CreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", server.GetSession)
			r.Get("/events", server.SubscribeSession)
			r.Post("/stage", server.SelectStage)
			r.Post("/range", server.SelectRange)
			r.Post("/load", server.LoadPartition)
			r.Post("/answer", server.Answer)
			r.Post("/submit", server.Submit)
		})
	})

	r.Route("/responses", func(r chi.Router) {
		r.Get("/", server.ListResponses)
		r.Get("/{id}", server.GetResponse)
		r.With(auth.RequireOperator).Post("/{id}/status", server.ReviewResponse)
	})

	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Triage API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// GetHealth handles the GET /healthz request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"version":     s.version,
		"api_version": "v1",
	})
}

// ListStages handles the GET /stages request.
func (s *Server) ListStages(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Engine.Catalog())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		s.writeError(w, r, badRequest("invalid request body", err))
		return false
	}
	return true
}

const maxBodySize = 1 << 20
