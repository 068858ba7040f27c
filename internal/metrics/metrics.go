// Package metrics exposes Prometheus instrumentation for the triage engine,
// the authoring tools and the HTTP API.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors. Build one per registry; tests use a fresh
// prometheus.NewRegistry to stay isolated.
type Metrics struct {
	gatherer prometheus.Gatherer

	SessionsStarted   prometheus.Counter
	Answers           prometheus.Counter
	SessionsFinished  *prometheus.CounterVec
	Submissions       *prometheus.CounterVec
	GraphSaves        *prometheus.CounterVec
	PartitionLoad     *prometheus.HistogramVec
	ReviewTransitions *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "triage_sessions_started_total",
			Help: "Total number of triage sessions started",
		}),
		Answers: f.NewCounter(prometheus.CounterOpts{
			Name: "triage_answers_total",
			Help: "Total number of recorded answers",
		}),
		SessionsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_sessions_finished_total",
			Help: "Sessions that reached a terminal choice",
		}, []string{"classification"}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_responses_submitted_total",
			Help: "Responses persisted",
		}, []string{"classification"}),
		GraphSaves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_graph_saves_total",
			Help: "Authoring saves by outcome",
		}, []string{"result"}),
		PartitionLoad: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triage_partition_load_seconds",
			Help:    "Partition fetch latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"result"}),
		ReviewTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_review_transitions_total",
			Help: "Response review status changes",
		}, []string{"to"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triage_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "triage_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		}),
	}
}

// Hooks returns engine lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionStart: func(context.Context, *domain.EventBase) {
			m.SessionsStarted.Inc()
		},
		OnPartitionLoad: func(_ context.Context, e *domain.LoadEvent) {
			result := "ok"
			if e.Err != nil {
				result = "error"
			}
			m.PartitionLoad.WithLabelValues(result).Observe(e.Duration.Seconds())
		},
		OnAnswer: func(context.Context, *domain.AnswerEvent) {
			m.Answers.Inc()
		},
		OnFinish: func(_ context.Context, e *domain.OutcomeEvent) {
			m.SessionsFinished.WithLabelValues(string(e.Classification)).Inc()
		},
		OnSubmit: func(_ context.Context, e *domain.OutcomeEvent) {
			m.Submissions.WithLabelValues(string(e.Classification)).Inc()
		},
	}
}

// RecordGraphSave counts an authoring save attempt.
func (m *Metrics) RecordGraphSave(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.GraphSaves.WithLabelValues(result).Inc()
}

// RecordReview counts a review status change.
func (m *Metrics) RecordReview(to domain.ReviewStatus) {
	m.ReviewTransitions.WithLabelValues(string(to)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request count and latency labelled by the chi route
// pattern, which keeps cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streams working behind the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
