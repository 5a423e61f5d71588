package http

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/couchcryptid/field-trial-form/internal/domain"
	"github.com/couchcryptid/field-trial-form/internal/observability"
	"github.com/couchcryptid/field-trial-form/internal/views"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionCookie names the cookie carrying the session ID.
const SessionCookie = "trialform_session"

const maxFormBytes = 64 << 10

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker = sharedobs.ReadinessChecker

// FormController applies the form's actions to session state.
type FormController interface {
	Submit(ctx context.Context, state domain.SessionState, input domain.FormInput) domain.SessionState
	Reset(state domain.SessionState) domain.SessionState
}

// SessionStore holds per-browser form state.
type SessionStore interface {
	Create() string
	Exists(id string) bool
	Get(id string) (domain.SessionState, bool)
	Update(id string, fn func(domain.SessionState) domain.SessionState) (domain.SessionState, bool)
}

// PageRenderer writes the form page.
type PageRenderer interface {
	RenderPage(w io.Writer, page views.Page) error
}

// Deps are the collaborators behind the server's routes. A nil Ready
// reports the service as always ready.
type Deps struct {
	Form     FormController
	Sessions SessionStore
	Pages    PageRenderer
	Ready    ReadinessChecker
	Metrics  *observability.Metrics
}

// Server serves the trial form plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer    *http.Server
	deps          Deps
	submitTimeout time.Duration
	logger        *slog.Logger
}

// NewServer creates the HTTP server. A submission's enrichment calls are cut
// off at nine tenths of writeTimeout so the page is still written.
func NewServer(addr string, writeTimeout time.Duration, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	if deps.Ready == nil {
		deps.Ready = alwaysReady{}
	}

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: writeTimeout,
			IdleTimeout:  60 * time.Second,
		},
		deps:          deps,
		submitTimeout: writeTimeout - writeTimeout/10,
		logger:        logger,
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /submit", s.handleSubmit)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /weather.csv", s.handleWeatherCSV)

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type alwaysReady struct{}

func (alwaysReady) CheckReadiness(context.Context) error { return nil }
