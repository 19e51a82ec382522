// Package server exposes the Bridge Story pipeline and project endpoints
// over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bridgefund/internal/logging"
	"bridgefund/internal/pipeline"
	"bridgefund/internal/projects"
	"bridgefund/internal/research"
	"bridgefund/internal/store"
)

// Runner runs one pipeline stage.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.Response
}

// Drafts persists drafts and publishes projects.
type Drafts interface {
	SaveDraft(ctx context.Context, req projects.SaveDraftRequest) (projects.SaveResult, error)
	Publish(ctx context.Context, req projects.PublishRequest) (projects.SaveResult, error)
}

// Researcher finds sources for claims.
type Researcher interface {
	Sources(ctx context.Context, claims []string) ([]research.Source, error)
}

// Directory reads projects and user roles.
type Directory interface {
	GetProject(ctx context.Context, id string) (*store.Project, error)
	ListProjects(ctx context.Context, status string) ([]*store.Project, error)
	GetUserRole(ctx context.Context, userID string) (string, error)
}

// Options configures the HTTP surface.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	// UserHeader carries the caller id injected by the identity provider.
	UserHeader string
	AdminRole  string
}

// Server wires the process-wide collaborators into a chi router.
type Server struct {
	opts       Options
	pipeline   Runner
	drafts     Drafts
	researcher Researcher
	directory  Directory
	router     chi.Router
}

// New creates a Server. All collaborators are shared across requests.
func New(opts Options, runner Runner, drafts Drafts, researcher Researcher, directory Directory) *Server {
	if opts.UserHeader == "" {
		opts.UserHeader = "X-User-Id"
	}
	if opts.AdminRole == "" {
		opts.AdminRole = store.RoleAdmin
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		opts:       opts,
		pipeline:   runner,
		drafts:     drafts,
		researcher: researcher,
		directory:  directory,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limitBody)

		r.Post("/ai/plan", s.handlePlan)
		r.Post("/research", s.handleResearch)

		r.Route("/projects", func(r chi.Router) {
			r.Post("/save-draft", s.handleSaveDraft)
			r.Post("/publish", s.handlePublish)
			r.Get("/{id}", s.handleGetProject)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireRole(s.opts.AdminRole))
			r.Get("/projects", s.handleListProjects)
		})
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Server("listening on %s", s.opts.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Server("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
