package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/swaggo/swag"

	_ "github.com/edvin/pgbackup/internal/api/docs" // registers the OpenAPI document
	"github.com/edvin/pgbackup/internal/api/handler"
	mw "github.com/edvin/pgbackup/internal/api/middleware"
	"github.com/edvin/pgbackup/internal/backup"
	"github.com/edvin/pgbackup/internal/logging"
	"github.com/edvin/pgbackup/internal/model"
)

// Connections stores and loads connections.
type Connections interface {
	handler.ConnectionCreator
	handler.ConnectionGetter
}

// Deps are the services behind the routes. Backups is usually a
// *backup.Manager; Streams defaults to wrapping it when it is one.
type Deps struct {
	Backups     handler.BackupService
	Streams     handler.StreamService
	Policies    handler.PolicyStore
	Connections Connections
	Credentials handler.CredentialCreator
	Keys        mw.Authenticator
	// Audit records mutating requests; AuditLogs serves them back. Both
	// are optional.
	Audit     *mw.AuditLogger
	AuditLogs handler.AuditLister
	// Ready reports whether the state database is reachable.
	Ready func(ctx context.Context) error

	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	// MaxFrameSize bounds one websocket message of a pushed restore.
	MaxFrameSize int64
	// OriginPatterns lists browser origins, besides the API's own host,
	// allowed to open restore websockets.
	OriginPatterns []string
}

type Server struct {
	router chi.Router
	logger zerolog.Logger
	deps   Deps
}

func NewServer(logger zerolog.Logger, deps Deps) *Server {
	if deps.Streams == nil {
		if m, ok := deps.Backups.(*backup.Manager); ok {
			deps.Streams = ManagerStreams{M: m}
		}
	}
	if deps.Registerer == nil {
		deps.Registerer = prometheus.DefaultRegisterer
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.MaxFrameSize <= 0 {
		deps.MaxFrameSize = 16 << 20
	}

	s := &Server{
		router: chi.NewRouter(),
		logger: logging.Component(logger, "api"),
		deps:   deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics(s.deps.Registerer))
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)
	s.router.Get("/api/docs/doc.json", s.handleDocs)

	s.router.Route("/api/v1", func(r chi.Router) {
		backups := handler.NewBackup(s.deps.Backups)
		policy := handler.NewPolicy(s.deps.Policies, s.deps.Connections)
		conn := handler.NewConnection(s.deps.Connections, s.deps.Credentials)

		r.With(mw.AuthForbidden(s.deps.Keys), mw.RequireScope(model.ScopeBackupsAdmin)).
			Get("/backups/{id}/download", backups.Download)

		var stream *handler.Stream
		if s.deps.Streams != nil {
			stream = handler.NewStream(s.deps.Streams, s.deps.MaxFrameSize, s.deps.OriginPatterns...)
			r.With(mw.AuthWithToken(s.deps.Keys)).Get("/connections/{connID}/restore-ws", stream.WebSocket)
		}

		r.Group(func(r chi.Router) {
			r.Use(mw.Auth(s.deps.Keys))
			if s.deps.Audit != nil {
				r.Use(s.deps.Audit.Middleware)
			}

			r.Get("/connections", conn.List)
			r.Post("/connections", conn.Create)
			r.Post("/credentials", conn.CreateCredential)

			r.Post("/connections/{connID}/dumps", backups.StartDump)
			r.Get("/connections/{connID}/current-job", backups.CurrentJob)
			r.Get("/connections/{connID}/backups", backups.List)
			r.Get("/connections/{connID}/policy", policy.Get)
			r.Put("/connections/{connID}/policy", policy.Put)

			r.Get("/backups/{id}", backups.Get)
			r.Delete("/backups/{id}", backups.Delete)
			r.Post("/backups/{id}/restore", backups.Restore)

			if stream != nil {
				r.Post("/connections/{connID}/restore-stream", stream.Open)
				r.Post("/restore-streams/{fileName}", stream.Append)
			}

			if s.deps.AuditLogs != nil {
				audit := handler.NewAudit(s.deps.AuditLogs)
				r.With(mw.RequireScope(model.ScopeBackupsAdmin)).Get("/audit-logs", audit.List)
			}
		})
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{"state_db": "ok"}
	status := http.StatusOK
	if s.deps.Ready != nil {
		if err := s.deps.Ready(ctx); err != nil {
			checks["state_db"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) handleDocs(w http.ResponseWriter, _ *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		s.logger.Error().Err(err).Msg("render OpenAPI document")
		http.Error(w, "openapi document unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, doc)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ManagerStreams adapts *backup.Manager to handler.StreamService.
type ManagerStreams struct {
	M *backup.Manager
}

func (a ManagerStreams) OpenStream(ctx context.Context, req backup.StreamRequest) (handler.Upload, error) {
	s, err := a.M.OpenStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (a ManagerStreams) Stream(userID, fileName string) (handler.Upload, error) {
	s, err := a.M.Stream(userID, fileName)
	if err != nil {
		return nil, err
	}
	return s, nil
}
