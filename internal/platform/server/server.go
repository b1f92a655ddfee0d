package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/portalguard/portalguard/internal/access"
	"github.com/portalguard/portalguard/internal/audit"
	"github.com/portalguard/portalguard/internal/auth"
	"github.com/portalguard/portalguard/internal/gateway"
	"github.com/portalguard/portalguard/internal/guard"
	"github.com/portalguard/portalguard/internal/platform/middleware"
	"github.com/portalguard/portalguard/internal/rbac"
)

// Dependencies holds all injected dependencies for the server.
type Dependencies struct {
	Pool    *pgxpool.Pool
	Engines *access.Holder
	Gateway *gateway.Gateway

	// Upstream receives every request the gateway lets through.
	Upstream        http.Handler
	Verifier        auth.Verifier
	VerifyTimeout   time.Duration
	RBAC            *rbac.Evaluator
	AuditHandler    *audit.Handler
	GuardHandler    *guard.Handler
	RBACAuditLogger audit.Logger
	Metrics         http.Handler
	MetricsPath     string
	Logger          *slog.Logger

	CORSAllowedOrigins []string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
}

type Server struct {
	httpServer      *http.Server
	internalMux     *http.ServeMux
	pool            *pgxpool.Pool
	engines         *access.Holder
	handler         http.Handler
	shutdownTimeout time.Duration
}

func New(addr string, deps Dependencies) *Server {
	if deps.ReadTimeout <= 0 {
		deps.ReadTimeout = 15 * time.Second
	}
	if deps.WriteTimeout <= 0 {
		deps.WriteTimeout = 30 * time.Second
	}
	if deps.ShutdownTimeout <= 0 {
		deps.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  deps.ReadTimeout,
			WriteTimeout: deps.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		internalMux:     http.NewServeMux(),
		pool:            deps.Pool,
		engines:         deps.Engines,
		shutdownTimeout: deps.ShutdownTimeout,
	}

	// Internal routes under /_authz/ carry their own principal resolution and
	// never reach the upstream.
	var internalHandler http.Handler = s.internalMux
	if deps.Verifier != nil {
		internalHandler = auth.Middleware(deps.Verifier, deps.VerifyTimeout, deps.Logger)(internalHandler)
	}
	if len(deps.CORSAllowedOrigins) > 0 {
		internalHandler = middleware.CORS(deps.CORSAllowedOrigins)(internalHandler)
	}

	if deps.GuardHandler != nil {
		s.internalMux.HandleFunc("GET /_authz/check", deps.GuardHandler.HandleCheck)
	}

	var rbacOpts []rbac.MiddlewareOption
	if deps.Logger != nil {
		rbacOpts = append(rbacOpts, rbac.WithLogger(deps.Logger))
	}
	if deps.RBACAuditLogger != nil {
		rbacOpts = append(rbacOpts, rbac.WithAuditLogger(deps.RBACAuditLogger))
	}
	if deps.AuditHandler != nil && deps.RBAC != nil {
		s.internalMux.Handle("GET /_authz/audit/events",
			rbac.RequirePermission(deps.RBAC, "audit:read", rbacOpts...)(
				http.HandlerFunc(deps.AuditHandler.HandleListEvents),
			),
		)
	}

	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /healthz", s.handleHealth)
	topMux.HandleFunc("GET /readyz", s.handleReadiness)
	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		topMux.Handle("GET "+path, deps.Metrics)
	}
	topMux.Handle("/_authz/", internalHandler)

	// Everything else is gated and forwarded.
	upstream := deps.Upstream
	if upstream == nil {
		upstream = http.NotFoundHandler()
	}
	if deps.Gateway != nil {
		upstream = deps.Gateway.Middleware(upstream)
	}
	topMux.Handle("/", upstream)

	var handler http.Handler = topMux
	if deps.Logger != nil {
		handler = middleware.Logging(deps.Logger)(handler)
	}
	handler = middleware.RequestID(handler)

	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

// Handler returns the full middleware-wrapped handler chain (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// InternalMux returns the mux for /_authz/ routes.
func (s *Server) InternalMux() *http.ServeMux {
	return s.internalMux
}

func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	slog.Info("server starting", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness requires a loaded policy engine, and a reachable database
// when one is configured.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.engines == nil || s.engines.Engine() == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "policy not loaded",
		})
		return
	}

	if s.pool != nil {
		if err := s.pool.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": "database ping failed",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
