package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dicklesworthstone/agentmail/internal/auth"
	"github.com/dicklesworthstone/agentmail/internal/config"
	"github.com/dicklesworthstone/agentmail/internal/content"
	"github.com/dicklesworthstone/agentmail/internal/logger"
	"github.com/dicklesworthstone/agentmail/internal/metrics"
	"github.com/dicklesworthstone/agentmail/internal/store"
	"github.com/dicklesworthstone/agentmail/internal/sweep"
)

// generateRequestID creates a unique request identifier for HTTP access logs.
func generateRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Server wires the coordination engine's storage and domain packages to an
// MCP tool registry, servable over stdio or streamable HTTP.
type Server struct {
	db       *store.DB
	blobs    *content.Store
	cfg      *config.Config
	registry *Registry
	janitor  *sweep.Janitor
	mcpSrv   *mcp_sdk.Server
}

// New creates a Server with every domain tool registered against db/blobs.
// The caller owns db's lifetime; Close stops the background janitor only.
func New(db *store.DB, blobs *content.Store, cfg *config.Config) (*Server, error) {
	s := &Server{
		db:       db,
		blobs:    blobs,
		cfg:      cfg,
		registry: NewRegistry(),
	}
	registerAllTools(s.registry, db, blobs)

	janitor, err := sweep.New(db, "")
	if err != nil {
		return nil, err
	}
	s.janitor = janitor

	s.mcpSrv = mcp_sdk.NewServer(&mcp_sdk.Implementation{
		Name:    "mcp-agent-mail",
		Version: "0.1.0",
	}, nil)
	s.registry.RegisterWithMCPServer(s.mcpSrv)
	registerAllResources(s.mcpSrv, db)

	return s, nil
}

// GetRegistry returns the tool registry for introspection.
func (s *Server) GetRegistry() *Registry {
	return s.registry
}

// Close stops the background sweep janitor. It does not close db or blobs.
func (s *Server) Close() {
	if s.janitor != nil {
		s.janitor.Stop()
	}
}

// ServeStdio runs the MCP server over stdio until ctx is cancelled or the
// transport's underlying pipe closes. Stdio has no auth layer (spec §4.7:
// "owned by the invoking process").
func (s *Server) ServeStdio(ctx context.Context) error {
	if err := s.janitor.Start(); err != nil {
		return err
	}
	defer s.janitor.Stop()
	return s.mcpSrv.Run(ctx, &mcp_sdk.StdioTransport{})
}

// Serve starts the streamable-HTTP MCP server on addr along with the
// /health, /ready, and /metrics side endpoints.
func (s *Server) Serve(addr string) error {
	if err := s.janitor.Start(); err != nil {
		return err
	}

	mcpHandler := mcp_sdk.NewStreamableHTTPHandler(func(req *http.Request) *mcp_sdk.Server {
		return s.mcpSrv
	}, &mcp_sdk.StreamableHTTPOptions{
		EventStore: mcp_sdk.NewMemoryEventStore(nil),
	})

	loggingHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), logger.ContextKeyRequestID, requestID)
		ctx = WithRemoteAddr(ctx, r.RemoteAddr)
		r = r.WithContext(ctx)

		logger.Info("HTTP %s %s from %s [request_id=%s]", r.Method, r.URL.Path, r.RemoteAddr, requestID)
		mcpHandler.ServeHTTP(w, r)
	})

	authedHandler := auth.Middleware(s.cfg.BearerToken, s.cfg.AllowLocalhost)(loggingHandler)

	var rateLimitedHandler http.Handler = authedHandler
	if s.cfg.RateLimitOn {
		rateLimitedHandler = auth.RateLimitMiddleware(auth.DefaultRateLimiter())(authedHandler)
	}

	mainMux := http.NewServeMux()
	mainMux.HandleFunc("/health", s.handleHealthCheck)
	mainMux.HandleFunc("/ready", s.handleReadinessCheck)
	mainMux.Handle("/metrics", metrics.Handler())
	mainMux.Handle("/mcp", metrics.Middleware(rateLimitedHandler))
	mainMux.Handle("/mcp/", metrics.Middleware(rateLimitedHandler))

	logger.Info("mcp-agent-mail listening on %s", addr)
	logger.Info("health check: http://localhost%s/health", addr)
	logger.Info("readiness check: http://localhost%s/ready", addr)
	logger.Info("metrics: http://localhost%s/metrics", addr)
	return http.ListenAndServe(addr, mainMux)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Health(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready","reason":"database unavailable"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
