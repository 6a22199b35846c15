// Package mcp exposes the consultation service as Model Context Protocol tools
// over streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/MedForge/internal/domain/complexity"
	"github.com/Strob0t/MedForge/internal/domain/consultation"
	"github.com/Strob0t/MedForge/internal/service"
)

// ConsultationManager is the part of the consultation service the tools call.
type ConsultationManager interface {
	StartConsultation(ctx context.Context, req *consultation.Request) (*consultation.PendingResponse, error)
	GetConsultationStatus(ctx context.Context, id string) (*consultation.Outcome, error)
	PollConsultationUntilComplete(ctx context.Context, id string, opts service.PollOptions) (*consultation.Result, error)
	CancelConsultation(ctx context.Context, id string) (*consultation.Result, error)
	ListActive() []*consultation.PendingResponse
}

var _ ConsultationManager = (*service.ConsultationService)(nil)

// ServerConfig configures the MCP endpoint.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string // empty disables authentication
}

// ServerDeps are the services behind the tools. A nil dependency makes its
// tools report an error instead of failing registration.
type ServerDeps struct {
	Consultations ConsultationManager
	Analyzer      *complexity.Analyzer
}

// Server serves the MCP tools and resources.
type Server struct {
	cfg        ServerConfig
	deps       ServerDeps
	mcpServer  *mcpserver.MCPServer
	httpServer *http.Server
}

// NewServer creates a Server with all tools and resources registered.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Handler returns the authenticated HTTP handler serving /mcp.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(s.mcpServer))
	return AuthMiddleware(s.cfg.APIKey, mux)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp listen %s: %w", s.cfg.Addr, err)
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server failed", "error", err)
		}
	}()
	slog.Info("mcp server started", "addr", ln.Addr().String())
	return nil
}

// Stop shuts the HTTP listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	slog.Info("mcp server stopping")
	return s.httpServer.Shutdown(ctx)
}
