// Package mcp exposes the status of a running capture as a Model Context
// Protocol server, so agents can follow and steer a run.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/capture"
	"github.com/aretw0/capture/internal/logging"
	"github.com/aretw0/capture/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// StatusURI is the resource holding the run status.
const StatusURI = "capture://status"

// Service is the part of the ingestion service exposed to agents.
type Service interface {
	Status() domain.Status
	Complete(ctx context.Context, sessionID string) error
}

// SessionResponse describes one session of the run.
type SessionResponse struct {
	ID         string              `json:"id" jsonschema_description:"Session identifier"`
	State      domain.SessionState `json:"state" jsonschema_description:"active, closing or closed"`
	Stored     int                 `json:"stored" jsonschema_description:"Screenshots written"`
	Duplicates int                 `json:"duplicates" jsonschema_description:"Submissions rejected as identical to the previous one"`
	Failures   int                 `json:"failures" jsonschema_description:"Submissions that failed"`
}

// StatusResponse is the structured result of get_status.
type StatusResponse struct {
	RunID    string            `json:"run_id" jsonschema_description:"Identifier of the run"`
	Complete bool              `json:"complete" jsonschema_description:"True once every session signalled completion"`
	Active   []string          `json:"active" jsonschema_description:"Sessions still accepting screenshots"`
	Sessions []SessionResponse `json:"sessions" jsonschema_description:"Per-session counters"`
}

type sessionArgs struct {
	SessionID string `json:"session_id"`
}

// Server wraps the ingestion service and exposes it as an MCP Server.
type Server struct {
	service   Service
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
func NewServer(service Service, opts ...Option) *Server {
	s := &Server{
		service:   service,
		mcpServer: server.NewMCPServer("capture-mcp", strings.TrimSpace(capture.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeSSE serves the MCP endpoints on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("mcp listen on %s: %w", addr, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	baseURL := "http://localhost:" + strconv.Itoa(port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "url", baseURL+"/sse")
		serverErrors <- httpServer.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// SSE streams never end on their own.
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			httpServer.Close()
		}
		if err := <-serverErrors; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: get_status
	statusTool := mcp.NewTool("get_status",
		mcp.WithDescription("Report the run id, active sessions and per-session screenshot counts."),
		mcp.WithOutputSchema[StatusResponse](),
	)
	s.mcpServer.AddTool(statusTool, mcp.NewStructuredToolHandler(s.handleStatus))

	// TOOL: get_session
	sessionTool := mcp.NewTool("get_session",
		mcp.WithDescription("Report the counters of one session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
		mcp.WithOutputSchema[SessionResponse](),
	)
	s.mcpServer.AddTool(sessionTool, mcp.NewStructuredToolHandler(s.handleSession))

	// TOOL: complete_session
	s.mcpServer.AddTool(mcp.NewTool("complete_session",
		mcp.WithDescription("Mark a session as finished, as if its page had posted /done."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session identifier")),
	), s.handleComplete)
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (StatusResponse, error) {
	return toStatusResponse(s.service.Status()), nil
}

func (s *Server) handleSession(ctx context.Context, request mcp.CallToolRequest, args sessionArgs) (SessionResponse, error) {
	stats, ok := s.service.Status().Sessions[args.SessionID]
	if !ok {
		return SessionResponse{}, fmt.Errorf("%w: %q", domain.ErrUnknownSession, args.SessionID)
	}
	return toSessionResponse(args.SessionID, stats), nil
}

func (s *Server) handleComplete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.service.Complete(ctx, id); err != nil {
		s.logger.Warn("MCP complete_session rejected", "session_id", id, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("complete %s: %v", id, err)), nil
	}
	return mcp.NewToolResultText("session " + id + " completed"), nil
}

func (s *Server) registerResources() {
	// EXPOSE: capture://status
	s.mcpServer.AddResource(mcp.NewResource(StatusURI, "Capture Run Status",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(toStatusResponse(s.service.Status()))
		if err != nil {
			return nil, fmt.Errorf("failed to encode status: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      StatusURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

func toStatusResponse(st domain.Status) StatusResponse {
	resp := StatusResponse{
		RunID:    st.RunID,
		Complete: st.Complete,
		Active:   st.Active,
		Sessions: make([]SessionResponse, 0, len(st.Sessions)),
	}
	if resp.Active == nil {
		resp.Active = []string{}
	}
	for id, stats := range st.Sessions {
		resp.Sessions = append(resp.Sessions, toSessionResponse(id, stats))
	}
	sort.Slice(resp.Sessions, func(i, j int) bool {
		return resp.Sessions[i].ID < resp.Sessions[j].ID
	})
	return resp
}

func toSessionResponse(id string, stats domain.SessionStats) SessionResponse {
	return SessionResponse{
		ID:         id,
		State:      stats.State,
		Stored:     stats.Stored,
		Duplicates: stats.Duplicates,
		Failures:   stats.Failures,
	}
}
