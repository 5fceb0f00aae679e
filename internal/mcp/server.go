package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"snapshot-query/internal/browser"
	"snapshot-query/internal/config"
	"snapshot-query/internal/mangle"
	"snapshot-query/internal/query"
	"snapshot-query/internal/recorder"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Server exposes snapshot queries as MCP tools.
type Server struct {
	cfg       config.Config
	sessions  *SessionCache
	engine    *mangle.Engine
	capturer  *browser.Capturer
	recorder  *recorder.Recorder
	tools     map[string]Tool
	mcpServer *mcpserver.MCPServer
}

// Tool describes the contract for MCP tool implementations.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// NewServer constructs the MCP server and registers all tools. capturer
// and rec may be nil.
func NewServer(cfg config.Config, engine *mangle.Engine, capturer *browser.Capturer, rec *recorder.Recorder) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("mangle engine is required")
	}

	mcpSrv := mcpserver.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithRecovery(),
	)

	opts := []query.Option{
		query.WithBM25Params(cfg.Search.K1, cfg.Search.B),
		query.WithStemming(cfg.Search.Stemming),
	}

	server := &Server{
		cfg:       cfg,
		sessions:  NewSessionCache(cfg.MCP.GetMaxSessions(), rec, opts...),
		engine:    engine,
		capturer:  capturer,
		recorder:  rec,
		tools:     make(map[string]Tool),
		mcpServer: mcpSrv,
	}

	server.registerAllTools()
	server.registerAllResources()
	return server, nil
}

// Sessions returns the server's snapshot cache.
func (s *Server) Sessions() *SessionCache {
	return s.sessions
}

// Start launches the stdio server.
func (s *Server) Start(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// Handler returns the HTTP routes for the SSE transport.
func (s *Server) Handler(baseURL string) http.Handler {
	sseServer := mcpserver.NewSSEServer(s.mcpServer, mcpserver.WithBaseURL(baseURL))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", s.handleHealth)
	r.Handle("/sse", sseServer.SSEHandler())
	r.Handle("/message", sseServer.MessageHandler())
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"name":     s.cfg.Server.Name,
		"version":  s.cfg.Server.Version,
		"sessions": s.sessions.Len(),
	})
}

// StartSSE hosts the server over HTTP using SSE endpoints with graceful shutdown.
func (s *Server) StartSSE(ctx context.Context, port int) error {
	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: s.Handler("http://localhost:" + strconv.Itoa(port)),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Printf("SSE server shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// ExecuteTool executes a tool directly (used by tests).
func (s *Server) ExecuteTool(name string, args map[string]interface{}) (interface{}, error) {
	tool, exists := s.tools[name]
	if !exists {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool.Execute(context.Background(), args)
}

func (s *Server) registerAllTools() {
	base := snapshotTool{sessions: s.sessions, out: s.cfg.Output}

	s.registerTool(&FindByNameTool{base})
	s.registerTool(&FindByNameBM25Tool{base})
	s.registerTool(&FindByRoleTool{base})
	s.registerTool(&FindByRefTool{base})
	s.registerTool(&FindByTextTool{base})
	s.registerTool(&FindByRegexTool{base})
	s.registerTool(&FindBySelectorTool{base})
	s.registerTool(&InteractiveElementsTool{base})
	s.registerTool(&CountElementsTool{base})
	s.registerTool(&ElementPathTool{base})
	s.registerTool(&AllRefsTool{base})
	s.registerTool(&ToMarkdownTool{base})

	s.registerTool(&ListSnapshotsTool{root: s.cfg.MCP.SnapshotRoot})
	s.registerTool(&ListSessionsTool{sessions: s.sessions})
	s.registerTool(&CloseSessionTool{sessions: s.sessions})

	if s.engine.Enabled() {
		s.registerTool(&QueryDatalogTool{snapshotTool: base, view: &datalogView{engine: s.engine}})
	}
	if s.capturer != nil {
		s.registerTool(&CaptureSnapshotTool{sessions: s.sessions, capturer: s.capturer})
	}
}

func (s *Server) registerTool(tool Tool) {
	s.tools[tool.Name()] = tool

	schema, err := json.Marshal(tool.InputSchema())
	if err != nil {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	mcpTool := mcp.NewToolWithRawSchema(tool.Name(), tool.Description(), schema)
	s.mcpServer.AddTool(mcpTool, s.wrapTool(tool))
}

func (s *Server) wrapTool(tool Tool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]interface{}{}
		}

		start := time.Now()
		result, err := tool.Execute(ctx, args)
		s.trace(tool.Name(), args, start, result, err)

		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("tool %s failed: %v", tool.Name(), err))},
				IsError: true,
			}, nil
		}

		payload := marshalToolPayload(tool.Name(), result)
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(payload))},
			IsError: false,
		}, nil
	}
}

func (s *Server) trace(name string, args map[string]interface{}, start time.Time, result interface{}, err error) {
	if s.recorder == nil {
		return
	}
	call := recorder.ToolCall{
		Tool:       name,
		Args:       args,
		DurationMs: time.Since(start).Milliseconds(),
		Results:    resultCount(result),
	}
	if err != nil {
		call.Error = err.Error()
	}
	sessionID := ""
	if m, ok := result.(map[string]interface{}); ok {
		sessionID = argString(m["session_id"])
	}
	s.recorder.LogToolCall(sessionID, call)
}

func marshalToolPayload(toolName string, result interface{}) []byte {
	payload, marshalErr := json.Marshal(result)
	if marshalErr == nil {
		return payload
	}

	fallback := map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf("tool %s returned non-serializable payload: %v", toolName, marshalErr),
	}
	payload, fallbackErr := json.Marshal(fallback)
	if fallbackErr == nil {
		return payload
	}

	return []byte(fmt.Sprintf(`{"success":false,"error":"tool %s failed to encode payload"}`, toolName))
}
