package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"snapshot-query/internal/render"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	resourceMIMEJSON     = "application/json"
	resourceMIMEMarkdown = "text/markdown"
)

func (s *Server) registerAllResources() {
	if s == nil || s.mcpServer == nil {
		return
	}

	s.mcpServer.AddResource(
		mcp.NewResource(
			"snapshot-query://about",
			"snapshot-query About",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Server info, loaded sessions and usage notes."),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"snapshot-query://session/{sessionId}/markdown{?max_depth}",
			"Session Markdown",
			mcp.WithTemplateMIMEType(resourceMIMEMarkdown),
			mcp.WithTemplateDescription("Markdown document for a loaded snapshot session."),
		),
		s.handleSessionMarkdownResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	tools := make([]string, 0, len(s.tools))
	for name := range s.tools {
		tools = append(tools, name)
	}
	payload := map[string]interface{}{
		"name":     s.cfg.Server.Name,
		"version":  s.cfg.Server.Version,
		"tools":    len(tools),
		"sessions": s.sessions.List(),
		"notes": []string{
			"Every query tool takes file_path or session_id.",
			"Files are reloaded automatically when their content changes.",
			"Use find_by_name_bm25 for fuzzy name search and find_by_selector for structure.",
		},
		"timestamp_ms": time.Now().UnixMilli(),
	}

	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

func (s *Server) handleSessionMarkdownResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sessionID := argString(request.Params.Arguments["sessionId"])
	if sessionID == "" {
		return nil, fmt.Errorf("missing sessionId")
	}
	engine, _, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("unknown session %q", sessionID)
	}

	opts := render.DefaultMarkdownOptions()
	if depth := argString(request.Params.Arguments["max_depth"]); depth != "" {
		if _, err := fmt.Sscanf(depth, "%d", &opts.MaxDepth); err != nil {
			return nil, fmt.Errorf("invalid max_depth %q", depth)
		}
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: resourceMIMEMarkdown,
			Text:     render.Markdown(engine, opts),
		},
	}, nil
}
