package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const activeConsultationsURI = "medforge://consultations/active"

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			activeConsultationsURI,
			"Active Consultations",
			mcplib.WithResourceDescription("Progress snapshots of all in-flight consultations"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleActiveConsultationsResource,
	)
}

func (s *Server) handleActiveConsultationsResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Consultations == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"consultation service not configured"}`,
			},
		}, nil
	}
	data, err := json.Marshal(s.deps.Consultations.ListActive())
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
