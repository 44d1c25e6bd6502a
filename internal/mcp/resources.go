package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const (
	recentReportsURI  = "turneval://reports/recent"
	reportURIPrefix   = "turneval://reports/"
	recentReportLimit = 20
)

func (s *Server) registerResources() {
	// turneval://reports/recent: newest cached reports.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			recentReportsURI,
			"Recent Reports",
			mcplib.WithResourceDescription("The most recent evaluation reports, newest first, in compact form"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRecentReports,
	)

	// turneval://reports/{message_id}: full report for one message.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			reportURIPrefix+"{message_id}",
			"Evaluation Report",
			mcplib.WithTemplateDescription("The full evaluation report for a message"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleReportResource,
	)
}

func (s *Server) handleRecentReports(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	reports := s.evalSvc.Recent(recentReportLimit)
	compact := make([]map[string]any, 0, len(reports))
	for _, r := range reports {
		compact = append(compact, compactReport(r))
	}
	data, err := json.MarshalIndent(compact, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal recent reports: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      recentReportsURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleReportResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	messageID := strings.TrimPrefix(uri, reportURIPrefix)
	if messageID == uri || messageID == "" || strings.Contains(messageID, "/") {
		return nil, fmt.Errorf("mcp: invalid report URI: %s", uri)
	}

	report, err := s.evalSvc.Get(messageID)
	if err != nil {
		return nil, fmt.Errorf("mcp: report %s: %w", messageID, err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal report: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
