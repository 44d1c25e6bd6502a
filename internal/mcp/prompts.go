package mcp

import (
	"context"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// turneval_fix_issues turns a cached report into a remediation plan.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("turneval_fix_issues",
			mcplib.WithPromptDescription("Plan fixes for the issues found in an evaluated reply"),
			mcplib.WithArgument("message_id",
				mcplib.ArgumentDescription("ID of a message already evaluated with turneval_evaluate"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleFixIssuesPrompt,
	)
}

func (s *Server) handleFixIssuesPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	messageID := request.Params.Arguments["message_id"]
	if messageID == "" {
		return nil, fmt.Errorf("message_id argument is required")
	}
	report, err := s.evalSvc.Get(messageID)
	if err != nil {
		return nil, fmt.Errorf("mcp: report %s: %w", messageID, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The reply for message %q by %s scored %.1f/100.\n\n", report.MessageID, report.AgentName, report.OverallScore)
	if len(report.Issues) == 0 {
		b.WriteString("No issues were found. Confirm the reply stays in character and move on.\n")
	} else {
		b.WriteString("Fix these issues in order. For each, say what you will change in the prompt, the reply or the data store update.\n\n")
		for i, iss := range report.Issues {
			fmt.Fprintf(&b, "%d. [%s] %s: %s\n", i+1, iss.Severity, iss.Title, iss.Description)
			if iss.Evidence != "" {
				fmt.Fprintf(&b, "   Evidence: %s\n", iss.Evidence)
			}
			if iss.Suggestion != "" {
				fmt.Fprintf(&b, "   Suggested fix: %s\n", iss.Suggestion)
			}
		}
	}
	b.WriteString("\nRecommendations:\n")
	for _, rec := range report.Recommendations {
		fmt.Fprintf(&b, "- %s\n", rec)
	}
	b.WriteString("\nWhen done, rewrite the reply and call turneval_evaluate again with the same context to confirm.")

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Fix issues for message %s", messageID),
		Messages: []mcplib.PromptMessage{
			{
				Role:    mcplib.RoleUser,
				Content: mcplib.TextContent{Type: "text", Text: b.String()},
			},
		},
	}, nil
}
