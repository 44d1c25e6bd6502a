package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/rolecraft/turneval/internal/ctxutil"
	"github.com/rolecraft/turneval/internal/model"
	"github.com/rolecraft/turneval/internal/reportcache"
)

func (s *Server) registerTools() {
	// turneval_evaluate: evaluate one agent reply.
	s.mcpServer.AddTool(
		mcplib.NewTool("turneval_evaluate",
			mcplib.WithDescription(`Evaluate one character-agent reply and return a scored report.

WHEN TO USE: Right after the agent produced a reply, before showing it or
persisting data store updates.

WHAT YOU GET BACK:
- overall_score: 0-100, higher is better
- issues: ordered findings with severity and a suggested fix
- recommendations: prioritized next steps

Set compact=false to get every per-dimension analysis as well.`),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithObject("context",
				mcplib.Description("The evaluation context: message{id, content, data_store}, agent{name, model}, flow{data_store_schema}, conversation_history, prompt_messages, generation_time_ms. A JSON-encoded string is accepted too."),
				mcplib.Required(),
			),
			mcplib.WithBoolean("compact",
				mcplib.Description("Return a compact report (default true)"),
				mcplib.DefaultBool(true),
			),
		),
		s.handleEvaluate,
	)

	// turneval_report: fetch a cached report.
	s.mcpServer.AddTool(
		mcplib.NewTool("turneval_report",
			mcplib.WithDescription("Fetch the most recent report for a message ID from the report cache."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("message_id",
				mcplib.Description("ID of the evaluated message"),
				mcplib.Required(),
			),
			mcplib.WithBoolean("compact",
				mcplib.Description("Return a compact report (default true)"),
				mcplib.DefaultBool(true),
			),
		),
		s.handleReport,
	)
}

func (s *Server) handleEvaluate(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if claims := ctxutil.ClaimsFromContext(ctx); claims != nil && !model.RoleAtLeast(claims.Role, model.ClientEvaluator) {
		return errorResult("turneval_evaluate requires the evaluator role"), nil
	}

	ec, err := contextArgument(request.GetArguments()["context"])
	if err != nil {
		return errorResult(err.Error()), nil
	}

	report, err := s.evalSvc.Evaluate(ctx, ec)
	if err != nil {
		if errors.Is(err, model.ErrInvalidContext) {
			return errorResult(err.Error()), nil
		}
		s.logger.Error("mcp: evaluate", "error", err, "message_id", ec.Message.ID)
		return errorResult(fmt.Sprintf("evaluation failed: %v", err)), nil
	}
	return reportResult(report, request.GetBool("compact", true))
}

func (s *Server) handleReport(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	messageID := request.GetString("message_id", "")
	if messageID == "" {
		return errorResult("message_id is required"), nil
	}
	report, err := s.evalSvc.Get(messageID)
	if errors.Is(err, reportcache.ErrNotFound) {
		return errorResult(fmt.Sprintf("no report for message %q; call turneval_evaluate first", messageID)), nil
	}
	if err != nil {
		return errorResult(fmt.Sprintf("failed to load report: %v", err)), nil
	}
	return reportResult(report, request.GetBool("compact", true))
}

// contextArgument accepts the context either as a JSON object or as a
// JSON-encoded string, since some clients stringify nested arguments.
func contextArgument(raw any) (model.EvaluationContext, error) {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return model.EvaluationContext{}, errors.New("context is required")
	case string:
		data = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return model.EvaluationContext{}, fmt.Errorf("context: %w", err)
		}
		data = b
	}
	var ec model.EvaluationContext
	if err := json.Unmarshal(data, &ec); err != nil {
		return model.EvaluationContext{}, fmt.Errorf("context is not a valid evaluation context: %w", err)
	}
	return ec, nil
}

func reportResult(report model.EvaluationReport, compact bool) (*mcplib.CallToolResult, error) {
	var payload any = report
	if compact {
		payload = compactReport(report)
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to encode report: %v", err)), nil
	}
	return textResult(string(data)), nil
}
