package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolecraft/turneval/internal/auth"
	"github.com/rolecraft/turneval/internal/ctxutil"
	"github.com/rolecraft/turneval/internal/evaluation"
	"github.com/rolecraft/turneval/internal/model"
	"github.com/rolecraft/turneval/internal/reportcache"
	"github.com/rolecraft/turneval/internal/service/evaluations"
	"github.com/rolecraft/turneval/internal/testutil"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ev, err := evaluation.New(evaluation.DefaultConfig(), evaluation.WithLogger(testutil.TestLogger()))
	require.NoError(t, err)
	cache := reportcache.New(time.Minute, 100)
	t.Cleanup(cache.Close)
	svc := evaluations.New(ev, cache, nil, time.Second, testutil.TestLogger())
	return New(svc, testutil.TestLogger(), "test")
}

func callTool(t *testing.T, s *Server, ctx context.Context, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	req := mcplib.CallToolRequest{Params: mcplib.CallToolParams{Name: name, Arguments: args}}
	var (
		res *mcplib.CallToolResult
		err error
	)
	switch name {
	case "turneval_evaluate":
		res, err = s.handleEvaluate(ctx, req)
	case "turneval_report":
		res, err = s.handleReport(ctx, req)
	default:
		t.Fatalf("unknown tool %s", name)
	}
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func resultText(t *testing.T, res *mcplib.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcplib.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func contextArg(t *testing.T, ec model.EvaluationContext) map[string]any {
	t.Helper()
	data, err := json.Marshal(ec)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestEvaluateTool_Object(t *testing.T) {
	s := newTestServer(t)
	res := callTool(t, s, context.Background(), "turneval_evaluate", map[string]any{
		"context": contextArg(t, testutil.CleanContext()),
	})
	require.False(t, res.IsError, resultText(t, res))

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, "msg-1", got["message_id"])
	assert.Contains(t, got["summary"], "with no issues")
	assert.NotContains(t, got, "behavior_analysis", "compact output drops analyses")
}

func TestEvaluateTool_StringAndFullReport(t *testing.T) {
	s := newTestServer(t)
	data, err := json.Marshal(testutil.CleanContext())
	require.NoError(t, err)

	res := callTool(t, s, context.Background(), "turneval_evaluate", map[string]any{
		"context": string(data),
		"compact": false,
	})
	require.False(t, res.IsError, resultText(t, res))

	var got model.EvaluationReport
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, "Mira", got.AgentName)
	assert.Equal(t, model.ReasonNormal, got.Behavior.Reasoning)
}

func TestEvaluateTool_Errors(t *testing.T) {
	s := newTestServer(t)

	res := callTool(t, s, context.Background(), "turneval_evaluate", map[string]any{})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "context is required")

	res = callTool(t, s, context.Background(), "turneval_evaluate", map[string]any{"context": "{not json"})
	assert.True(t, res.IsError)

	res = callTool(t, s, context.Background(), "turneval_evaluate", map[string]any{
		"context": contextArg(t, testutil.NewContext(testutil.WithMessageID(""))),
	})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Message.ID is required")

	readerCtx := ctxutil.WithClaims(context.Background(), &auth.Claims{ClientID: "dash", Role: model.ClientReader})
	res = callTool(t, s, readerCtx, "turneval_evaluate", map[string]any{
		"context": contextArg(t, testutil.CleanContext()),
	})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "evaluator role")
}

func TestReportTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res := callTool(t, s, ctx, "turneval_report", map[string]any{"message_id": "msg-1"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "call turneval_evaluate first")

	callTool(t, s, ctx, "turneval_evaluate", map[string]any{"context": contextArg(t, testutil.CleanContext())})
	res = callTool(t, s, ctx, "turneval_report", map[string]any{"message_id": "msg-1"})
	require.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), `"message_id": "msg-1"`)

	res = callTool(t, s, ctx, "turneval_report", map[string]any{})
	assert.True(t, res.IsError)
}

func TestResources(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	callTool(t, s, ctx, "turneval_evaluate", map[string]any{"context": contextArg(t, testutil.CleanContext())})

	recent, err := s.handleRecentReports(ctx, mcplib.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	text := recent[0].(mcplib.TextResourceContents)
	assert.Equal(t, recentReportsURI, text.URI)
	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "msg-1", list[0]["message_id"])

	req := mcplib.ReadResourceRequest{}
	req.Params.URI = "turneval://reports/msg-1"
	one, err := s.handleReportResource(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, one[0].(mcplib.TextResourceContents).Text, `"behavior_analysis"`)

	req.Params.URI = "turneval://reports/missing"
	_, err = s.handleReportResource(ctx, req)
	assert.ErrorIs(t, err, reportcache.ErrNotFound)

	req.Params.URI = "turneval://reports/"
	_, err = s.handleReportResource(ctx, req)
	assert.ErrorContains(t, err, "invalid report URI")
}

func TestFixIssuesPrompt(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	ec := testutil.NewContext(
		testutil.WithSchema(testutil.NumericField("gold")),
		testutil.WithHistory(testutil.PriorTurn("Welcome back, friend.", testutil.Value("gold", "10"))),
		testutil.WithDataStore(testutil.Value("gold", "20")),
	)
	callTool(t, s, ctx, "turneval_evaluate", map[string]any{"context": contextArg(t, ec)})

	req := mcplib.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"message_id": "msg-1"}
	res, err := s.handleFixIssuesPrompt(ctx, req)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	text := res.Messages[0].Content.(mcplib.TextContent).Text
	assert.Contains(t, text, "Double Counting Detected")
	assert.Contains(t, text, "Recommendations:")

	req.Params.Arguments = map[string]string{}
	_, err = s.handleFixIssuesPrompt(ctx, req)
	assert.ErrorContains(t, err, "message_id argument is required")
}

func TestGenerateReportSummary(t *testing.T) {
	assert.Equal(t, "Scored 98.0/100 with no issues.", generateReportSummary(model.EvaluationReport{OverallScore: 98}))

	r := model.EvaluationReport{
		OverallScore: 61.25,
		Issues: []model.EvaluationIssue{
			{Severity: model.SeverityMedium, Title: "Repetitive Response"},
			{Severity: model.SeverityHigh, Title: "Potential Hallucination"},
			{Severity: model.SeverityMedium, Title: "Context Overload"},
		},
	}
	assert.Equal(t, "Scored 61.2/100 with 1 high, 2 medium issue(s). Most severe: Potential Hallucination.", generateReportSummary(r))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "héll...", truncate("héllo world", 4))
}
