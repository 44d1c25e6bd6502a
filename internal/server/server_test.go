package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolecraft/turneval/internal/auth"
	"github.com/rolecraft/turneval/internal/evaluation"
	"github.com/rolecraft/turneval/internal/mcp"
	"github.com/rolecraft/turneval/internal/model"
	"github.com/rolecraft/turneval/internal/reportcache"
	"github.com/rolecraft/turneval/internal/server"
	"github.com/rolecraft/turneval/internal/service/evaluations"
	"github.com/rolecraft/turneval/internal/testutil"
)

var (
	testSrv        *httptest.Server
	testBroker     *server.Broker
	testJWT        *auth.JWTManager
	adminToken     string
	evaluatorToken string
	readerToken    string
)

const testOpenAPI = "openapi: 3.1.0\ninfo:\n  title: turneval\n"

func TestMain(m *testing.M) {
	logger := testutil.TestLogger()

	ev, err := evaluation.New(evaluation.DefaultConfig(), evaluation.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create evaluator: %v\n", err)
		os.Exit(1)
	}
	cache := reportcache.New(time.Hour, 1000)
	testBroker = server.NewBroker(logger)
	svc := evaluations.New(ev, cache, []evaluations.Hook{testBroker}, time.Second, logger)

	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create JWT manager: %v\n", err)
		os.Exit(1)
	}
	testJWT = jwtMgr
	keys, err := auth.ParseClientKeys("admin:admin:test-admin-key,runner:evaluator:test-runner-key,dash:reader:test-dash-key")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse client keys: %v\n", err)
		os.Exit(1)
	}
	keyring, err := auth.NewKeyring(keys)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build keyring: %v\n", err)
		os.Exit(1)
	}

	srv := server.New(server.ServerConfig{
		EvalSvc:             svc,
		JWTMgr:              jwtMgr,
		Keyring:             keyring,
		Logger:              logger,
		Broker:              testBroker,
		MCPServer:           mcp.New(svc, logger, "test").MCPServer(),
		MetricsHandler:      http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "# metrics\n") }),
		Version:             "test",
		MaxRequestBodyBytes: 64 * 1024,
		OpenAPISpec:         []byte(testOpenAPI),
	})
	testSrv = httptest.NewServer(srv.Handler())

	adminToken = getToken(testSrv.URL, "admin", "test-admin-key")
	evaluatorToken = getToken(testSrv.URL, "runner", "test-runner-key")
	readerToken = getToken(testSrv.URL, "dash", "test-dash-key")

	code := m.Run()
	testSrv.Close()
	cache.Close()
	os.Exit(code)
}

func getToken(baseURL, clientID, apiKey string) string {
	body, _ := json.Marshal(model.AuthTokenRequest{ClientID: clientID, APIKey: apiKey})
	resp, err := http.Post(baseURL+"/auth/token", "application/json", bytes.NewReader(body))
	if err != nil {
		panic(fmt.Sprintf("getToken: request failed: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		panic(fmt.Sprintf("getToken: status %d, body: %s", resp.StatusCode, string(data)))
	}
	var result struct {
		Data model.AuthTokenResponse `json:"data"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		panic(fmt.Sprintf("getToken: unmarshal failed: %v, body: %s", err, string(data)))
	}
	return result.Data.Token
}

func authedRequest(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, testSrv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env.Data
}

func decodeError(t *testing.T, resp *http.Response) model.APIError {
	t.Helper()
	var e model.APIError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	return e
}

func uniqueContext(t *testing.T, opts ...testutil.ContextOption) model.EvaluationContext {
	t.Helper()
	id := strings.ReplaceAll(t.Name(), "/", "-")
	return testutil.NewContext(append([]testutil.ContextOption{testutil.WithMessageID(id)}, opts...)...)
}

func TestHealth(t *testing.T) {
	resp := authedRequest(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	health := decodeData[model.HealthResponse](t, resp)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "test", health.Version)
}

func TestOpenAPISpecAndMetricsArePublic(t *testing.T) {
	resp := authedRequest(t, http.MethodGet, "/openapi.yaml", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, testOpenAPI, string(body))

	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	req, err := http.NewRequest(http.MethodGet, testSrv.URL+"/openapi.yaml", nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", etag)
	cached, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = cached.Body.Close()
	assert.Equal(t, http.StatusNotModified, cached.StatusCode)

	resp = authedRequest(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthToken_InvalidCredentials(t *testing.T) {
	for _, req := range []model.AuthTokenRequest{
		{ClientID: "runner", APIKey: "wrong"},
		{ClientID: "ghost", APIKey: "test-runner-key"},
	} {
		resp := authedRequest(t, http.MethodPost, "/auth/token", "", req)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, model.ErrCodeUnauthorized, decodeError(t, resp).Error.Code)
	}

	resp := authedRequest(t, http.MethodPost, "/auth/token", "", model.AuthTokenRequest{ClientID: "runner"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	resp := authedRequest(t, http.MethodGet, "/v1/config", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = authedRequest(t, http.MethodGet, "/v1/config", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid or expired token", decodeError(t, resp).Error.Message)
}

func TestRevokedClientTokenRejected(t *testing.T) {
	for _, c := range []auth.Client{
		{ID: "ghost", Role: model.ClientReader},
		{ID: "dash", Role: model.ClientAdmin},
	} {
		token, _, err := testJWT.IssueToken(c)
		require.NoError(t, err)

		resp := authedRequest(t, http.MethodGet, "/v1/config", token, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, c.ID)
		assert.Contains(t, decodeError(t, resp).Error.Message, "revoked")
	}
}

func TestEvaluateAndFetch(t *testing.T) {
	ec := uniqueContext(t,
		testutil.WithSchema(testutil.NumericField("gold")),
		testutil.WithHistory(testutil.PriorTurn("Welcome back.", testutil.Value("gold", "10"))),
		testutil.WithDataStore(testutil.Value("gold", "20")),
	)

	resp := authedRequest(t, http.MethodPost, "/v1/evaluations", evaluatorToken, model.EvaluateRequest{Context: ec})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	report := decodeData[model.EvaluationReport](t, resp)
	assert.Equal(t, ec.Message.ID, report.MessageID)
	require.NotEmpty(t, report.Issues)
	assert.Equal(t, model.IssueDoubleCounting, report.Issues[0].Kind)

	resp = authedRequest(t, http.MethodGet, "/v1/evaluations/"+ec.Message.ID, readerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fetched := decodeData[model.EvaluationReport](t, resp)
	assert.Equal(t, report.EvaluationID, fetched.EvaluationID)

	resp = authedRequest(t, http.MethodGet, "/v1/evaluations?limit=5", readerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Data  []model.EvaluationReport `json:"data"`
		Total int                      `json:"total"`
		Limit int                      `json:"limit"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 5, list.Limit)
	assert.GreaterOrEqual(t, list.Total, 1)
	assert.NotEmpty(t, list.Data)
}

func TestGetEvaluation_NotFound(t *testing.T) {
	resp := authedRequest(t, http.MethodGet, "/v1/evaluations/never-evaluated", readerToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, model.ErrCodeNotFound, decodeError(t, resp).Error.Code)
}

func TestEvaluate_ReaderForbidden(t *testing.T) {
	resp := authedRequest(t, http.MethodPost, "/v1/evaluations", readerToken, model.EvaluateRequest{Context: uniqueContext(t)})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = authedRequest(t, http.MethodPost, "/v1/evaluations", adminToken, model.EvaluateRequest{Context: uniqueContext(t)})
	assert.Equal(t, http.StatusCreated, resp.StatusCode, "admin outranks evaluator")
}

func TestEvaluate_BadInput(t *testing.T) {
	resp := authedRequest(t, http.MethodPost, "/v1/evaluations", evaluatorToken,
		model.EvaluateRequest{Context: testutil.NewContext(testutil.WithMessageID(""))})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	e := decodeError(t, resp)
	assert.Equal(t, model.ErrCodeInvalidInput, e.Error.Code)
	assert.Contains(t, e.Error.Message, "Message.ID is required")

	resp = authedRequest(t, http.MethodPost, "/v1/evaluations", evaluatorToken, `{"context":{},"extra":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = authedRequest(t, http.MethodPost, "/v1/evaluations", evaluatorToken, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	huge := uniqueContext(t, testutil.WithContent(strings.Repeat("a", 70*1024)))
	resp = authedRequest(t, http.MethodPost, "/v1/evaluations", evaluatorToken, model.EvaluateRequest{Context: huge})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestConfigEndpoint(t *testing.T) {
	resp := authedRequest(t, http.MethodGet, "/v1/config", readerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cfg := decodeData[evaluation.Config](t, resp)
	assert.Equal(t, evaluation.DefaultConfig(), cfg)
}

func TestStreamReceivesNewReports(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, testSrv.URL+"/v1/evaluations/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+readerToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return testBroker.Subscribers() > 0 }, 2*time.Second, 10*time.Millisecond)

	ec := uniqueContext(t)
	post := authedRequest(t, http.MethodPost, "/v1/evaluations", evaluatorToken, model.EvaluateRequest{Context: ec})
	require.Equal(t, http.StatusCreated, post.StatusCode)

	buf := make([]byte, 4096)
	var got strings.Builder
	for !strings.Contains(got.String(), ec.Message.ID) {
		n, err := resp.Body.Read(buf)
		require.NoError(t, err)
		got.Write(buf[:n])
	}
	assert.Contains(t, got.String(), "event: evaluation\n")
}

// newMCPClient creates an MCP client that connects to the test server's /mcp endpoint
// with the given bearer token for authentication.
func newMCPClient(t *testing.T, token string) *mcpclient.Client {
	t.Helper()
	c, err := mcpclient.NewStreamableHttpClient(
		testSrv.URL+"/mcp",
		mcptransport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + token,
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Initialize(context.Background(), mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ClientInfo: mcplib.Implementation{Name: "test-client", Version: "1.0"},
		},
	})
	require.NoError(t, err)
	return c
}

func TestMCPListToolsAndResources(t *testing.T) {
	c := newMCPClient(t, readerToken)
	ctx := context.Background()

	tools, err := c.ListTools(ctx, mcplib.ListToolsRequest{})
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	assert.Equal(t, map[string]bool{"turneval_evaluate": true, "turneval_report": true}, names)

	resources, err := c.ListResources(ctx, mcplib.ListResourcesRequest{})
	require.NoError(t, err)
	require.Len(t, resources.Resources, 1)
	assert.Equal(t, "turneval://reports/recent", resources.Resources[0].URI)

	prompts, err := c.ListPrompts(ctx, mcplib.ListPromptsRequest{})
	require.NoError(t, err)
	require.Len(t, prompts.Prompts, 1)
	assert.Equal(t, "turneval_fix_issues", prompts.Prompts[0].Name)
}

func TestMCPEvaluateRespectsRole(t *testing.T) {
	ec := uniqueContext(t)
	args := map[string]any{"context": ec}

	reader := newMCPClient(t, readerToken)
	res, err := reader.CallTool(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: "turneval_evaluate", Arguments: args},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	runner := newMCPClient(t, evaluatorToken)
	res, err = runner.CallTool(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: "turneval_evaluate", Arguments: args},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	text := res.Content[0].(mcplib.TextContent).Text
	assert.Contains(t, text, ec.Message.ID)
}

func TestMCPRequiresAuth(t *testing.T) {
	resp := authedRequest(t, http.MethodPost, "/mcp", "", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
