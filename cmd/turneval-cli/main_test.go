package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolecraft/turneval/internal/evaluation"
	"github.com/rolecraft/turneval/internal/model"
	"github.com/rolecraft/turneval/internal/testutil"
)

func runCLI(t *testing.T, stdin string, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	code = exitOK
	if err := root.Execute(); err != nil {
		code = exitError
		var gate *gateError
		if errors.As(err, &gate) {
			code = exitBelowGate
		}
	}
	return code, out.String(), errOut.String()
}

func writeContext(t *testing.T, ec model.EvaluationContext) string {
	t.Helper()
	data, err := json.Marshal(ec)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "turn.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func doubleCounting() model.EvaluationContext {
	return testutil.NewContext(
		testutil.WithSchema(testutil.NumericField("gold")),
		testutil.WithHistory(testutil.PriorTurn("Welcome back.", testutil.Value("gold", "10"))),
		testutil.WithDataStore(testutil.Value("gold", "20")),
	)
}

func TestEvaluateCommand(t *testing.T) {
	path := writeContext(t, testutil.CleanContext())
	code, stdout, _ := runCLI(t, "", "evaluate", "--context", path)
	require.Equal(t, exitOK, code)

	var report model.EvaluationReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, "msg-1", report.MessageID)
	assert.Empty(t, report.Issues)
}

func TestEvaluateCommand_Stdin(t *testing.T) {
	data, err := json.Marshal(doubleCounting())
	require.NoError(t, err)

	code, stdout, _ := runCLI(t, string(data), "evaluate", "-c", "-", "--pretty")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "\n  \"evaluation_id\"")
	assert.Contains(t, stdout, `"double_counting"`)
}

func TestEvaluateCommand_FailBelow(t *testing.T) {
	path := writeContext(t, doubleCounting())
	code, stdout, stderr := runCLI(t, "", "evaluate", "--context", path, "--fail-below", "99.5")
	assert.Equal(t, exitBelowGate, code)
	assert.NotEmpty(t, stdout, "report is printed even when the gate fails")
	assert.Empty(t, stderr)

	code, _, _ = runCLI(t, "", "evaluate", "--context", path, "--fail-below", "0")
	assert.Equal(t, exitOK, code)
}

func TestEvaluateCommand_Errors(t *testing.T) {
	code, _, _ := runCLI(t, "", "evaluate")
	assert.Equal(t, exitError, code, "--context is required")

	code, _, _ = runCLI(t, "", "evaluate", "--context", filepath.Join(t.TempDir(), "nope.json"))
	assert.Equal(t, exitError, code)

	code, _, _ = runCLI(t, `{"message":{"id":""}}`, "evaluate", "--context", "-")
	assert.Equal(t, exitError, code)

	code, _, _ = runCLI(t, `{"message":{"id":"m"},"mood":"happy"}`, "evaluate", "--context", "-")
	assert.Equal(t, exitError, code, "unknown fields are rejected")
}

func TestEvaluateCommand_ProfileDisablesChecks(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "p.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("enabled_checks:\n  behavior: true\n  context: true\n  state: false\n  prompt: true\n"), 0o600))

	path := writeContext(t, doubleCounting())
	code, stdout, _ := runCLI(t, "", "evaluate", "--context", path, "--profile", profile)
	require.Equal(t, exitOK, code)

	var report model.EvaluationReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.False(t, report.State.DoubleCountingDetected)
}

func TestProfileCommand(t *testing.T) {
	code, stdout, _ := runCLI(t, "", "profile")
	require.Equal(t, exitOK, code)

	cfg, err := evaluation.ParseProfile([]byte(stdout))
	require.NoError(t, err)
	assert.Equal(t, evaluation.DefaultConfig(), cfg)
}

func TestExecute_ExitCodes(t *testing.T) {
	assert.Equal(t, exitOK, execute([]string{"--version"}))
	assert.Equal(t, exitError, execute([]string{"no-such-command"}))
}
