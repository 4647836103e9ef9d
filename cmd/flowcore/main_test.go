package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowcore/workflow"
)

const defsYAML = `
version: "1"
agents:
  summarizer:
    model: small
    fallbacks: [small-backup]
    timeout: 1s
workflows:
  - id: summarize
    steps:
      - id: first
        agent: summarizer
      - id: second
        agent: summarizer
`

func writeDefs(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flows.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("FLOWCORE_LOG_OUTPUT_PATHS", "stderr")
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	code, _, stderr := runCLI(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage:")

	code, _, stderr = runCLI(t, "bogus")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Unknown command: bogus")

	code, stdout, _ := runCLI(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "flowcore <command>")
}

func TestRun_Version(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "FlowCore dev")
}

func TestRun_Validate(t *testing.T) {
	code, stdout, stderr := runCLI(t, "validate", "--defs", writeDefs(t, defsYAML))
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "OK: 1 agents, 1 workflows")
	assert.Contains(t, stdout, "summarize: 2 steps, 2 leaf steps")
}

func TestRun_ValidateErrors(t *testing.T) {
	code, _, stderr := runCLI(t, "validate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "--defs is required")

	bad := writeDefs(t, "version: \"1\"\nworkflows:\n  - {id: w, steps: [{id: s, agent: ghost}]}\n")
	code, _, stderr = runCLI(t, "validate", "--defs", bad)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "UNKNOWN_AGENT")
}

func TestRun_Workflow(t *testing.T) {
	code, stdout, stderr := runCLI(t, "run",
		"--defs", writeDefs(t, defsYAML),
		"--workflow", "summarize",
		"--input", `"hello"`,
		"--fail", "small",
	)
	require.Equal(t, 0, code, stderr)

	var res workflow.ExecutionResult
	require.NoError(t, json.NewDecoder(bytes.NewReader([]byte(stdout))).Decode(&res))
	assert.True(t, res.Success)
	assert.Equal(t, "[small-backup] [small-backup] hello", res.Variables["second"])
	require.Len(t, res.History, 2)
	assert.Equal(t, "small-backup", res.History[0].ModelUsed)
}

func TestRun_WorkflowFailureAndMetrics(t *testing.T) {
	code, stdout, stderr := runCLI(t, "run",
		"--defs", writeDefs(t, defsYAML),
		"--workflow", "summarize",
		"--fail", "small,small-backup",
		"--metrics",
	)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "workflow failed")
	assert.Contains(t, stdout, `"success": false`)
	assert.Contains(t, stdout, "flowcore_workflow_executions_total")
}

func TestParseInput(t *testing.T) {
	assert.Nil(t, parseInput(""))
	assert.Equal(t, "plain text", parseInput("plain text"))
	assert.Equal(t, map[string]any{"n": float64(3)}, parseInput(`{"n":3}`))
}

func TestVarsFlag(t *testing.T) {
	v := varsFlag{}
	require.NoError(t, v.Set("tone=formal"))
	assert.Equal(t, "formal", v["tone"])
	assert.Error(t, v.Set("novalue"))
	assert.Error(t, v.Set("=x"))
}
