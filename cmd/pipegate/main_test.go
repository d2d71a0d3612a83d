package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type result struct {
	code   int
	stdout string
	stderr string
}

// run invokes the CLI against workspace with secret scrubbing off, so tests
// do not compile the gitleaks rule set.
func run(t *testing.T, workspace string, stdin io.Reader, args ...string) result {
	t.Helper()
	t.Setenv("PIPEGATE_SECRETS_ENABLED", "false")
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	var stdout, stderr bytes.Buffer
	full := append([]string{"--workspace", workspace, "--log-level", "error"}, args...)
	code := execute(context.Background(), full, stdin, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &out), s)
	return out
}

func TestInitRunAndStage(t *testing.T) {
	ws := t.TempDir()

	res := run(t, ws, nil, "init-run", "--run-id", "run-cli", "--config-id", "phased_default")
	require.Equal(t, 0, res.code, res.stderr)
	out := decode(t, res.stdout)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "run-cli", out["run_id"])
	assert.Equal(t, "enforce", out["mode"])

	res = run(t, ws, nil, "run-stage", "--run-id", "run-cli", "--phase", "arm")
	require.Equal(t, 0, res.code, res.stderr)
	out = decode(t, res.stdout)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "arm", out["phase"])
	gate := out["gate"].(map[string]any)
	assert.Equal(t, "pass", gate["status"])

	res = run(t, ws, nil, "summarize-run", "--run-id", "run-cli")
	require.Equal(t, 0, res.code, res.stderr)
	out = decode(t, res.stdout)
	summary := out["summary"].(map[string]any)
	assert.Equal(t, true, summary["valid"], summary["issues"])
	assert.Equal(t, "run-cli", summary["run_id"])
}

func TestRunStage_FailedGateExitsNonZero(t *testing.T) {
	ws := t.TempDir()
	require.Equal(t, 0, run(t, ws, nil, "init-run", "--run-id", "run-cli").code)

	res := run(t, ws, nil, "run-stage", "--run-id", "run-cli", "--phase", "arm", "--gate-status", "fail")
	assert.Equal(t, 1, res.code)
	assert.Empty(t, res.stderr)
	out := decode(t, res.stdout)
	assert.Equal(t, false, out["success"])

	// The phase can be run again after a failure.
	res = run(t, ws, nil, "run-stage", "--run-id", "run-cli", "--phase", "arm")
	assert.Equal(t, 0, res.code, res.stderr)
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		init bool
		args []string
		want string
	}{
		{"missing pipeline state", false, []string{"run-stage", "--run-id", "r1", "--phase", "arm"}, "E_BAD_INPUT: pipeline state not found"},
		{"unknown flag", false, []string{"run-stage", "--bogus"}, "E_BAD_INPUT: "},
		{"bad phase", true, []string{"start-phase", "--run-id", "r1", "--phase", "ship"}, "E_BAD_INPUT: --phase must be one of"},
		{"bad run id", true, []string{"start-phase", "--run-id", "../up", "--phase", "arm"}, "E_BAD_INPUT: "},
		{"bad gate status", true, []string{"record-gate", "--run-id", "r1", "--phase", "arm", "--status", "ok"}, "E_BAD_INPUT: --status must be one of: pass, warn, fail"},
		{"bad format", true, []string{"summarize-run", "--run-id", "r1", "--format", "yaml"}, "E_BAD_INPUT: --format must be one of"},
		{"bad mode", false, []string{"init-run", "--mode", "loud"}, "E_BAD_INPUT: --mode must be one of: enforce, shadow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := t.TempDir()
			if tt.init {
				require.Equal(t, 0, run(t, ws, nil, "init-run", "--run-id", "r1").code)
			}
			res := run(t, ws, nil, tt.args...)
			assert.Equal(t, 1, res.code)
			assert.Empty(t, res.stdout)
			assert.True(t, strings.HasPrefix(res.stderr, tt.want), res.stderr)
		})
	}
}

func TestManualPhaseCommands(t *testing.T) {
	ws := t.TempDir()
	require.Equal(t, 0, run(t, ws, nil, "init-run", "--run-id", "r1").code)

	steps := [][]string{
		{"start-phase", "--run-id", "r1", "--phase", "design"},
		{"record-artifact", "--run-id", "r1", "--phase", "design", "--artifact-ref", "design.md", "--action", "read"},
		{"record-gate", "--run-id", "r1", "--phase", "design", "--status", "warn"},
		{"end-phase", "--run-id", "r1", "--phase", "design"},
	}
	for _, args := range steps {
		res := run(t, ws, nil, args...)
		require.Equal(t, 0, res.code, "%v: %s", args, res.stderr)
		assert.Equal(t, true, decode(t, res.stdout)["success"])
	}

	res := run(t, ws, nil, "watch-run", "--run-id", "r1", "--once")
	require.Equal(t, 0, res.code, res.stderr)
	var kinds []string
	for _, line := range strings.Split(strings.TrimSpace(res.stdout), "\n") {
		kinds = append(kinds, decode(t, line)["event"].(string))
	}
	assert.Equal(t, []string{"run_start", "phase_start", "artifact_read", "gate_result", "phase_end"}, kinds)
}

func TestRecordGate_FailExitsNonZero(t *testing.T) {
	ws := t.TempDir()
	require.Equal(t, 0, run(t, ws, nil, "init-run", "--run-id", "r1").code)

	res := run(t, ws, nil, "record-gate", "--run-id", "r1", "--phase", "post-build", "--status", "fail")
	assert.Equal(t, 1, res.code)
	assert.Empty(t, res.stderr)
	gate := decode(t, res.stdout)["gate"].(map[string]any)
	assert.Equal(t, "fail", gate["status"])
	assert.Equal(t, []any{"post-build-gate"}, gate["blocking_failures"])
}

func TestSummarizeRun_Text(t *testing.T) {
	ws := t.TempDir()
	require.Equal(t, 0, run(t, ws, nil, "init-run", "--run-id", "r1").code)

	res := run(t, ws, nil, "summarize-run", "--run-id", "r1", "--format", "text")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Run summary: r1")

	res = run(t, ws, nil, "summarize-run", "--run-id", "r1", "--format", "markdown", "--output", "out/summary.md", "--metrics-out")
	require.Equal(t, 0, res.code, res.stderr)
	out := decode(t, res.stdout)
	assert.Equal(t, "out/summary.md", out["output_ref"])
	assert.Equal(t, "markdown", out["format"])
	assert.Equal(t, ".pipeline/runs/r1/trace.prom", out["metrics_ref"])
}

func TestEvaluateGate(t *testing.T) {
	ws := t.TempDir()
	input := `{
		"artifact": {"items": []},
		"schema_ref": "contracts/artifacts/brief.schema.json",
		"phase": "arm",
		"criteria": [{"name": "has-items", "type": "count-min", "path": "items", "value": 1}]
	}`

	res := run(t, ws, strings.NewReader(input), "evaluate-gate")
	require.Equal(t, 0, res.code, res.stderr)
	out := decode(t, res.stdout)
	assert.Equal(t, true, out["success"])
	data := out["data"].(map[string]any)
	assert.Equal(t, "fail", data["status"])
	assert.Equal(t, []any{"has-items"}, data["blocking_failures"])
	assert.Equal(t, false, data["schema_validation"].(map[string]any)["valid"])

	res = run(t, ws, strings.NewReader("{not json"), "evaluate-gate")
	assert.Equal(t, 1, res.code)
	assert.True(t, strings.HasPrefix(res.stderr, "E_BAD_INPUT: "), res.stderr)
}
