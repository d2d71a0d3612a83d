package drift

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/logging"
)

// DefaultTimeout bounds one engine invocation.
const DefaultTimeout = 2 * time.Minute

// CommandDetector runs the drift engine as a subprocess. The request is
// written to stdin as JSON and the engine replies with a result envelope on
// stdout. WORKSPACE_ROOT is set to the workspace root.
type CommandDetector struct {
	Command       string
	Args          []string
	WorkspaceRoot string
	Timeout       time.Duration
}

// envelope is the engine's stdout contract.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Logs []string `json:"logs"`
}

// Detect implements Detector. A command that cannot be found is
// E_MISSING_DEPENDENCY; an engine failure or an unreadable reply is
// E_DRIFT_FAILED.
func (d *CommandDetector) Detect(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if d.Command == "" {
		return nil, errcode.New(errcode.MissingDependency, "drift command is not configured")
	}
	path, err := exec.LookPath(d.Command)
	if err != nil {
		return nil, errcode.New(errcode.MissingDependency, "drift command not found: %s", d.Command)
	}

	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode drift request: %w", err)
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, path, d.Args...)
	cmd.Dir = d.WorkspaceRoot
	cmd.Env = append(os.Environ(), "WORKSPACE_ROOT="+d.WorkspaceRoot)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log := logging.FromContext(ctx)
	start := time.Now()
	runErr := cmd.Run()
	log.Debug(ctx, "drift engine finished",
		zap.String("command", d.Command),
		zap.Duration("duration", time.Since(start)),
		zap.Int("stdout_bytes", stdout.Len()),
	)

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, errcode.New(errcode.DriftFailed, "drift command timed out after %v", timeout)
	}

	var env envelope
	if err := json.Unmarshal(stdout.Bytes(), &env); err != nil {
		if runErr != nil {
			return nil, errcode.New(errcode.DriftFailed, "drift command failed: %v: %s", runErr, strings.TrimSpace(stderr.String()))
		}
		return nil, errcode.New(errcode.DriftFailed, "drift command returned invalid JSON: %v", err)
	}
	for _, line := range env.Logs {
		log.Debug(ctx, "drift engine log", zap.String("line", line))
	}
	if !env.Success {
		if env.Error != nil {
			return nil, errcode.New(errcode.DriftFailed, "%s: %s", env.Error.Code, env.Error.Message)
		}
		return nil, errcode.New(errcode.DriftFailed, "drift command reported failure")
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, errcode.Wrap(errcode.DriftFailed, "drift command", runErr)
		}
		return nil, errcode.New(errcode.DriftFailed, "drift command exited with status %d", exitErr.ExitCode())
	}

	var resp Response
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		return nil, errcode.New(errcode.DriftFailed, "drift command returned invalid data: %v", err)
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}
